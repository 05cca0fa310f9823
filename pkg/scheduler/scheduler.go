package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

// Job is one scheduled unit of work; satisfied by *Runner.
type Job interface {
	Run(ctx context.Context) RunReport
}

// Scheduler repeats a Job on a cron schedule. A tick that fires while the
// previous run is still in progress is skipped.
type Scheduler struct {
	spec       string
	job        Job
	runOnStart bool

	cron    *cron.Cron
	wrapped cron.Job
	entryID cron.EntryID

	running bool
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(spec string, job Job, runOnStart bool) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	cronLogger := cron.PrintfLogger(logger.GetLogger())
	s := &Scheduler{
		spec:       spec,
		job:        job,
		runOnStart: runOnStart,
		cron:       cron.New(cron.WithLogger(cronLogger)),
	}
	s.wrapped = cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).
		Then(cron.FuncJob(s.execute))
	return s, nil
}

func (s *Scheduler) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	entryID, err := s.cron.AddJob(s.spec, s.wrapped)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = entryID
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron.Start()
	s.running = true
	logger.Infof("[scheduler] Started with schedule %s, next run at %s", s.spec, s.cron.Entry(entryID).Next.Format(time.RFC3339))

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.wrapped.Run()
		}()
	}
	return nil
}

// Stop cancels any in-progress run and waits for it to return.
func (s *Scheduler) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mutex.Unlock()

	logger.Infof("[scheduler] Stopping...")
	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cron.Remove(s.entryID)

	logger.Infof("[scheduler] Stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// NextRun is the zero time when the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) execute() {
	s.mutex.RLock()
	ctx := s.ctx
	s.mutex.RUnlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.job.Run(ctx)
}
