package faucet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

var ErrNotClaimable = errors.New("session not claimable")

// Client claims test tokens from a session based faucet API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	opts       Options
}

// StartSessionRequest is the payload of /api/startSession.
type StartSessionRequest struct {
	Address string `json:"addr"`
}

type StartSessionResponse struct {
	Session string `json:"session"`
	Status  string `json:"status"`
	Start   int64  `json:"start"`
	Balance string `json:"balance"`
	Target  string `json:"target"`
}

type ClaimRewardRequest struct {
	Session string `json:"session"`
}

type ClaimRewardResponse struct {
	Session     string  `json:"session"`
	Status      string  `json:"status"`
	Balance     string  `json:"balance"`
	ClaimIdx    *int    `json:"claimIdx,omitempty"`
	ClaimStatus *string `json:"claimStatus,omitempty"`
}

type SessionStatusResponse struct {
	Session     string  `json:"session"`
	Status      string  `json:"status"`
	Balance     string  `json:"balance"`
	ClaimStatus *string `json:"claimStatus,omitempty"`
	ClaimBlock  *int64  `json:"claimBlock,omitempty"`
	ClaimHash   *string `json:"claimHash,omitempty"`
}

// Result describes a finished claim.
type Result struct {
	Address     string
	Session     string
	Status      string
	ClaimStatus string
	ClaimBlock  int64
	ClaimHash   string
	Balance     string
	Confirmed   bool
	Duration    time.Duration
}

type Options struct {
	WaitForConfirmation bool
	ConfirmationTimeout time.Duration
	// PollInterval of zero derives the interval from the confirmation timeout.
	PollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		WaitForConfirmation: true,
		ConfirmationTimeout: time.Minute,
	}
}

func NewClient(baseURL string, timeout time.Duration, opts Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		opts: opts,
	}
}

// Claim runs one start/claim cycle for address and, when the claim is
// queued and confirmation waiting is enabled, polls until it settles.
func (c *Client) Claim(ctx context.Context, address string) (*Result, error) {
	start := time.Now()
	result := &Result{Address: address}

	session, err := c.startSession(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	result.Session = session.Session
	result.Status = session.Status
	result.Balance = session.Balance
	logger.Debugf("[faucet] Started session %s for %s, status: %s", session.Session, address, session.Status)

	if session.Status != "claimable" {
		return nil, fmt.Errorf("%w: status %s", ErrNotClaimable, session.Status)
	}

	claim, err := c.claimReward(ctx, session.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to claim reward: %w", err)
	}
	result.Status = claim.Status
	claimStatus := deref(claim.ClaimStatus)
	result.ClaimStatus = claimStatus

	switch {
	case claim.Status == "claiming" && claimStatus == "queue":
		if c.opts.WaitForConfirmation {
			status, err := c.waitForConfirmation(ctx, session.Session)
			if err != nil {
				return nil, fmt.Errorf("failed to confirm claim: %w", err)
			}
			result.apply(status)
		}
	case claim.Status == "finished":
		switch claimStatus {
		case "confirmed":
			result.Confirmed = true
			if status, err := c.GetSessionStatus(ctx, session.Session); err == nil {
				result.apply(status)
			}
		case "failed", "error":
			return nil, fmt.Errorf("claim failed with status: %s", claimStatus)
		default:
			return nil, fmt.Errorf("unexpected finished claim status: %s", claimStatus)
		}
	default:
		return nil, fmt.Errorf("unexpected claim status: %s, claim status: %s", claim.Status, claimStatus)
	}

	result.Duration = time.Since(start)
	if result.Confirmed {
		logger.Infof("[faucet] Confirmed claim for %s, session: %s, tx: %s, duration: %v", address, result.Session, result.ClaimHash, result.Duration)
	} else {
		logger.Infof("[faucet] Queued claim for %s, session: %s, duration: %v", address, result.Session, result.Duration)
	}
	return result, nil
}

// ClaimWithRetry makes up to 1+retries attempts with quadratic backoff.
func (c *Client) ClaimWithRetry(ctx context.Context, address string, retries int) (*Result, error) {
	if retries < 0 {
		retries = 0
	}
	attempts := retries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			logger.Warnf("[faucet] Retrying claim for %s (attempt %d/%d) after %v", address, attempt+1, attempts, backoff)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := c.Claim(ctx, address)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.Warnf("[faucet] Claim attempt %d failed for %s: %v", attempt+1, address, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) GetSessionStatus(ctx context.Context, session string) (*SessionStatusResponse, error) {
	endpoint := c.baseURL + "/api/getSessionStatus?session=" + url.QueryEscape(session)
	var status SessionStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) startSession(ctx context.Context, address string) (*StartSessionResponse, error) {
	var resp StartSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/startSession", StartSessionRequest{Address: address}, &resp); err != nil {
		return nil, err
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("empty session ID received")
	}
	return &resp, nil
}

func (c *Client) claimReward(ctx context.Context, session string) (*ClaimRewardResponse, error) {
	var resp ClaimRewardResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/claimReward", ClaimRewardRequest{Session: session}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, session string) (*SessionStatusResponse, error) {
	timeout := c.opts.ConfirmationTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	pollInterval := c.opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = adaptivePollInterval(timeout)
	}
	logger.Debugf("[faucet] Waiting for confirmation of session %s (timeout %v, poll %v)", session, timeout, pollInterval)

	confirmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-confirmCtx.Done():
			return nil, fmt.Errorf("timeout waiting for confirmation: %w", confirmCtx.Err())
		case <-ticker.C:
			status, err := c.GetSessionStatus(confirmCtx, session)
			if err != nil {
				logger.Warnf("[faucet] Failed to get session status for %s: %v", session, err)
				continue
			}
			if status.Status != "finished" {
				continue
			}
			switch claimStatus := deref(status.ClaimStatus); claimStatus {
			case "confirmed":
				return status, nil
			case "failed", "error":
				return nil, fmt.Errorf("session claim failed with status: %s", claimStatus)
			default:
				logger.Warnf("[faucet] Session %s finished with unexpected claim status %q, continuing to poll", session, claimStatus)
			}
		}
	}
}

// adaptivePollInterval is a fifth of the timeout, kept within [2s, 10s].
func adaptivePollInterval(timeout time.Duration) time.Duration {
	poll := timeout / 5
	if poll < 2*time.Second {
		poll = 2 * time.Second
	}
	if poll > 10*time.Second {
		poll = 10 * time.Second
	}
	return poll
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d, body: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (r *Result) apply(status *SessionStatusResponse) {
	if status == nil {
		return
	}
	r.Status = status.Status
	if status.ClaimStatus != nil {
		r.ClaimStatus = *status.ClaimStatus
		r.Confirmed = *status.ClaimStatus == "confirmed"
	}
	if status.ClaimBlock != nil {
		r.ClaimBlock = *status.ClaimBlock
	}
	if status.ClaimHash != nil {
		r.ClaimHash = *status.ClaimHash
	}
	if status.Balance != "" {
		r.Balance = status.Balance
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
