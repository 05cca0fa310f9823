package logger

import (
	"fmt"
	"log/slog"

	gethlog "github.com/ethereum/go-ethereum/log"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger Logger

type PrintfLogger interface {
	Printf(string, ...any)
}

type Logger interface {
	PrintfLogger
	Debug(msg string, fields ...interface{})
	Debugf(msg string, args ...interface{})
	Info(msg string, fields ...interface{})
	Infof(msg string, args ...interface{})
	Warn(msg string, fields ...interface{})
	Warnf(msg string, args ...interface{})
	Error(msg string, fields ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(msg string, fields ...interface{})
	Fatalf(msg string, args ...interface{})
	Sync() error
}

type ZapLogger struct {
	Logger       *zap.Logger
	loggerConfig zap.Config
}

type optionFunc func(*ZapLogger)

// InitLogger installs the process-wide logger. Later calls are no-ops.
func InitLogger(opts ...optionFunc) error {
	if logger != nil {
		return nil
	}
	zapLogger, err := NewZapLogger(opts...)
	if err != nil {
		return err
	}
	logger = zapLogger
	return nil
}

func NewZapLogger(opts ...optionFunc) (*ZapLogger, error) {
	loggerZap := &ZapLogger{loggerConfig: zap.NewProductionConfig()}
	for _, opt := range opts {
		opt(loggerZap)
	}
	var err error
	loggerZap.Logger, err = loggerZap.loggerConfig.Build()
	if err != nil {
		return nil, err
	}
	return loggerZap, nil
}

// SetLogger replaces the process-wide logger, mostly useful in tests.
func SetLogger(l Logger) {
	logger = l
}

func WithLevel(level zapcore.Level) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.Level = zap.NewAtomicLevelAt(level)
	}
}

func WithEncodeTime(timeKey string, timeEncoder zapcore.TimeEncoder) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.EncoderConfig.TimeKey = timeKey
		zl.loggerConfig.EncoderConfig.EncodeTime = timeEncoder
	}
}

func WithDevelopmentEncoding() optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.Encoding = "console"
		zl.loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
}

func GetLogger() Logger {
	return logger
}

type levelAdapter struct {
	zapLevel zapcore.Level
}

func (l levelAdapter) Level() slog.Level {
	switch l.zapLevel {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.InfoLevel:
		return slog.LevelInfo
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BridgeGethLogs routes go-ethereum's internal slog output into zap. The
// geth logger is noisy at debug, so it is capped at the given level.
func BridgeGethLogs(zl *ZapLogger, level zapcore.Level) {
	handler := slogzap.Option{
		Logger: zl.Logger.Named("geth"),
		Level:  levelAdapter{zapLevel: level},
	}.NewZapHandler()
	gethlog.SetDefault(gethlog.NewLogger(handler))
}

func Debug(msg string, fields ...interface{}) {
	logger.Debug(msg, fields...)
}

func Debugf(msg string, fields ...interface{}) {
	logger.Debugf(msg, fields...)
}

func Info(msg string, fields ...interface{}) {
	logger.Info(msg, fields...)
}

func Infof(msg string, fields ...interface{}) {
	logger.Infof(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	logger.Warn(msg, fields...)
}

func Warnf(msg string, fields ...interface{}) {
	logger.Warnf(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	logger.Error(msg, fields...)
}

func Errorf(msg string, fields ...interface{}) {
	logger.Errorf(msg, fields...)
}

func Fatal(msg string, fields ...interface{}) {
	logger.Fatal(msg, fields...)
}

func Fatalf(msg string, fields ...interface{}) {
	logger.Fatalf(msg, fields...)
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.Logger.Sugar().Debugw(msg, fields...)
}

func (l *ZapLogger) Debugf(msg string, args ...interface{}) {
	l.Logger.Sugar().Debugf(msg, args...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.Logger.Sugar().Infow(msg, fields...)
}

func (l *ZapLogger) Infof(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.Logger.Sugar().Warnw(msg, fields...)
}

func (l *ZapLogger) Warnf(msg string, args ...interface{}) {
	l.Logger.Sugar().Warnf(msg, args...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorw(msg, fields...)
}

func (l *ZapLogger) Errorf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorf(msg, fields...)
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalw(msg, fields...)
}

func (l *ZapLogger) Fatalf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalf(msg, fields...)
}

func (l *ZapLogger) Printf(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}

func (l *ZapLogger) Sync() error {
	return l.Logger.Sync()
}

func NewLogger(level string, development bool) (*ZapLogger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse logger level: %v", err)
	}
	opts := []optionFunc{WithLevel(zapLevel), WithEncodeTime("timestamp", zapcore.ISO8601TimeEncoder)}
	if development {
		opts = append(opts, WithDevelopmentEncoding())
	}
	return NewZapLogger(opts...)
}
