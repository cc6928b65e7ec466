package queue

import (
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/config"
)

// NewServer builds the asynq server for every job queue.
func NewServer(redisOpt asynq.RedisClientOpt, cfg config.QueueConfig, logLevel string, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueScans:   5,
			QueueMatches: 3,
			QueueLookups: 2,
		},
		RetryDelayFunc: RetryDelay(cfg.BaseDelay),
		Logger:         NewLogger(log),
		LogLevel:       LogLevel(logLevel),
	})
}

func LogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// zapLogger adapts zap to asynq.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func NewLogger(log *zap.Logger) asynq.Logger {
	return &zapLogger{s: log.Named("asynq").Sugar()}
}

func (l *zapLogger) Debug(args ...interface{}) { l.s.Debug(args...) }
func (l *zapLogger) Info(args ...interface{})  { l.s.Info(args...) }
func (l *zapLogger) Warn(args ...interface{})  { l.s.Warn(args...) }
func (l *zapLogger) Error(args ...interface{}) { l.s.Error(args...) }
func (l *zapLogger) Fatal(args ...interface{}) { l.s.Fatal(args...) }
