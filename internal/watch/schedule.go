package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedule runs fn on a standard five-field cron expression (descriptors such
// as "@hourly" or "@every 30m" are accepted) until ctx is cancelled. A run
// that is still going when the next one is due causes that tick to be skipped.
func Schedule(ctx context.Context, spec string, logger *slog.Logger, run RunFunc) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "schedule")

	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	cl := cronLogger{logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() { run(ctx) }); err != nil {
		return fmt.Errorf("schedule audit: %w", err)
	}

	c.Start()
	if entries := c.Entries(); len(entries) > 0 {
		logger.Info("audit scheduled", "schedule", spec, "next", entries[0].Next)
	}

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"err", err}, keysAndValues...)...)
}
