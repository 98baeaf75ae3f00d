package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a cycle every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// NewScheduler creates a stopped cron scheduler that runs a cycle of t on
// every tick of spec. A tick that fires while the previous cycle is still
// running is skipped. The cycle runs under ctx.
func NewScheduler(ctx context.Context, spec string, loc *time.Location, t *Tracker) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}

	logger := cronLogger{slog.Default()}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)

	_, err := c.AddFunc(spec, func() {
		if _, err := t.Run(ctx); err != nil {
			if errors.Is(err, ErrCycleRunning) {
				slog.Info("Bot is skipping a scheduled check because another one is still running.")
				return
			}
			slog.Error("Bot has failed to run a scheduled check.", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid check schedule %q: %w", spec, err)
	}

	return c, nil
}

// ValidateSchedule returns an error if spec is not a valid cron schedule.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid check schedule %q: %w", spec, err)
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
