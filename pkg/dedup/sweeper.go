package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the retention sweep hourly.
const DefaultSweepSchedule = "0 * * * *"

// Sweeper periodically deletes expired ledger rows on a cron schedule.
type Sweeper struct {
	ledger   *Ledger
	cronExpr string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewSweeper(logger *slog.Logger, ledger *Ledger, cronExpr string) (*Sweeper, error) {
	if cronExpr == "" {
		cronExpr = DefaultSweepSchedule
	}

	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid sweep cron expression: %w", err)
	}

	return &Sweeper{
		ledger:   ledger,
		cronExpr: cronExpr,
		logger:   logger.With("module", "dedup_sweeper", "cron", cronExpr),
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	s.logger.InfoContext(ctx, "Starting topic retention sweeper")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.ledger.Cleanup(context.Background()); err != nil {
			s.logger.Error("Topic retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping topic retention sweeper")

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}
