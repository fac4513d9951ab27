package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"obligation_manager/internal/processor"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically runs the processing workflow for every known
// workspace. The cron spec comes from configuration; processing itself is
// idempotent per occurrence, so overlapping or frequent runs are safe.
type Scheduler struct {
	processor  *processor.ObligationProcessor
	spec       string
	runTimeout time.Duration
	c          *cron.Cron
	logger     *slog.Logger
}

func New(proc *processor.ObligationProcessor, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		processor:  proc,
		spec:       spec,
		runTimeout: 5 * time.Minute,
		logger:     logger,
	}
}

func (s *Scheduler) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser))

	if _, err := s.c.AddFunc(s.spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid processing schedule %q: %w", s.spec, err)
	}

	s.c.Start()
	s.logger.Info("Processing scheduler started", slog.String("spec", s.spec))
	return nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	workspaces, err := s.processor.Workspaces(ctx)
	if err != nil {
		s.logger.Error("Failed to list workspaces", slog.String("error", err.Error()))
		return
	}

	asOf := time.Now()
	for _, workspaceID := range workspaces {
		report, err := s.processor.ProcessDue(ctx, workspaceID, asOf)
		if err != nil {
			s.logger.Error("Scheduled processing run failed",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
			continue
		}
		if report.TotalDue > 0 {
			s.logger.Info("Scheduled processing run finished",
				slog.String("workspace_id", workspaceID),
				slog.Int("processed", report.Processed),
				slog.Int("failed", report.Failed))
		}
	}
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.c == nil {
		return nil
	}

	stopCtx := s.c.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("Processing scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
