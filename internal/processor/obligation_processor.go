package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/repository"
	"obligation_manager/pkg/metrics"
	"time"
)

// ErrObligationArchived rejects lifecycle calls on archived obligations;
// archived is terminal.
var ErrObligationArchived = errors.New("obligation is archived")

// Notifier receives processing events. May be nil.
type Notifier interface {
	NotifyExpired(ctx context.Context, obligation domain.Obligation)
	NotifyRunCompleted(ctx context.Context, workspaceID string, processed, failed int)
}

type ObligationProcessor struct {
	obligationRepo repository.ObligationRepository
	txRepo         repository.TransactionRepository
	metrics        *metrics.MetricsCollector
	notifier       Notifier
	logger         *slog.Logger
}

// ProcessingReport summarizes one processing run. Transactions holds the
// advanced obligation snapshots, one per materialized ledger transaction.
type ProcessingReport struct {
	WorkspaceID  string              `json:"workspace_id"`
	AsOf         time.Time           `json:"as_of"`
	TotalDue     int                 `json:"total_due"`
	Processed    int                 `json:"processed"`
	Failed       int                 `json:"failed"`
	Skipped      int                 `json:"skipped"`
	Transactions []domain.Obligation `json:"transactions"`
}

func NewObligationProcessor(
	obligationRepo repository.ObligationRepository,
	txRepo repository.TransactionRepository,
	collector *metrics.MetricsCollector,
	notifier Notifier,
	logger *slog.Logger,
) *ObligationProcessor {
	if logger == nil {
		logger = slog.Default()
	}

	return &ObligationProcessor{
		obligationRepo: obligationRepo,
		txRepo:         txRepo,
		metrics:        collector,
		notifier:       notifier,
		logger:         logger,
	}
}

// ProcessDue materializes one ledger transaction for every obligation due
// in the workspace as of the given instant and advances each by exactly one
// occurrence. Backlogged obligations stay due and drain over subsequent
// runs. A failure on one obligation never aborts the batch.
func (p *ObligationProcessor) ProcessDue(ctx context.Context, workspaceID string, asOf time.Time) (*ProcessingReport, error) {
	startTime := time.Now()

	due, err := p.obligationRepo.FindDue(ctx, workspaceID, asOf)
	if err != nil {
		return nil, fmt.Errorf("due scan failed: %w", err)
	}

	report := &ProcessingReport{
		WorkspaceID:  workspaceID,
		AsOf:         asOf,
		TotalDue:     len(due),
		Transactions: []domain.Obligation{},
	}

	for _, current := range due {
		snapshot := *current
		if !snapshot.IsDue(asOf) {
			continue
		}

		occurrence := snapshot.NextRunDate
		advanced := snapshot.Advance()

		// Claim the advance before materializing: losing the version race
		// means another process already consumed this occurrence, so
		// skipping here is what keeps it from being materialized twice.
		if err := p.obligationRepo.Update(ctx, &advanced); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				report.Skipped++
				p.logger.InfoContext(ctx, "Obligation advanced by another process, skipping",
					slog.String("obligation_id", snapshot.ID))
				continue
			}
			report.Failed++
			p.logger.ErrorContext(ctx, "Failed to persist advanced obligation",
				slog.String("obligation_id", snapshot.ID),
				slog.String("error", err.Error()))
			continue
		}

		tx := domain.MaterializeTransaction(snapshot)
		if err := p.txRepo.Save(ctx, tx); err != nil {
			// Restore the pre-advance snapshot so the occurrence stays due
			// and is retried on the next run.
			restored := snapshot
			restored.Version = advanced.Version
			if rbErr := p.obligationRepo.Update(ctx, &restored); rbErr != nil {
				p.logger.ErrorContext(ctx, "Failed to restore obligation after materialization failure",
					slog.String("obligation_id", snapshot.ID),
					slog.String("error", rbErr.Error()))
			}
			report.Failed++
			p.logger.ErrorContext(ctx, "Failed to materialize transaction",
				slog.String("obligation_id", snapshot.ID),
				slog.String("error", err.Error()))
			continue
		}

		report.Processed++
		report.Transactions = append(report.Transactions, advanced)

		p.logger.InfoContext(ctx, "Obligation advanced",
			slog.String("obligation_id", advanced.ID),
			slog.Time("occurrence", occurrence),
			slog.Time("next_run_date", advanced.NextRunDate),
			slog.Bool("is_active", advanced.IsActive))

		if !advanced.IsActive && p.notifier != nil {
			p.notifier.NotifyExpired(ctx, advanced)
		}
	}

	duration := time.Since(startTime)
	if p.metrics != nil {
		p.metrics.RecordProcessingRun(duration, report.Processed, report.Failed, report.Skipped)
		p.metrics.SetDueBacklog(workspaceID, report.TotalDue)
	}
	if p.notifier != nil && report.TotalDue > 0 {
		p.notifier.NotifyRunCompleted(ctx, workspaceID, report.Processed, report.Failed)
	}

	p.logger.InfoContext(ctx, "Processing run completed",
		slog.String("workspace_id", workspaceID),
		slog.Int("total_due", report.TotalDue),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", duration))

	return report, nil
}

func (p *ObligationProcessor) CreateObligation(ctx context.Context, params domain.ObligationParams) (*domain.Obligation, error) {
	obligation, err := domain.NewObligation(params)
	if err != nil {
		return nil, err
	}

	if err := p.obligationRepo.Save(ctx, &obligation); err != nil {
		return nil, fmt.Errorf("failed to save obligation: %w", err)
	}

	p.logger.InfoContext(ctx, "Obligation created",
		slog.String("obligation_id", obligation.ID),
		slog.String("workspace_id", obligation.WorkspaceID),
		slog.Time("next_run_date", obligation.NextRunDate))

	return &obligation, nil
}

func (p *ObligationProcessor) UpdateObligation(ctx context.Context, id string, update domain.ObligationUpdate) (*domain.Obligation, error) {
	current, err := p.obligationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsArchived {
		return nil, ErrObligationArchived
	}

	updated, err := current.Update(update)
	if err != nil {
		return nil, err
	}

	if err := p.obligationRepo.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update obligation: %w", err)
	}
	return &updated, nil
}

func (p *ObligationProcessor) PauseObligation(ctx context.Context, id string) (*domain.Obligation, error) {
	return p.transition(ctx, id, func(o domain.Obligation) (domain.Obligation, error) {
		return o.Pause()
	})
}

func (p *ObligationProcessor) ResumeObligation(ctx context.Context, id string) (*domain.Obligation, error) {
	return p.transition(ctx, id, func(o domain.Obligation) (domain.Obligation, error) {
		return o.Resume()
	})
}

func (p *ObligationProcessor) ArchiveObligation(ctx context.Context, id string) (*domain.Obligation, error) {
	current, err := p.obligationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	archived := current.Archive()
	if err := p.obligationRepo.Update(ctx, &archived); err != nil {
		return nil, fmt.Errorf("failed to archive obligation: %w", err)
	}
	return &archived, nil
}

func (p *ObligationProcessor) GetObligation(ctx context.Context, id string) (*domain.Obligation, error) {
	return p.obligationRepo.GetByID(ctx, id)
}

func (p *ObligationProcessor) ListObligations(ctx context.Context, workspaceID string) ([]*domain.Obligation, error) {
	return p.obligationRepo.GetByWorkspaceID(ctx, workspaceID)
}

func (p *ObligationProcessor) Workspaces(ctx context.Context) ([]string, error) {
	return p.obligationRepo.WorkspaceIDs(ctx)
}

func (p *ObligationProcessor) transition(ctx context.Context, id string, step func(domain.Obligation) (domain.Obligation, error)) (*domain.Obligation, error) {
	current, err := p.obligationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsArchived {
		return nil, ErrObligationArchived
	}

	next, err := step(*current)
	if err != nil {
		return nil, err
	}

	if err := p.obligationRepo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to persist state change: %w", err)
	}
	return &next, nil
}
