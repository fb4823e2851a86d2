package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hermes-erp/hermes/internal/accounting"
	jobmetrics "github.com/hermes-erp/hermes/internal/jobs"
)

// IntegritySource reports stored entries that do not balance.
type IntegritySource interface {
	UnbalancedEntries(ctx context.Context) ([]accounting.Imbalance, error)
}

// LedgerIntegrityJob flags journal entries whose lines no longer balance.
type LedgerIntegrityJob struct {
	Ledger  IntegritySource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires the integrity handler.
func NewLedgerIntegrityJob(ledger IntegritySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle runs the check. Findings are logged and counted; they do not fail
// the task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	issues, err := j.Ledger.UnbalancedEntries(ctx)
	if err != nil {
		j.logger().Error("load unbalanced entries", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, im := range issues {
		j.logger().Error("unbalanced journal entry",
			slog.Int64("entry_id", im.EntryID),
			slog.String("reference", im.Reference),
			slog.String("debit", im.Debit.StringFixed(2)),
			slog.String("credit", im.Credit.StringFixed(2)))
	}
	j.metrics().AddIssues("unbalanced_entry", len(issues))
	j.logger().Info("ledger integrity check executed", slog.Int("issues", len(issues)))
	return tracker.End(nil)
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
