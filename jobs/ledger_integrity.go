package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/journal"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// IntegrityScanner reports posted entries violating the balance invariant.
type IntegrityScanner interface {
	ScanIntegrity(ctx context.Context) ([]journal.IntegrityIssue, error)
}

// LedgerIntegrityJob verifies every posted entry still balances. Violations
// cannot happen through the posting path, so a hit means either data
// corruption or an out-of-band write, and both warrant a loud alert.
type LedgerIntegrityJob struct {
	Scanner IntegrityScanner
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(scanner IntegrityScanner, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	issues, err := j.Scanner.ScanIntegrity(ctx)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("ledger integrity scan failed", slog.Any("error", err))
		}
		return err
	}
	if len(issues) == 0 {
		if j.Logger != nil {
			j.Logger.Info("ledger integrity scan clean", slog.String("reason", payload.Reason))
		}
		return nil
	}
	if j.Metrics != nil {
		j.Metrics.IntegrityFailures.Add(float64(len(issues)))
	}
	for _, issue := range issues {
		if j.Logger != nil {
			j.Logger.Error("unbalanced journal entry",
				slog.Int64("entry_id", issue.EntryID),
				slog.String("total_debit", issue.TotalDebit.String()),
				slog.String("total_credit", issue.TotalCredit.String()),
				slog.String("line_debit", issue.LineDebit.String()),
				slog.String("line_credit", issue.LineCredit.String()),
			)
		}
	}
	return nil
}
