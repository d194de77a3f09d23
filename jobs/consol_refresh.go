package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/consol"
)

// ReportGenerator produces consolidation reports.
type ReportGenerator interface {
	Generate(ctx context.Context, input consol.Input) (consol.Report, error)
}

// BranchLister enumerates branches that own accounts.
type BranchLister interface {
	ListBranchIDs(ctx context.Context) ([]int64, error)
}

// ConsolRefreshJob regenerates the estate-wide consolidation report on a
// schedule so the latest draft is always one query away.
type ConsolRefreshJob struct {
	Service  ReportGenerator
	Branches BranchLister
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewConsolRefreshJob constructs the job handler.
func NewConsolRefreshJob(service ReportGenerator, branches BranchLister, logger *slog.Logger) *ConsolRefreshJob {
	return &ConsolRefreshJob{
		Service:  service,
		Branches: branches,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskConsolRefresh tasks.
func (j *ConsolRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ConsolRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	branchIDs := payload.BranchIDs
	if len(branchIDs) == 0 {
		ids, err := j.Branches.ListBranchIDs(ctx)
		if err != nil {
			return err
		}
		branchIDs = ids
	}
	if len(branchIDs) == 0 {
		if j.Logger != nil {
			j.Logger.Info("consolidation refresh skipped, no branches provisioned")
		}
		return nil
	}

	period, start, end := j.resolvePeriod(payload.Period)
	report, err := j.Service.Generate(ctx, consol.Input{
		ReportType: consol.ReportFinancialSummary,
		Period:     period,
		Start:      start,
		End:        end,
		BranchIDs:  branchIDs,
	})
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("consolidation refresh failed", slog.String("period", period), slog.Any("error", err))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("consolidation refreshed",
			slog.Int64("report_id", report.ID),
			slog.String("period", period),
			slog.Int("branches", len(branchIDs)),
		)
	}
	return nil
}

// resolvePeriod maps a YYYY-MM period string to its calendar bounds,
// defaulting to the previous month.
func (j *ConsolRefreshJob) resolvePeriod(period string) (string, time.Time, time.Time) {
	var anchor time.Time
	if parsed, err := time.Parse("2006-01", period); err == nil {
		anchor = parsed
	} else {
		now := j.clock()
		anchor = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	}
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start.Format("2006-01"), start, end
}
