package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans posted entries for balance violations.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskConsolRefresh regenerates the estate-wide consolidation report.
	TaskConsolRefresh = "consol:refresh"
)

// LedgerIntegrityPayload configures the integrity scan. Empty means scan
// everything.
type LedgerIntegrityPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// ConsolRefreshPayload configures the consolidation refresh scope. A zero
// value consolidates all branches over the previous calendar month.
type ConsolRefreshPayload struct {
	BranchIDs []int64 `json:"branch_ids,omitempty"`
	Period    string  `json:"period,omitempty"`
}

// NewConsolRefreshTask constructs an Asynq task for the consolidation refresh.
func NewConsolRefreshTask(payload ConsolRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolRefresh, data), nil
}
