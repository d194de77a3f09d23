package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates journal entry posting. Every posting is all-or-nothing:
// the entry, its lines, and the account balance mutations commit together or
// not at all.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostEntry validates and persists one balanced journal entry, applying each
// line's effect to the referenced account.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (Entry, error) {
	entries, err := s.PostBatch(ctx, input)
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// PostBatch persists several logically related entries in one transaction.
// Each entry must balance on its own; a single failure rolls back the whole
// batch. Used for sale revenue + COGS pairs and inter-branch transfer legs.
func (s *Service) PostBatch(ctx context.Context, inputs ...PostingInput) ([]Entry, error) {
	if len(inputs) == 0 {
		return nil, errors.New("journal: no entries to post")
	}
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, err
		}
		if inputs[i].Date.IsZero() {
			inputs[i].Date = s.now()
		}
	}
	entries := make([]Entry, 0, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, input := range inputs {
			inserted, err := tx.InsertEntry(ctx, input)
			if err != nil {
				return err
			}
			lines, err := tx.InsertLines(ctx, inserted.ID, input.Lines)
			if err != nil {
				return err
			}
			for _, line := range input.Lines {
				if err := tx.ApplyLine(ctx, line.AccountID, line.Debit, line.Credit); err != nil {
					return fmt.Errorf("account %d: %w", line.AccountID, err)
				}
			}
			inserted.Lines = lines
			entries = append(entries, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		for _, entry := range entries {
			_ = s.audit.Record(ctx, shared.AuditLog{
				BranchID: entry.BranchID,
				Action:   "journal.post",
				Entity:   "journal_entry",
				EntityID: fmt.Sprintf("%d", entry.ID),
				Meta: map[string]any{
					"reference":   entry.Reference,
					"total_debit": entry.TotalDebit.String(),
				},
				At: s.now(),
			})
		}
	}
	return entries, nil
}

// GetEntry retrieves one entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryWithLines(ctx, id)
		return err
	})
	return entry, err
}

// ListEntries retrieves entries matching the filter, newest first.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error) {
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, filter)
		return err
	})
	return entries, err
}

// ScanIntegrity reports posted entries that violate the balance invariant.
// An empty result means the ledger is internally consistent.
func (s *Service) ScanIntegrity(ctx context.Context) ([]IntegrityIssue, error) {
	var issues []IntegrityIssue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		issues, err = tx.ListUnbalanced(ctx)
		return err
	})
	return issues, err
}
