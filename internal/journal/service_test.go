package journal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryJournalRepo struct {
	entries  map[int64]Entry
	lines    map[int64][]Line
	balances map[int64][2]decimal.Decimal
	nextID   int64
	nextLine int64
}

func newMemoryJournalRepo(accountIDs ...int64) *memoryJournalRepo {
	repo := &memoryJournalRepo{
		entries:  make(map[int64]Entry),
		lines:    make(map[int64][]Line),
		balances: make(map[int64][2]decimal.Decimal),
	}
	for _, id := range accountIDs {
		repo.balances[id] = [2]decimal.Decimal{decimal.Zero, decimal.Zero}
	}
	return repo
}

// WithTx runs fn against a snapshot and commits only on success, mirroring
// the rollback behaviour of the real store.
func (r *memoryJournalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	shadow := &memoryJournalRepo{
		entries:  make(map[int64]Entry, len(r.entries)),
		lines:    make(map[int64][]Line, len(r.lines)),
		balances: make(map[int64][2]decimal.Decimal, len(r.balances)),
		nextID:   r.nextID,
		nextLine: r.nextLine,
	}
	for id, e := range r.entries {
		shadow.entries[id] = e
	}
	for id, ls := range r.lines {
		shadow.lines[id] = append([]Line(nil), ls...)
	}
	for id, b := range r.balances {
		shadow.balances[id] = b
	}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	*r = *shadow
	return nil
}

func (r *memoryJournalRepo) InsertEntry(ctx context.Context, in PostingInput) (Entry, error) {
	debit, credit := in.Totals()
	r.nextID++
	entry := Entry{
		ID:          r.nextID,
		BranchID:    in.BranchID,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		TotalDebit:  debit,
		TotalCredit: credit,
		Status:      StatusPosted,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memoryJournalRepo) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, in := range lines {
		r.nextLine++
		line := Line{
			ID:          r.nextLine,
			EntryID:     entryID,
			AccountID:   in.AccountID,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Description: in.Description,
			CreatedAt:   time.Now(),
		}
		r.lines[entryID] = append(r.lines[entryID], line)
		out = append(out, line)
	}
	return out, nil
}

func (r *memoryJournalRepo) ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error {
	bal, ok := r.balances[accountID]
	if !ok {
		return ErrUnknownAccount
	}
	bal[0] = bal[0].Add(debit)
	bal[1] = bal[1].Add(credit)
	r.balances[accountID] = bal
	return nil
}

func (r *memoryJournalRepo) GetEntryWithLines(ctx context.Context, entryID int64) (Entry, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	entry.Lines = append([]Line(nil), r.lines[entryID]...)
	return entry, nil
}

func (r *memoryJournalRepo) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error) {
	var out []Entry
	for id := r.nextID; id >= 1; id-- {
		entry, ok := r.entries[id]
		if !ok {
			continue
		}
		if filter.BranchID != nil && (entry.BranchID == nil || *entry.BranchID != *filter.BranchID) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *memoryJournalRepo) ListUnbalanced(ctx context.Context) ([]IntegrityIssue, error) {
	var issues []IntegrityIssue
	for id := int64(1); id <= r.nextID; id++ {
		entry, ok := r.entries[id]
		if !ok {
			continue
		}
		lineDebit, lineCredit := decimal.Zero, decimal.Zero
		for _, line := range r.lines[id] {
			lineDebit = lineDebit.Add(line.Debit)
			lineCredit = lineCredit.Add(line.Credit)
		}
		if lineDebit.Equal(lineCredit) && lineDebit.Equal(entry.TotalDebit) && lineCredit.Equal(entry.TotalCredit) {
			continue
		}
		issues = append(issues, IntegrityIssue{
			EntryID:     entry.ID,
			TotalDebit:  entry.TotalDebit,
			TotalCredit: entry.TotalCredit,
			LineDebit:   lineDebit,
			LineCredit:  lineCredit,
		})
	}
	return issues, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func balanced(branchID *int64, debitAccount, creditAccount int64, amount int64) PostingInput {
	value := decimal.NewFromInt(amount)
	return PostingInput{
		BranchID:    branchID,
		Date:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Description: "test entry",
		Reference:   "T-1",
		Lines: []LineInput{
			{AccountID: debitAccount, Debit: value},
			{AccountID: creditAccount, Credit: value},
		},
	}
}

func TestPostEntryAppliesBalances(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	audit := &recordingAudit{}
	svc := NewService(repo, audit)

	entry, err := svc.PostEntry(context.Background(), balanced(nil, 1, 2, 250))
	require.NoError(t, err)
	require.Equal(t, StatusPosted, entry.Status)
	require.True(t, entry.TotalDebit.Equal(decimal.NewFromInt(250)))
	require.Len(t, entry.Lines, 2)

	require.True(t, repo.balances[1][0].Equal(decimal.NewFromInt(250)))
	require.True(t, repo.balances[2][1].Equal(decimal.NewFromInt(250)))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "journal.post", audit.logs[0].Action)
	require.Nil(t, audit.logs[0].BranchID)
}

func TestPostEntryRejectsUnbalanced(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	svc := NewService(repo, nil)

	_, err := svc.PostEntry(context.Background(), PostingInput{
		Description: "broken",
		Lines: []LineInput{
			{AccountID: 1, Debit: decimal.NewFromInt(100)},
			{AccountID: 2, Credit: decimal.NewFromInt(90)},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
}

func TestPostEntryRejectsSingleLine(t *testing.T) {
	svc := NewService(newMemoryJournalRepo(1), nil)
	_, err := svc.PostEntry(context.Background(), PostingInput{
		Lines: []LineInput{{AccountID: 1, Debit: decimal.NewFromInt(10)}},
	})
	require.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostEntryRejectsTwoSidedLine(t *testing.T) {
	svc := NewService(newMemoryJournalRepo(1, 2), nil)
	_, err := svc.PostEntry(context.Background(), PostingInput{
		Lines: []LineInput{
			{AccountID: 1, Debit: decimal.NewFromInt(10), Credit: decimal.NewFromInt(10)},
			{AccountID: 2, Debit: decimal.NewFromInt(10)},
		},
	})
	require.Error(t, err)
}

func TestPostBatchRollsBackOnUnknownAccount(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	svc := NewService(repo, nil)

	_, err := svc.PostBatch(context.Background(),
		balanced(nil, 1, 2, 100),
		balanced(nil, 1, 99, 50),
	)
	require.ErrorIs(t, err, ErrUnknownAccount)

	// The whole batch rolls back, including the valid first entry.
	require.Empty(t, repo.entries)
	require.True(t, repo.balances[1][0].IsZero())
	require.True(t, repo.balances[2][1].IsZero())
}

func TestListEntriesFiltersByBranch(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	svc := NewService(repo, nil)
	branch := int64(5)

	_, err := svc.PostEntry(context.Background(), balanced(&branch, 1, 2, 10))
	require.NoError(t, err)
	_, err = svc.PostEntry(context.Background(), balanced(nil, 1, 2, 20))
	require.NoError(t, err)

	entries, err := svc.ListEntries(context.Background(), ListFilter{BranchID: &branch})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].BranchID)
	require.EqualValues(t, branch, *entries[0].BranchID)
}

func TestScanIntegrityCleanLedger(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	svc := NewService(repo, nil)

	_, err := svc.PostEntry(context.Background(), balanced(nil, 1, 2, 75))
	require.NoError(t, err)

	issues, err := svc.ScanIntegrity(context.Background())
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestScanIntegrityFlagsTamperedEntry(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	svc := NewService(repo, nil)

	entry, err := svc.PostEntry(context.Background(), balanced(nil, 1, 2, 75))
	require.NoError(t, err)

	// Simulate an out-of-band write that breaks the stored totals.
	tampered := repo.entries[entry.ID]
	tampered.TotalDebit = decimal.NewFromInt(80)
	repo.entries[entry.ID] = tampered

	issues, err := svc.ScanIntegrity(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, entry.ID, issues[0].EntryID)
}

func TestPostEntryAuditRecordsBranchScope(t *testing.T) {
	repo := newMemoryJournalRepo(1, 2)
	audit := &recordingAudit{}
	svc := NewService(repo, audit)
	branch := int64(5)

	_, err := svc.PostEntry(context.Background(), balanced(&branch, 1, 2, 40))
	require.NoError(t, err)

	require.Len(t, audit.logs, 1)
	require.NotNil(t, audit.logs[0].BranchID)
	require.EqualValues(t, branch, *audit.logs[0].BranchID)
}
