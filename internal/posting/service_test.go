package posting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/coa"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/journal"
)

const (
	cashID      = int64(1)
	arID        = int64(2)
	inventoryID = int64(3)
	clearingID  = int64(4)
	apID        = int64(5)
	taxID       = int64(6)
	revenueID   = int64(7)
	discountsID = int64(8)
	cogsID      = int64(9)
)

type fakeJournal struct {
	batches  [][]journal.PostingInput
	nextID   int64
	failOn   int // 1-based PostBatch call that fails, 0 means never
	failFrom int // every PostBatch call from this one on fails
	calls    int
}

func (j *fakeJournal) PostBatch(ctx context.Context, inputs ...journal.PostingInput) ([]journal.Entry, error) {
	j.calls++
	if (j.failOn > 0 && j.calls == j.failOn) || (j.failFrom > 0 && j.calls >= j.failFrom) {
		return nil, errors.New("journal unavailable")
	}
	j.batches = append(j.batches, inputs)
	entries := make([]journal.Entry, 0, len(inputs))
	for _, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, err
		}
		j.nextID++
		debit, credit := input.Totals()
		entry := journal.Entry{
			ID:          j.nextID,
			BranchID:    input.BranchID,
			Date:        input.Date,
			Description: input.Description,
			Reference:   input.Reference,
			TotalDebit:  debit,
			TotalCredit: credit,
			Status:      journal.StatusPosted,
		}
		for _, line := range input.Lines {
			entry.Lines = append(entry.Lines, journal.Line{
				AccountID:   line.AccountID,
				Debit:       line.Debit,
				Credit:      line.Credit,
				Description: line.Description,
			})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type fakeRoles struct{}

func (fakeRoles) ForBranch(ctx context.Context, branchID *int64) (coa.RoleSet, error) {
	return coa.RoleSet{
		coa.RoleCash:                cashID,
		coa.RoleAccountsReceivable:  arID,
		coa.RoleInventory:           inventoryID,
		coa.RoleInterBranchClearing: clearingID,
		coa.RoleAccountsPayable:     apID,
		coa.RoleTaxesPayable:        taxID,
		coa.RoleSalesRevenue:        revenueID,
		coa.RoleSalesDiscounts:      discountsID,
		coa.RoleCOGS:                cogsID,
	}, nil
}

type fakeInventory struct {
	costs     map[int64]decimal.Decimal
	movements []inventory.MovementInput
	fail      bool
	failOn    int // 1-based ApplyMovement call that fails, 0 means never
	calls     int
}

func (i *fakeInventory) ApplyMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	i.calls++
	if i.fail || (i.failOn > 0 && i.calls == i.failOn) {
		return inventory.Movement{}, inventory.ErrInsufficientStock
	}
	i.movements = append(i.movements, input)
	return inventory.Movement{
		ID:        int64(len(i.movements)),
		ProductID: input.ProductID,
		BranchID:  input.BranchID,
		Type:      input.Type,
		Qty:       input.Qty,
		UnitCost:  input.UnitCost,
		Reference: input.Reference,
	}, nil
}

func (i *fakeInventory) CurrentCost(ctx context.Context, productID int64) (decimal.Decimal, error) {
	cost, ok := i.costs[productID]
	if !ok {
		return decimal.Zero, inventory.ErrProductNotFound
	}
	return cost, nil
}

type fakeTransfers struct {
	records []InterBranchTransaction
	fail    bool
}

func (r *fakeTransfers) InsertTransfer(ctx context.Context, in InterBranchTransaction) (InterBranchTransaction, error) {
	if r.fail {
		return InterBranchTransaction{}, errors.New("insert failed")
	}
	in.ID = int64(len(r.records) + 1)
	r.records = append(r.records, in)
	return in, nil
}

func (r *fakeTransfers) ListTransfers(ctx context.Context, branchID int64) ([]InterBranchTransaction, error) {
	return r.records, nil
}

func lineFor(t *testing.T, entry journal.Entry, accountID int64) journal.Line {
	t.Helper()
	for _, line := range entry.Lines {
		if line.AccountID == accountID {
			return line
		}
	}
	t.Fatalf("no line for account %d", accountID)
	return journal.Line{}
}

func TestPostSaleCashWithDiscountAndTax(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{costs: map[int64]decimal.Decimal{10: decimal.NewFromInt(40)}}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})

	result, err := svc.PostSale(context.Background(), Sale{
		Invoice:  "INV-1",
		Date:     time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		Total:    decimal.NewFromInt(1000),
		Discount: decimal.NewFromInt(50),
		Tax:      decimal.NewFromInt(75),
		Items: []SaleItem{
			{ProductID: 10, Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(200)},
		},
	})
	require.NoError(t, err)

	// Net = total - discount + tax lands on cash because no client is named.
	revenue := result.RevenueEntry
	require.True(t, lineFor(t, revenue, cashID).Debit.Equal(decimal.NewFromInt(1025)))
	require.True(t, lineFor(t, revenue, revenueID).Credit.Equal(decimal.NewFromInt(1000)))
	require.True(t, lineFor(t, revenue, discountsID).Debit.Equal(decimal.NewFromInt(50)))
	require.True(t, lineFor(t, revenue, taxID).Credit.Equal(decimal.NewFromInt(75)))
	require.True(t, revenue.TotalDebit.Equal(revenue.TotalCredit))

	// COGS uses current cost: 5 * 40 = 200.
	require.NotNil(t, result.COGSEntry)
	require.True(t, result.COGS.Equal(decimal.NewFromInt(200)))
	require.True(t, lineFor(t, *result.COGSEntry, cogsID).Debit.Equal(decimal.NewFromInt(200)))
	require.True(t, lineFor(t, *result.COGSEntry, inventoryID).Credit.Equal(decimal.NewFromInt(200)))

	// Both entries went out in one batch.
	require.Len(t, fj.batches, 1)
	require.Len(t, fj.batches[0], 2)

	require.Len(t, inv.movements, 1)
	require.Equal(t, inventory.MovementTypeSale, inv.movements[0].Type)
	require.True(t, inv.movements[0].Qty.Equal(decimal.NewFromInt(-5)))
}

func TestPostSaleOnCreditDebitsReceivable(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{costs: map[int64]decimal.Decimal{}}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})
	client := int64(77)

	result, err := svc.PostSale(context.Background(), Sale{
		ClientID: &client,
		Invoice:  "INV-2",
		Date:     time.Now(),
		Total:    decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	require.True(t, lineFor(t, result.RevenueEntry, arID).Debit.Equal(decimal.NewFromInt(300)))
	require.Nil(t, result.COGSEntry)
	require.True(t, result.COGS.IsZero())
}

func TestPostSaleMovementFailureCompensates(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{
		costs: map[int64]decimal.Decimal{10: decimal.NewFromInt(40)},
		fail:  true,
	}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})

	_, err := svc.PostSale(context.Background(), Sale{
		Invoice: "INV-3",
		Date:    time.Now(),
		Total:   decimal.NewFromInt(100),
		Items: []SaleItem{
			{ProductID: 10, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
		},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// First batch posted the entries, second batch reversed them.
	require.Len(t, fj.batches, 2)
	original := fj.batches[0][0]
	reversal := fj.batches[1][0]
	require.Len(t, reversal.Lines, len(original.Lines))
	for i, line := range reversal.Lines {
		require.True(t, line.Debit.Equal(original.Lines[i].Credit))
		require.True(t, line.Credit.Equal(original.Lines[i].Debit))
	}
}

func TestPostPurchaseSupplierUsesPayable(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{costs: map[int64]decimal.Decimal{}}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})
	supplier := int64(12)

	result, err := svc.PostPurchase(context.Background(), Purchase{
		SupplierID: &supplier,
		Reference:  "PO-1",
		Date:       time.Now(),
		Total:      decimal.NewFromInt(400),
		Items: []PurchaseItem{
			{ProductID: 20, Qty: decimal.NewFromInt(8), UnitCost: decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)
	require.True(t, lineFor(t, result.Entry, inventoryID).Debit.Equal(decimal.NewFromInt(400)))
	require.True(t, lineFor(t, result.Entry, apID).Credit.Equal(decimal.NewFromInt(400)))

	require.Len(t, inv.movements, 1)
	require.Equal(t, inventory.MovementTypePurchase, inv.movements[0].Type)
	require.True(t, inv.movements[0].Qty.Equal(decimal.NewFromInt(8)))
}

func TestPostTransferLinksBothLegs(t *testing.T) {
	fj := &fakeJournal{}
	transfers := &fakeTransfers{}
	svc := NewService(fj, fakeRoles{}, &fakeInventory{}, transfers)

	record, err := svc.PostTransfer(context.Background(), TransferInput{
		FromBranchID:  1,
		ToBranchID:    2,
		FromAccountID: 100,
		ToAccountID:   200,
		Amount:        decimal.NewFromInt(500),
		Description:   "cash top-up",
		Date:          time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.Reference)
	require.NotZero(t, record.FromEntryID)
	require.NotZero(t, record.ToEntryID)
	require.NotEqual(t, record.FromEntryID, record.ToEntryID)

	// Each leg is its own balanced batch sharing the reference.
	require.Len(t, fj.batches, 2)
	for _, batch := range fj.batches {
		require.Len(t, batch, 1)
		leg := batch[0]
		require.Equal(t, record.Reference, leg.Reference)
		debit, credit := leg.Totals()
		require.True(t, debit.Equal(credit))
	}

	fromLeg := fj.batches[0][0]
	require.True(t, lineFor(t, journal.Entry{Lines: toLines(fromLeg)}, clearingID).Debit.Equal(decimal.NewFromInt(500)))
	require.True(t, lineFor(t, journal.Entry{Lines: toLines(fromLeg)}, 100).Credit.Equal(decimal.NewFromInt(500)))

	toLeg := fj.batches[1][0]
	require.True(t, lineFor(t, journal.Entry{Lines: toLines(toLeg)}, 200).Debit.Equal(decimal.NewFromInt(500)))
	require.True(t, lineFor(t, journal.Entry{Lines: toLines(toLeg)}, clearingID).Credit.Equal(decimal.NewFromInt(500)))

	require.Len(t, transfers.records, 1)
}

func toLines(input journal.PostingInput) []journal.Line {
	lines := make([]journal.Line, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, journal.Line{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit})
	}
	return lines
}

func TestPostTransferSecondLegFailureCompensates(t *testing.T) {
	fj := &fakeJournal{failOn: 2}
	transfers := &fakeTransfers{}
	svc := NewService(fj, fakeRoles{}, &fakeInventory{}, transfers)

	_, err := svc.PostTransfer(context.Background(), TransferInput{
		FromBranchID:  1,
		ToBranchID:    2,
		FromAccountID: 100,
		ToAccountID:   200,
		Amount:        decimal.NewFromInt(500),
		Date:          time.Now(),
	})
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	require.Equal(t, TransferLegTo, transferErr.Leg)

	// First leg committed then reversed; nothing recorded.
	require.Len(t, fj.batches, 2)
	reversal := fj.batches[1][0]
	original := fj.batches[0][0]
	for i, line := range reversal.Lines {
		require.True(t, line.Debit.Equal(original.Lines[i].Credit))
		require.True(t, line.Credit.Equal(original.Lines[i].Debit))
	}
	require.Empty(t, transfers.records)
}

func TestPostTransferRecordFailureCompensatesBothLegs(t *testing.T) {
	fj := &fakeJournal{}
	transfers := &fakeTransfers{fail: true}
	svc := NewService(fj, fakeRoles{}, &fakeInventory{}, transfers)

	_, err := svc.PostTransfer(context.Background(), TransferInput{
		FromBranchID:  1,
		ToBranchID:    2,
		FromAccountID: 100,
		ToAccountID:   200,
		Amount:        decimal.NewFromInt(500),
		Date:          time.Now(),
	})
	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	require.Equal(t, TransferLegRecord, transferErr.Leg)

	// Two leg batches plus one reversal batch covering both entries.
	require.Len(t, fj.batches, 3)
	require.Len(t, fj.batches[2], 2)
}

func TestPostTransferRejectsSameBranch(t *testing.T) {
	svc := NewService(&fakeJournal{}, fakeRoles{}, &fakeInventory{}, &fakeTransfers{})
	_, err := svc.PostTransfer(context.Background(), TransferInput{
		FromBranchID:  3,
		ToBranchID:    3,
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        decimal.NewFromInt(10),
	})
	require.Error(t, err)
}

func TestPostSaleLaterMovementFailureReversesAppliedStock(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{
		costs: map[int64]decimal.Decimal{
			10: decimal.NewFromInt(40),
			11: decimal.NewFromInt(25),
		},
		failOn: 2,
	}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})

	_, err := svc.PostSale(context.Background(), Sale{
		Invoice: "INV-7",
		Date:    time.Now(),
		Total:   decimal.NewFromInt(300),
		Items: []SaleItem{
			{ProductID: 10, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
			{ProductID: 11, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100)},
		},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// Journal entries were reversed.
	require.Len(t, fj.batches, 2)

	// The first item's sale movement is offset by an adjustment so the
	// product's net quantity change is zero.
	require.Len(t, inv.movements, 2)
	applied := inv.movements[0]
	require.Equal(t, int64(10), applied.ProductID)
	require.Equal(t, inventory.MovementTypeSale, applied.Type)
	offset := inv.movements[1]
	require.Equal(t, int64(10), offset.ProductID)
	require.Equal(t, inventory.MovementTypeAdjust, offset.Type)
	require.True(t, offset.Qty.Equal(applied.Qty.Neg()))
	require.True(t, applied.Qty.Add(offset.Qty).IsZero())
}

func TestPostPurchaseLaterMovementFailureReversesAppliedStock(t *testing.T) {
	fj := &fakeJournal{}
	inv := &fakeInventory{failOn: 2}
	svc := NewService(fj, fakeRoles{}, inv, &fakeTransfers{})

	_, err := svc.PostPurchase(context.Background(), Purchase{
		Reference: "PO-4",
		Date:      time.Now(),
		Total:     decimal.NewFromInt(90),
		Items: []PurchaseItem{
			{ProductID: 10, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(40)},
			{ProductID: 11, Qty: decimal.NewFromInt(2), UnitCost: decimal.NewFromInt(25)},
		},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Len(t, fj.batches, 2)

	require.Len(t, inv.movements, 2)
	offset := inv.movements[1]
	require.Equal(t, int64(10), offset.ProductID)
	require.Equal(t, inventory.MovementTypeAdjust, offset.Type)
	require.True(t, offset.Qty.Equal(inv.movements[0].Qty.Neg()))
}

func TestPostTransferSurfacesCompensationFailure(t *testing.T) {
	fj := &fakeJournal{failFrom: 2}
	svc := NewService(fj, fakeRoles{}, &fakeInventory{}, &fakeTransfers{})

	_, err := svc.PostTransfer(context.Background(), TransferInput{
		FromBranchID:  1,
		ToBranchID:    2,
		FromAccountID: cashID,
		ToAccountID:   cashID,
		Amount:        decimal.NewFromInt(100),
		Date:          time.Now(),
	})

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	require.Equal(t, TransferLegTo, transferErr.Leg)
	require.Error(t, transferErr.CompensationErr)
	require.Contains(t, err.Error(), "compensation also failed")
}
