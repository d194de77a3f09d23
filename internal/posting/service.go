package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/coa"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/journal"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// JournalPort is the slice of the journal engine the posters need.
type JournalPort interface {
	PostBatch(ctx context.Context, inputs ...journal.PostingInput) ([]journal.Entry, error)
}

// RolePort resolves well-known account roles per branch scope.
type RolePort interface {
	ForBranch(ctx context.Context, branchID *int64) (coa.RoleSet, error)
}

// InventoryPort is the slice of the inventory service the posters need.
type InventoryPort interface {
	ApplyMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
	CurrentCost(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// Service translates domain events into balanced journal entries.
type Service struct {
	journal   JournalPort
	roles     RolePort
	inventory InventoryPort
	transfers TransferRepository
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewService constructs the event poster service.
func NewService(journalSvc JournalPort, roles RolePort, inventorySvc InventoryPort, transfers TransferRepository) *Service {
	return &Service{journal: journalSvc, roles: roles, inventory: inventorySvc, transfers: transfers, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches posting counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

func (s *Service) markPosted(event string, entries int) {
	if s.metrics != nil {
		s.metrics.EntriesPosted.WithLabelValues(event).Add(float64(entries))
	}
}

// SaleResult reports the ledger artifacts produced by one sale.
type SaleResult struct {
	RevenueEntry journal.Entry
	COGSEntry    *journal.Entry
	COGS         decimal.Decimal
	Movements    []inventory.Movement
}

// PostSale posts the revenue entry and, when item costs resolve to a positive
// amount, a second cost-of-goods-sold entry, then applies the stock
// movements. Both entries commit in one batch; if a stock movement fails the
// batch is compensated with reversing entries.
//
// Item cost is the product's current purchase price at posting time, not a
// snapshot taken when the sale happened.
func (s *Service) PostSale(ctx context.Context, sale Sale) (SaleResult, error) {
	if err := sale.Validate(); err != nil {
		return SaleResult{}, err
	}
	roles, err := s.roles.ForBranch(ctx, sale.BranchID)
	if err != nil {
		return SaleResult{}, err
	}
	net := sale.Total.Sub(sale.Discount).Add(sale.Tax)

	receivableRole := coa.RoleCash
	if sale.ClientID != nil {
		receivableRole = coa.RoleAccountsReceivable
	}
	receivable, err := roles.Account(receivableRole)
	if err != nil {
		return SaleResult{}, err
	}
	revenue, err := roles.Account(coa.RoleSalesRevenue)
	if err != nil {
		return SaleResult{}, err
	}
	revenueLines := []journal.LineInput{
		{AccountID: receivable, Debit: net, Description: "Sale " + sale.Invoice},
		{AccountID: revenue, Credit: sale.Total, Description: "Sales revenue"},
	}
	if sale.Discount.IsPositive() {
		discounts, err := roles.Account(coa.RoleSalesDiscounts)
		if err != nil {
			return SaleResult{}, err
		}
		revenueLines = append(revenueLines, journal.LineInput{AccountID: discounts, Debit: sale.Discount, Description: "Sales discount"})
	}
	if sale.Tax.IsPositive() {
		taxes, err := roles.Account(coa.RoleTaxesPayable)
		if err != nil {
			return SaleResult{}, err
		}
		revenueLines = append(revenueLines, journal.LineInput{AccountID: taxes, Credit: sale.Tax, Description: "Sales tax"})
	}

	inputs := []journal.PostingInput{{
		BranchID:    sale.BranchID,
		Date:        sale.Date,
		Description: "Sale " + sale.Invoice,
		Reference:   sale.Invoice,
		Lines:       revenueLines,
	}}

	costs := make(map[int64]decimal.Decimal, len(sale.Items))
	cogs := decimal.Zero
	for _, item := range sale.Items {
		cost, err := s.inventory.CurrentCost(ctx, item.ProductID)
		if err != nil {
			return SaleResult{}, err
		}
		costs[item.ProductID] = cost
		cogs = cogs.Add(item.Qty.Mul(cost))
	}
	if cogs.IsPositive() {
		cogsAccount, err := roles.Account(coa.RoleCOGS)
		if err != nil {
			return SaleResult{}, err
		}
		inventoryAccount, err := roles.Account(coa.RoleInventory)
		if err != nil {
			return SaleResult{}, err
		}
		inputs = append(inputs, journal.PostingInput{
			BranchID:    sale.BranchID,
			Date:        sale.Date,
			Description: "COGS for sale " + sale.Invoice,
			Reference:   sale.Invoice,
			Lines: []journal.LineInput{
				{AccountID: cogsAccount, Debit: cogs, Description: "Cost of goods sold"},
				{AccountID: inventoryAccount, Credit: cogs, Description: "Inventory relief"},
			},
		})
	}

	entries, err := s.journal.PostBatch(ctx, inputs...)
	if err != nil {
		return SaleResult{}, err
	}

	result := SaleResult{RevenueEntry: entries[0], COGS: cogs}
	if len(entries) > 1 {
		result.COGSEntry = &entries[1]
	}
	for _, item := range sale.Items {
		movement, err := s.inventory.ApplyMovement(ctx, inventory.MovementInput{
			ProductID:  item.ProductID,
			BranchID:   sale.BranchID,
			Type:       inventory.MovementTypeSale,
			Qty:        item.Qty.Neg(),
			UnitCost:   costs[item.ProductID],
			Reference:  sale.Invoice,
			OccurredAt: sale.Date,
		})
		if err != nil {
			err = fmt.Errorf("posting: sale stock movement: %w", err)
			return SaleResult{}, errors.Join(err, s.compensate(ctx, entries), s.reverseMovements(ctx, result.Movements))
		}
		result.Movements = append(result.Movements, movement)
	}
	s.markPosted("sale", len(entries))
	return result, nil
}

// PurchaseResult reports the ledger artifacts produced by one purchase.
type PurchaseResult struct {
	Entry     journal.Entry
	Movements []inventory.Movement
}

// PostPurchase posts inventory against payable (supplier present) or cash,
// then applies the inbound stock movements.
func (s *Service) PostPurchase(ctx context.Context, purchase Purchase) (PurchaseResult, error) {
	if err := purchase.Validate(); err != nil {
		return PurchaseResult{}, err
	}
	roles, err := s.roles.ForBranch(ctx, purchase.BranchID)
	if err != nil {
		return PurchaseResult{}, err
	}
	inventoryAccount, err := roles.Account(coa.RoleInventory)
	if err != nil {
		return PurchaseResult{}, err
	}
	counterRole := coa.RoleCash
	if purchase.SupplierID != nil {
		counterRole = coa.RoleAccountsPayable
	}
	counter, err := roles.Account(counterRole)
	if err != nil {
		return PurchaseResult{}, err
	}

	entries, err := s.journal.PostBatch(ctx, journal.PostingInput{
		BranchID:    purchase.BranchID,
		Date:        purchase.Date,
		Description: "Purchase " + purchase.Reference,
		Reference:   purchase.Reference,
		Lines: []journal.LineInput{
			{AccountID: inventoryAccount, Debit: purchase.Total, Description: "Inventory received"},
			{AccountID: counter, Credit: purchase.Total, Description: "Purchase settlement"},
		},
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	result := PurchaseResult{Entry: entries[0]}
	for _, item := range purchase.Items {
		movement, err := s.inventory.ApplyMovement(ctx, inventory.MovementInput{
			ProductID:  item.ProductID,
			BranchID:   purchase.BranchID,
			Type:       inventory.MovementTypePurchase,
			Qty:        item.Qty,
			UnitCost:   item.UnitCost,
			Reference:  purchase.Reference,
			OccurredAt: purchase.Date,
		})
		if err != nil {
			err = fmt.Errorf("posting: purchase stock movement: %w", err)
			return PurchaseResult{}, errors.Join(err, s.compensate(ctx, entries), s.reverseMovements(ctx, result.Movements))
		}
		result.Movements = append(result.Movements, movement)
	}
	s.markPosted("purchase", len(entries))
	return result, nil
}

// compensate posts reversing entries for already-committed postings. The
// reversal batch is all-or-nothing; when it fails the original entries are
// still standing and the returned error says so.
func (s *Service) compensate(ctx context.Context, entries []journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	inputs := make([]journal.PostingInput, 0, len(entries))
	for _, entry := range entries {
		input := journal.PostingInput{
			BranchID:    entry.BranchID,
			Date:        s.now(),
			Description: fmt.Sprintf("Reversal of entry %d", entry.ID),
			Reference:   entry.Reference,
		}
		for _, line := range entry.Lines {
			input.Lines = append(input.Lines, journal.LineInput{
				AccountID:   line.AccountID,
				Debit:       line.Credit,
				Credit:      line.Debit,
				Description: "Reversal: " + line.Description,
			})
		}
		inputs = append(inputs, input)
	}
	if s.metrics != nil {
		s.metrics.CompensationsRun.Inc()
	}
	if _, err := s.journal.PostBatch(ctx, inputs...); err != nil {
		return fmt.Errorf("posting: compensation batch: %w", err)
	}
	return nil
}

// reverseMovements undoes stock movements that were applied before a later
// step failed. Each reversal is an offsetting adjustment so the movement
// trail stays append-only.
func (s *Service) reverseMovements(ctx context.Context, movements []inventory.Movement) error {
	var errs []error
	for _, m := range movements {
		_, err := s.inventory.ApplyMovement(ctx, inventory.MovementInput{
			ProductID:  m.ProductID,
			BranchID:   m.BranchID,
			Type:       inventory.MovementTypeAdjust,
			Qty:        m.Qty.Neg(),
			UnitCost:   m.UnitCost,
			Reference:  m.Reference,
			Note:       "Reversal of failed posting",
			OccurredAt: s.now(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("posting: reverse movement for product %d: %w", m.ProductID, err))
		}
	}
	return errors.Join(errs...)
}
