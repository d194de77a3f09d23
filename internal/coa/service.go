package coa

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service coordinates chart of accounts maintenance and balance mutation.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateCategory registers a new account category.
func (s *Service) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	if err := input.Validate(); err != nil {
		return Category{}, err
	}
	var created Category
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertCategory(ctx, input)
		return err
	})
	if err != nil {
		return Category{}, err
	}
	return created, nil
}

// CreateAccount registers a new account under an existing category.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCategory(ctx, input.CategoryID); err != nil {
			if errors.Is(err, ErrUnknownCategory) {
				return ErrUnknownCategory
			}
			return err
		}
		var err error
		created, err = tx.InsertAccount(ctx, input)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// GetByCode resolves an account by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, code)
		return err
	})
	return account, err
}

// ListAccounts returns the accounts scoped to one branch, or the central tree
// when branchID is nil.
func (s *Service) ListAccounts(ctx context.Context, branchID *int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccountsByBranch(ctx, branchID)
		return err
	})
	return accounts, err
}

// ApplyLine applies one journal line's effect to the account balance. The
// mutation is an atomic read-modify-write in the store.
func (s *Service) ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ApplyLine(ctx, accountID, debit, credit)
	})
}

// CloneChartForBranch provisions a branch chart of accounts by cloning the
// source tree (central tree when sourceBranchID is nil). Parents are created
// before children so parent references can be remapped level by level; each
// clone carries a consolidation link back to its source account.
func (s *Service) CloneChartForBranch(ctx context.Context, sourceBranchID *int64, targetBranchID int64) ([]Account, error) {
	if targetBranchID <= 0 {
		return nil, errors.New("coa: target branch required")
	}
	if sourceBranchID != nil && *sourceBranchID == targetBranchID {
		return nil, errors.New("coa: cannot clone a branch onto itself")
	}
	var created []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListAccountsByBranch(ctx, &targetBranchID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrBranchProvisioned
		}
		source, err := tx.ListAccountsByBranch(ctx, sourceBranchID)
		if err != nil {
			return err
		}
		ordered, err := orderByDepth(source)
		if err != nil {
			return err
		}
		idMap := make(map[int64]int64, len(ordered))
		created = make([]Account, 0, len(ordered))
		for _, src := range ordered {
			input := AccountInput{
				Code:                   fmt.Sprintf("%d-%s", targetBranchID, src.Code),
				Name:                   src.Name,
				CategoryID:             src.CategoryID,
				BranchID:               &targetBranchID,
				ConsolidationAccountID: ptrInt64(src.ID),
			}
			if src.ParentID != nil {
				mapped, ok := idMap[*src.ParentID]
				if !ok {
					return fmt.Errorf("coa: clone parent %d not created before child %s", *src.ParentID, src.Code)
				}
				input.ParentID = &mapped
			}
			clone, err := tx.InsertAccount(ctx, input)
			if err != nil {
				return err
			}
			idMap[src.ID] = clone.ID
			created = append(created, clone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// orderByDepth sorts accounts so every parent precedes its children.
func orderByDepth(accounts []Account) ([]Account, error) {
	byID := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	depths := make(map[int64]int, len(accounts))
	var depthOf func(id int64, hops int) (int, error)
	depthOf = func(id int64, hops int) (int, error) {
		if hops > len(accounts) {
			return 0, errors.New("coa: cycle in account tree")
		}
		if d, ok := depths[id]; ok {
			return d, nil
		}
		acc, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("coa: dangling parent reference %d", id)
		}
		if acc.ParentID == nil {
			depths[id] = 0
			return 0, nil
		}
		parentDepth, err := depthOf(*acc.ParentID, hops+1)
		if err != nil {
			return 0, err
		}
		depths[id] = parentDepth + 1
		return depths[id], nil
	}
	for _, a := range accounts {
		if _, err := depthOf(a.ID, 0); err != nil {
			return nil, err
		}
	}
	ordered := append([]Account(nil), accounts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := depths[ordered[i].ID], depths[ordered[j].ID]
		if di != dj {
			return di < dj
		}
		return ordered[i].Code < ordered[j].Code
	})
	return ordered, nil
}

func ptrInt64(v int64) *int64 {
	return &v
}
