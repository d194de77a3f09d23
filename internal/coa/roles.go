package coa

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Role names a well-known ledger account used by the event posters. Roles are
// resolved by a fixed code convention; a missing role means the chart of
// accounts was never provisioned correctly and the posting must abort.
type Role string

const (
	RoleCash                Role = "CASH"
	RoleAccountsReceivable  Role = "ACCOUNTS_RECEIVABLE"
	RoleInventory           Role = "INVENTORY"
	RoleInterBranchClearing Role = "INTER_BRANCH_CLEARING"
	RoleAccountsPayable     Role = "ACCOUNTS_PAYABLE"
	RoleTaxesPayable        Role = "TAXES_PAYABLE"
	RoleSalesRevenue        Role = "SALES_REVENUE"
	RoleSalesDiscounts      Role = "SALES_DISCOUNTS"
	RoleCOGS                Role = "COST_OF_GOODS_SOLD"
)

// roleCodes is the central code convention. Branch-scoped charts carry the
// same codes prefixed with "{branchID}-" by CloneChartForBranch.
var roleCodes = map[Role]string{
	RoleCash:                "1000",
	RoleAccountsReceivable:  "1100",
	RoleInventory:           "1200",
	RoleInterBranchClearing: "1300",
	RoleAccountsPayable:     "2000",
	RoleTaxesPayable:        "2100",
	RoleSalesRevenue:        "4000",
	RoleSalesDiscounts:      "4100",
	RoleCOGS:                "5000",
}

// ErrUnknownAccount indicates a well-known role could not be resolved. This is
// a configuration fault, never recoverable inside a posting.
var ErrUnknownAccount = errors.New("coa: well-known account not provisioned")

// RoleSet maps every role to a resolved account id for one branch scope.
type RoleSet map[Role]int64

// Account returns the account id bound to the role.
func (rs RoleSet) Account(role Role) (int64, error) {
	id, ok := rs[role]
	if !ok {
		return 0, fmt.Errorf("%w: role %s", ErrUnknownAccount, role)
	}
	return id, nil
}

// RoleCode returns the conventional code for a role within a branch scope.
func RoleCode(role Role, branchID *int64) (string, error) {
	code, ok := roleCodes[role]
	if !ok {
		return "", fmt.Errorf("%w: role %s", ErrUnknownAccount, role)
	}
	if branchID != nil {
		return fmt.Sprintf("%d-%s", *branchID, code), nil
	}
	return code, nil
}

// RoleRegistry resolves and caches role sets per branch scope.
type RoleRegistry struct {
	store *Service

	mu   sync.RWMutex
	sets map[string]RoleSet
}

// NewRoleRegistry constructs a registry over the chart of accounts store.
func NewRoleRegistry(store *Service) *RoleRegistry {
	return &RoleRegistry{store: store, sets: make(map[string]RoleSet)}
}

// ForBranch resolves the full role set for a branch scope, caching the result.
// Resolution fails fast with ErrUnknownAccount when any role is unmapped.
func (r *RoleRegistry) ForBranch(ctx context.Context, branchID *int64) (RoleSet, error) {
	key := scopeKey(branchID)
	r.mu.RLock()
	if set, ok := r.sets[key]; ok {
		r.mu.RUnlock()
		return set, nil
	}
	r.mu.RUnlock()

	set := make(RoleSet, len(roleCodes))
	for role := range roleCodes {
		code, err := RoleCode(role, branchID)
		if err != nil {
			return nil, err
		}
		account, err := r.store.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: role %s (code %s)", ErrUnknownAccount, role, code)
			}
			return nil, err
		}
		set[role] = account.ID
	}

	r.mu.Lock()
	r.sets[key] = set
	r.mu.Unlock()
	return set, nil
}

// Invalidate drops the cached set for a branch scope, e.g. after provisioning.
func (r *RoleRegistry) Invalidate(branchID *int64) {
	r.mu.Lock()
	delete(r.sets, scopeKey(branchID))
	r.mu.Unlock()
}

func scopeKey(branchID *int64) string {
	if branchID == nil {
		return "central"
	}
	return fmt.Sprintf("branch:%d", *branchID)
}
