package posting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TransferRepository persists inter-branch transfer records.
type TransferRepository interface {
	InsertTransfer(ctx context.Context, in InterBranchTransaction) (InterBranchTransaction, error)
	ListTransfers(ctx context.Context, branchID int64) ([]InterBranchTransaction, error)
}

// Repository is the pgx-backed TransferRepository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertTransfer(ctx context.Context, in InterBranchTransaction) (InterBranchTransaction, error) {
	if r == nil {
		return InterBranchTransaction{}, errors.New("posting repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO inter_branch_transactions
(from_branch_id, to_branch_id, from_account_id, to_account_id, from_entry_id, to_entry_id, amount, description, reference)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		in.FromBranchID, in.ToBranchID, in.FromAccountID, in.ToAccountID, in.FromEntryID, in.ToEntryID, in.Amount, in.Description, in.Reference)
	out := in
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return InterBranchTransaction{}, err
	}
	return out, nil
}

func (r *Repository) ListTransfers(ctx context.Context, branchID int64) ([]InterBranchTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, from_branch_id, to_branch_id, from_account_id, to_account_id, from_entry_id, to_entry_id, amount, description, reference, created_at
FROM inter_branch_transactions WHERE from_branch_id=$1 OR to_branch_id=$1 ORDER BY id DESC`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transfers []InterBranchTransaction
	for rows.Next() {
		var t InterBranchTransaction
		if err := rows.Scan(&t.ID, &t.FromBranchID, &t.ToBranchID, &t.FromAccountID, &t.ToAccountID, &t.FromEntryID, &t.ToEntryID, &t.Amount, &t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
