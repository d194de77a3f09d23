package consol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed DBRepository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrReportNotFound indicates a missing report record.
var ErrReportNotFound = errors.New("consol: report not found")

// BranchFinancials sums sale and purchase totals for one branch in range.
func (r *Repository) BranchFinancials(ctx context.Context, branchID int64, start, end time.Time) (BranchFinancials, error) {
	fin := BranchFinancials{BranchID: branchID}
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE((SELECT SUM(total) FROM sales WHERE branch_id=$1 AND date BETWEEN $2 AND $3), 0),
  COALESCE((SELECT SUM(total) FROM purchases WHERE branch_id=$1 AND date BETWEEN $2 AND $3), 0)`,
		branchID, start, end).Scan(&fin.Revenue, &fin.Expenses)
	if err != nil {
		return BranchFinancials{}, err
	}
	return fin, nil
}

// AccountsForBranches projects the branch account trees with their category
// normal side and consolidation target metadata.
func (r *Repository) AccountsForBranches(ctx context.Context, branchIDs []int64) ([]AccountRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.branch_id, a.code, a.name, c.normal_side,
  a.consolidation_account_id, g.code, g.name, a.debit_balance, a.credit_balance
FROM accounts a
JOIN account_categories c ON c.id = a.category_id
LEFT JOIN accounts g ON g.id = a.consolidation_account_id
WHERE a.branch_id = ANY($1)
ORDER BY a.code`, branchIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountRow
	for rows.Next() {
		var row AccountRow
		if err := rows.Scan(&row.AccountID, &row.BranchID, &row.Code, &row.Name, &row.NormalSide,
			&row.ConsolidationID, &row.GroupCode, &row.GroupName, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListBranchIDs returns every branch that owns at least one account. The
// scheduled refresh uses it to consolidate the whole estate.
func (r *Repository) ListBranchIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT branch_id FROM accounts WHERE branch_id IS NOT NULL ORDER BY branch_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveReport persists the report with its aggregates as a JSON payload.
func (r *Repository) SaveReport(ctx context.Context, report Report) (Report, error) {
	payload, err := json.Marshal(struct {
		Summary Summary        `json:"summary"`
		Groups  []GroupBalance `json:"groups"`
	}{report.Summary, report.Groups})
	if err != nil {
		return Report{}, err
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO consolidation_reports (type, period, start_date, end_date, branch_ids, status, balanced, payload, generated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		report.Type, report.Period, report.Start, report.End, report.BranchIDs, report.Status, report.Balanced, payload, report.GeneratedAt)
	saved := report
	if err := row.Scan(&saved.ID, &saved.CreatedAt); err != nil {
		return Report{}, err
	}
	return saved, nil
}

// GetReport loads one report with its aggregates.
func (r *Repository) GetReport(ctx context.Context, id int64) (Report, error) {
	var report Report
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT id, type, period, start_date, end_date, branch_ids, status, balanced, payload, generated_at, created_at
FROM consolidation_reports WHERE id=$1`, id).
		Scan(&report.ID, &report.Type, &report.Period, &report.Start, &report.End, &report.BranchIDs, &report.Status, &report.Balanced, &payload, &report.GeneratedAt, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, err
	}
	var aggregates struct {
		Summary Summary        `json:"summary"`
		Groups  []GroupBalance `json:"groups"`
	}
	if err := json.Unmarshal(payload, &aggregates); err != nil {
		return Report{}, err
	}
	report.Summary = aggregates.Summary
	report.Groups = aggregates.Groups
	return report, nil
}

// ListReports returns report headers newest first. Aggregate payloads stay
// on disk; the list view only needs the header columns.
func (r *Repository) ListReports(ctx context.Context, period string) ([]Report, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, type, period, start_date, end_date, branch_ids, status, balanced, generated_at, created_at
FROM consolidation_reports
WHERE ($1 = '' OR period = $1)
ORDER BY generated_at DESC`, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var report Report
		if err := rows.Scan(&report.ID, &report.Type, &report.Period, &report.Start, &report.End,
			&report.BranchIDs, &report.Status, &report.Balanced, &report.GeneratedAt, &report.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}
