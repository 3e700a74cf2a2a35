package debts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads debts from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectDebt = `SELECT d.id, d.sale_id, d.customer_id, COALESCE(c.name, ''), COALESCE(s.invoice_no, ''),
	d.remaining_amount, d.due_date, d.status,
	(SELECT COUNT(*) FROM installments i WHERE i.sale_id = d.sale_id)
FROM debts d
LEFT JOIN customers c ON c.id = d.customer_id
LEFT JOIN sales s ON s.id = d.sale_id`

// Get loads one debt.
func (r *Repository) Get(ctx context.Context, id int64) (Debt, error) {
	d, err := scanDebt(r.pool.QueryRow(ctx, selectDebt+` WHERE d.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Debt{}, ErrNotFound
	}
	return d, err
}

// ListByCustomer returns a customer's debts, oldest due date first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]Debt, error) {
	rows, err := r.pool.Query(ctx, selectDebt+` WHERE d.customer_id = $1 ORDER BY d.due_date, d.id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func scanDebt(row pgx.Row) (Debt, error) {
	var d Debt
	var status string
	err := row.Scan(&d.ID, &d.SaleID, &d.CustomerID, &d.CustomerName, &d.InvoiceNo,
		&d.RemainingAmount, &d.DueDate, &status, &d.InstallmentsCount)
	if err != nil {
		return Debt{}, err
	}
	d.Status = Status(status)
	return d, nil
}
