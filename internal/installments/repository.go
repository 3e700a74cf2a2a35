package installments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/urcash/urcash/internal/moneybox"
	"github.com/urcash/urcash/internal/platform/db"
	"github.com/urcash/urcash/internal/products"
	"github.com/urcash/urcash/internal/shared"
)

// Repository persists installments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const selectInstallment = `SELECT i.id, i.sale_id, i.customer_id, i.amount, i.paid_amount, i.due_date, i.paid_at,
	i.payment_status, i.payment_method, COALESCE(i.notes, ''), COALESCE(c.name, ''), COALESCE(c.phone, ''),
	COALESCE(s.invoice_no, ''), i.created_at, i.updated_at
FROM installments i
LEFT JOIN customers c ON c.id = i.customer_id
LEFT JOIN sales s ON s.id = i.sale_id`

// Get loads one installment with its customer and invoice.
func (r *Repository) Get(ctx context.Context, id int64) (Installment, error) {
	return getInstallment(ctx, r.pool, id, false)
}

// Delete removes one installment.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM installments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrouped pages plans by sale. The page count and the page of sale ids
// are queried concurrently; installments for the page are then loaded and
// grouped in page order.
func (r *Repository) ListGrouped(ctx context.Context, q GroupedQuery) (GroupedPage, error) {
	q = q.Normalize()
	where, having, args := groupedFilter(q)
	grouped := `SELECT i.sale_id, MIN(i.created_at) AS first_created
FROM installments i
LEFT JOIN customers c ON c.id = i.customer_id
LEFT JOIN sales s ON s.id = i.sale_id` + where + `
GROUP BY i.sale_id` + having

	var total int
	var saleIDs []int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM (`+grouped+`) t`, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
		n := len(args)
		rows, err := r.pool.Query(gctx, `SELECT sale_id FROM (`+grouped+`) t ORDER BY first_created DESC, sale_id DESC LIMIT $`+
			strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			saleIDs = append(saleIDs, id)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return GroupedPage{}, fmt.Errorf("installments: list grouped: %w", err)
	}

	pager := shared.NewPagination(q.Page, q.Limit, total)
	page := GroupedPage{Items: []Plan{}, Page: pager.Page, Limit: pager.Limit, Total: pager.Total, TotalPages: pager.TotalPages}
	if len(saleIDs) == 0 {
		return page, nil
	}
	items, err := queryInstallments(ctx, r.pool, selectInstallment+` WHERE i.sale_id = ANY($1) ORDER BY i.due_date, i.id`, saleIDs)
	if err != nil {
		return GroupedPage{}, fmt.Errorf("installments: load page: %w", err)
	}
	bySale := make(map[int64]Plan)
	for _, p := range GroupInstallments(items) {
		bySale[p.SaleID] = p
	}
	for _, id := range saleIDs {
		if p, ok := bySale[id]; ok {
			page.Items = append(page.Items, p)
		}
	}
	return page, nil
}

func groupedFilter(q GroupedQuery) (where, having string, args []any) {
	var conds []string
	if q.CustomerID != 0 {
		args = append(args, q.CustomerID)
		conds = append(conds, "i.customer_id = $"+strconv.Itoa(len(args)))
	}
	for _, term := range strings.Fields(q.Search) {
		args = append(args, "%"+term+"%")
		n := "$" + strconv.Itoa(len(args))
		conds = append(conds, "(c.name ILIKE "+n+" OR c.phone ILIKE "+n+" OR s.invoice_no ILIKE "+n+" OR i.sale_id::text ILIKE "+n+")")
	}
	if len(conds) > 0 {
		where = "\nWHERE " + strings.Join(conds, " AND ")
	}
	if q.PaymentStatus != "" {
		args = append(args, string(q.PaymentStatus))
		having = "\nHAVING (CASE WHEN SUM(i.paid_amount) <= 0 THEN 'unpaid' WHEN SUM(i.paid_amount) >= SUM(i.amount) THEN 'paid' ELSE 'partial' END) = $" + strconv.Itoa(len(args))
	}
	return where, having, args
}

// OverdueByCustomer aggregates unpaid installments due on or before cutoff.
func (r *Repository) OverdueByCustomer(ctx context.Context, cutoff Date) ([]CustomerOverdue, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.customer_id, COALESCE(c.name, ''), COUNT(*), SUM(GREATEST(i.amount - i.paid_amount, 0)), MIN(i.due_date)
FROM installments i
LEFT JOIN customers c ON c.id = i.customer_id
WHERE i.due_date <= $1 AND i.payment_status <> 'paid'
GROUP BY i.customer_id, c.name
ORDER BY COUNT(*) DESC, i.customer_id`, cutoff.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CustomerOverdue
	for rows.Next() {
		var o CustomerOverdue
		var oldest pgtype.Date
		if err := rows.Scan(&o.CustomerID, &o.CustomerName, &o.Count, &o.Outstanding, &oldest); err != nil {
			return nil, err
		}
		if oldest.Valid {
			o.OldestDue = NewDate(oldest.Time)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *txRepo) LockProducts(ctx context.Context, ids []int64) (map[int64]products.Product, error) {
	return products.LockMany(ctx, t.tx, ids)
}

func (t *txRepo) DecrementStock(ctx context.Context, productID int64, qty float64) error {
	err := products.DecrementStock(ctx, t.tx, productID, qty)
	if errors.Is(err, products.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}

func (t *txRepo) CreateSale(ctx context.Context, in SaleInput) (Sale, error) {
	sale := Sale{InvoiceNo: in.InvoiceNo}
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (invoice_no, customer_id, invoice_date, total_amount, paid_amount, payment_method, payment_status, payment_type, notes, created_by, created_at)
		VALUES ($1, $2, CURRENT_DATE, $3, 0, $4, 'unpaid', 'installment', $5, NULLIF($6, 0), NOW())
		RETURNING id, (SELECT COALESCE(name, '') FROM customers WHERE id = $2)`,
		in.InvoiceNo, in.CustomerID, in.Total, string(in.PaymentMethod), in.Notes, in.ActorID).Scan(&sale.ID, &sale.CustomerName)
	if err != nil {
		return Sale{}, fmt.Errorf("installments: create sale: %w", err)
	}
	batch := &pgx.Batch{}
	for _, line := range in.Lines {
		batch.Queue(`INSERT INTO sale_items (sale_id, product_id, quantity, price, total) VALUES ($1, $2, $3, $4, $5)`,
			sale.ID, line.ProductID, line.Quantity, line.Price, line.Quantity*line.Price)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Sale{}, fmt.Errorf("installments: insert sale items: %w", err)
	}
	return sale, nil
}

func (t *txRepo) InsertInstallments(ctx context.Context, rows []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(rows))
	for _, row := range rows {
		inst := row
		err := t.tx.QueryRow(ctx, `INSERT INTO installments (sale_id, customer_id, amount, paid_amount, due_date, paid_at, payment_status, payment_method, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			row.SaleID, row.CustomerID, row.Amount, row.PaidAmount, row.DueDate.Time, row.PaidAt,
			string(row.PaymentStatus), string(row.PaymentMethod), row.Notes).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("installments: insert: %w", err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Installment, error) {
	return getInstallment(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateInstallment(ctx context.Context, inst Installment) (Installment, error) {
	err := t.tx.QueryRow(ctx, `UPDATE installments SET sale_id = $2, customer_id = $3, amount = $4, paid_amount = $5, due_date = $6,
		paid_at = $7, payment_status = $8, payment_method = $9, notes = $10, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		inst.ID, inst.SaleID, inst.CustomerID, inst.Amount, inst.PaidAmount, inst.DueDate.Time, inst.PaidAt,
		string(inst.PaymentStatus), string(inst.PaymentMethod), inst.Notes).Scan(&inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, ErrNotFound
	}
	if err != nil {
		return Installment{}, fmt.Errorf("installments: update: %w", err)
	}
	return inst, nil
}

func (t *txRepo) Deposit(ctx context.Context, in moneybox.DepositInput) (moneybox.Transaction, error) {
	return moneybox.Deposit(ctx, t.tx, in)
}

func (t *txRepo) NextReceiptSeq(ctx context.Context, day Date) (int64, error) {
	var seq int64
	start := day.Time
	end := start.AddDate(0, 0, 1)
	// Serialises receipt numbering for the day.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, start.Unix()); err != nil {
		return 0, err
	}
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM installment_receipts WHERE created_at >= $1 AND created_at < $2`, start, end).Scan(&seq)
	return seq, err
}

func (t *txRepo) InsertReceipt(ctx context.Context, r Receipt) (Receipt, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO installment_receipts (receipt_number, installment_id, amount, payment_method, money_box_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.ReceiptNumber, r.InstallmentID, r.Amount, string(r.PaymentMethod), r.MoneyBoxID, r.Notes, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("installments: insert receipt: %w", err)
	}
	return r, nil
}

func getInstallment(ctx context.Context, q db.Querier, id int64, lock bool) (Installment, error) {
	sql := selectInstallment + ` WHERE i.id = $1`
	if lock {
		sql += ` FOR UPDATE OF i`
	}
	items, err := queryInstallments(ctx, q, sql, id)
	if err != nil {
		return Installment{}, err
	}
	if len(items) == 0 {
		return Installment{}, ErrNotFound
	}
	return items[0], nil
}

func queryInstallments(ctx context.Context, q db.Querier, sql string, args ...any) ([]Installment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		var inst Installment
		var due pgtype.Date
		var paidAt pgtype.Timestamptz
		var status, method string
		if err := rows.Scan(&inst.ID, &inst.SaleID, &inst.CustomerID, &inst.Amount, &inst.PaidAmount, &due, &paidAt,
			&status, &method, &inst.Notes, &inst.CustomerName, &inst.CustomerPhone, &inst.InvoiceNo,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		if due.Valid {
			inst.DueDate = NewDate(due.Time)
		}
		if paidAt.Valid {
			t := paidAt.Time.UTC()
			inst.PaidAt = &t
		}
		inst.PaymentStatus = PaymentStatus(status)
		inst.PaymentMethod = PaymentMethod(method)
		out = append(out, inst)
	}
	return out, rows.Err()
}
