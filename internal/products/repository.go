package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urcash/urcash/internal/platform/db"
)

// Repository reads products from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectProduct = `SELECT id, name, current_stock, selling_price FROM products`

// Get loads one product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanOne(r.pool.QueryRow(ctx, selectProduct+` WHERE id = $1`, id))
}

// GetMany loads the listed products. Unknown ids are absent from the result.
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return queryProducts(ctx, r.pool, selectProduct+` WHERE id = ANY($1) ORDER BY id`, ids)
}

// ListInStock returns products with positive stock, by name.
func (r *Repository) ListInStock(ctx context.Context) ([]Product, error) {
	return queryProducts(ctx, r.pool, selectProduct+` WHERE current_stock > 0 ORDER BY name`)
}

// LockMany loads and row-locks the listed products inside a transaction.
func LockMany(ctx context.Context, q db.Querier, ids []int64) (map[int64]Product, error) {
	list, err := queryProducts(ctx, q, selectProduct+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return Index(list), nil
}

// DecrementStock lowers current_stock by qty.
func DecrementStock(ctx context.Context, q db.Querier, id int64, qty float64) error {
	tag, err := q.Exec(ctx, `UPDATE products SET current_stock = current_stock - $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("products: decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func queryProducts(ctx context.Context, q db.Querier, sql string, args ...any) ([]Product, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CurrentStock, &p.SellingPrice); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanOne(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.CurrentStock, &p.SellingPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}
