// Package moneybox holds the cash destinations payments are attributed to.
package moneybox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urcash/urcash/internal/platform/db"
	"github.com/urcash/urcash/internal/platform/httpx"
)

// MoneyBox is a cash box or account with a running balance.
type MoneyBox struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Transaction is one movement of a money box.
type Transaction struct {
	ID           int64     `json:"id"`
	BoxID        int64     `json:"box_id"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

// DepositInput describes money received into a box.
type DepositInput struct {
	BoxID   int64
	Amount  float64
	Notes   string
	RefType string
	RefID   int64
	ActorID int64
}

var (
	ErrNotFound      = httpx.NotFoundError("money box not found")
	ErrInvalidAmount = errors.New("deposit amount must be positive")
)

// Repository reads money boxes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all money boxes by name.
func (r *Repository) List(ctx context.Context) ([]MoneyBox, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, amount FROM money_boxes ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []MoneyBox{}
	for rows.Next() {
		var b MoneyBox
		if err := rows.Scan(&b.ID, &b.Name, &b.Amount); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// Deposit credits the box and records the movement. It runs on q so callers
// can make it part of their own transaction.
func Deposit(ctx context.Context, q db.Querier, in DepositInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	var balance float64
	err := q.QueryRow(ctx, `UPDATE money_boxes SET amount = amount + $2, updated_at = NOW() WHERE id = $1 RETURNING amount`, in.BoxID, in.Amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("moneybox: deposit: %w", err)
	}
	tx := Transaction{BoxID: in.BoxID, Type: "deposit", Amount: in.Amount, BalanceAfter: balance, Notes: in.Notes}
	err = q.QueryRow(ctx, `INSERT INTO money_box_transactions (box_id, type, amount, balance_after, notes, related_type, related_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, 0), NULLIF($8, 0), NOW()) RETURNING id, created_at`,
		tx.BoxID, tx.Type, tx.Amount, tx.BalanceAfter, tx.Notes, in.RefType, in.RefID, in.ActorID).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("moneybox: insert transaction: %w", err)
	}
	return tx, nil
}
