package debts

import (
	"context"
	"fmt"

	"github.com/urcash/urcash/internal/platform/httpx"
)

// RepositoryPort abstracts debt storage.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Debt, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Debt, error)
}

// Service serves debt reads for installment conversion.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ErrCustomerRequired is returned when no customer is given.
var ErrCustomerRequired = httpx.ValidationError("customer is required")

// Get returns one debt.
func (s *Service) Get(ctx context.Context, id int64) (Debt, error) {
	if id <= 0 {
		return Debt{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ListByCustomer returns a customer's debts. With eligibleOnly only debts
// that can still be converted into installments are returned.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64, eligibleOnly bool) ([]Debt, error) {
	if customerID <= 0 {
		return nil, ErrCustomerRequired
	}
	list, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("debts: list by customer: %w", err)
	}
	if eligibleOnly {
		return FilterEligible(list), nil
	}
	if list == nil {
		list = []Debt{}
	}
	return list, nil
}
