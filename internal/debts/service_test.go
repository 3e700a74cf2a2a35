package debts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	debts []Debt
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Debt, error) {
	for _, d := range m.debts {
		if d.ID == id {
			return d, nil
		}
	}
	return Debt{}, ErrNotFound
}

func (m *memoryRepo) ListByCustomer(_ context.Context, customerID int64) ([]Debt, error) {
	var out []Debt
	for _, d := range m.debts {
		if d.CustomerID == customerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func seed() *memoryRepo {
	return &memoryRepo{debts: []Debt{
		{ID: 1, CustomerID: 7, Status: StatusUnpaid, RemainingAmount: 100},
		{ID: 2, CustomerID: 7, Status: StatusPaid},
		{ID: 3, CustomerID: 7, Status: StatusPartial, RemainingAmount: 50, InstallmentsCount: 3},
		{ID: 4, CustomerID: 7, Status: StatusPartial, RemainingAmount: 20},
		{ID: 5, CustomerID: 8, Status: StatusUnpaid, RemainingAmount: 10},
	}}
}

func TestEligibleExcludesPaidAndConverted(t *testing.T) {
	require.True(t, Eligible(Debt{Status: StatusUnpaid}))
	require.True(t, Eligible(Debt{Status: StatusPartial}))
	require.False(t, Eligible(Debt{Status: StatusPaid}))
	require.False(t, Eligible(Debt{Status: StatusUnpaid, InstallmentsCount: 1}))
}

func TestListByCustomerEligibleOnly(t *testing.T) {
	svc := NewService(seed())
	ctx := context.Background()

	all, err := svc.ListByCustomer(ctx, 7, false)
	require.NoError(t, err)
	require.Len(t, all, 4)

	eligible, err := svc.ListByCustomer(ctx, 7, true)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	require.Equal(t, int64(1), eligible[0].ID)
	require.Equal(t, int64(4), eligible[1].ID)

	_, err = svc.ListByCustomer(ctx, 0, true)
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestHandlerListsEligibleDebts(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(seed()))
	r := chi.NewRouter()
	r.Route("/debts", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debts/customer/7?eligible=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []Debt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debts/customer/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
