package installments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/urcash/urcash/internal/products"
)

type fakeAPI struct {
	mu       sync.Mutex
	queries  []GroupedQuery
	pages    map[string]GroupedPage
	gate     map[string]chan struct{}
	plans    int
	payments int
	keys     []string
	listErr  error
	summary  ConversionSummary
	payErr   error
	payBlock chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{pages: map[string]GroupedPage{}, gate: map[string]chan struct{}{}}
}

func (f *fakeAPI) ListGrouped(ctx context.Context, q GroupedQuery) (GroupedPage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.gate[q.Search]
	page, ok := f.pages[q.Search]
	err := f.listErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return GroupedPage{}, ctx.Err()
		}
	}
	if err != nil {
		return GroupedPage{}, err
	}
	if !ok {
		page = GroupedPage{}
	}
	page.Page, page.Limit = q.Page, q.Limit
	return page, nil
}

func (f *fakeAPI) Create(_ context.Context, in InstallmentInput) (Installment, error) {
	return Installment{ID: 1, SaleID: in.SaleID, Amount: in.Amount}, nil
}

func (f *fakeAPI) Update(_ context.Context, id int64, in InstallmentInput) (Installment, error) {
	return Installment{ID: id, Amount: in.Amount}, nil
}

func (f *fakeAPI) Delete(context.Context, int64) error { return nil }

func (f *fakeAPI) RecordPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	f.mu.Lock()
	f.payments++
	f.keys = append(f.keys, req.IdempotencyKey)
	block := f.payBlock
	err := f.payErr
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Receipt{ReceiptNumber: "RCP-20240101-0001", InstallmentID: req.InstallmentID, Amount: req.PaidAmount}, nil
}

func (f *fakeAPI) CreatePlan(_ context.Context, req PlanRequest) (*PlanResult, error) {
	f.mu.Lock()
	f.plans++
	f.mu.Unlock()
	return &PlanResult{SaleID: 9, InvoiceNo: "INS-1", TotalAmount: req.Total(), Installments: make([]Installment, req.InstallmentMonths)}, nil
}

func (f *fakeAPI) ConvertDebts(context.Context, ConvertRequest) (ConversionSummary, error) {
	return f.summary, nil
}

func (f *fakeAPI) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func startStore(t *testing.T, api API, q GroupedQuery) *Store {
	t.Helper()
	s := NewStore(api, NewLocalizer(language.English), q)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)
	return s
}

func TestStoreLoadReplacesPlans(t *testing.T) {
	api := newFakeAPI()
	api.pages["ali"] = GroupedPage{Items: []Plan{{SaleID: 1}, {SaleID: 2}}, Total: 12, TotalPages: 2}
	s := startStore(t, api, GroupedQuery{})

	require.NoError(t, s.Load(context.Background(), GroupedQuery{Search: "ali", Page: 2}))
	st := s.State()
	require.Len(t, st.Plans, 2)
	require.Equal(t, 12, st.Total)
	require.Equal(t, 2, st.Query.Page)
	require.Equal(t, DefaultPageSize, st.Query.Limit)
	require.False(t, st.Loading)
}

func TestStoreDiscardsSupersededListing(t *testing.T) {
	api := newFakeAPI()
	slow := make(chan struct{})
	api.gate["old"] = slow
	api.pages["old"] = GroupedPage{Items: []Plan{{SaleID: 1}}}
	api.pages["new"] = GroupedPage{Items: []Plan{{SaleID: 2}}}
	s := startStore(t, api, GroupedQuery{})

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background(), GroupedQuery{Search: "old"}) }()
	require.Eventually(t, func() bool { return api.listCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Load(context.Background(), GroupedQuery{Search: "new"}))
	close(slow)
	require.NoError(t, <-done)

	st := s.State()
	require.Equal(t, "new", st.Query.Search)
	require.Len(t, st.Plans, 1)
	require.Equal(t, int64(2), st.Plans[0].SaleID)
	require.False(t, st.Loading)
}

func TestStoreCreatePlanRejectsStockLocally(t *testing.T) {
	api := newFakeAPI()
	s := startStore(t, api, GroupedQuery{})
	catalog := []products.Product{{ID: 3, Name: "Heater", CurrentStock: 1}}

	_, err := s.CreatePlan(context.Background(), PlanRequest{
		CustomerID:        1,
		Products:          []PlanProduct{{ProductID: 3, Quantity: 2, Price: 50}},
		InstallmentMonths: 2,
		StartingDueDate:   NewDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		PaymentMethod:     MethodCash,
	}, catalog)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Zero(t, api.plans)
	st := s.State()
	require.Contains(t, st.Error, "Heater")
	require.False(t, st.Creating)
}

func TestStoreCreatePlanReloadsFirstPage(t *testing.T) {
	api := newFakeAPI()
	s := startStore(t, api, GroupedQuery{Page: 3})
	catalog := []products.Product{{ID: 3, Name: "Heater", CurrentStock: 5}}

	plan, err := s.CreatePlan(context.Background(), PlanRequest{
		CustomerID:        1,
		Products:          []PlanProduct{{ProductID: 3, Quantity: 2, Price: 50}},
		InstallmentMonths: 4,
		StartingDueDate:   NewDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		PaymentMethod:     MethodCash,
	}, catalog)
	require.NoError(t, err)
	require.Equal(t, 100.0, plan.TotalAmount)
	require.Equal(t, 1, api.plans)
	require.Equal(t, 1, api.listCount())
	require.Equal(t, 1, api.queries[0].Page)

	st := s.State()
	require.Equal(t, 1, st.Query.Page)
	require.Equal(t, plan, st.LastPlan)
	require.NotEmpty(t, st.Notice)
	require.Empty(t, st.Error)
}

func TestStorePaymentDoesNotRefresh(t *testing.T) {
	api := newFakeAPI()
	s := startStore(t, api, GroupedQuery{})
	draft := s.PaymentDraft(Installment{ID: 4, Amount: 1000, PaidAmount: 400, PaymentMethod: "bogus"})
	require.Equal(t, 600.0, draft.PaidAmount)
	require.Equal(t, MethodCash, draft.PaymentMethod)

	_, err := s.RecordPayment(context.Background(), draft)
	require.ErrorIs(t, err, ErrMoneyBoxRequired)
	require.Zero(t, api.payments)

	draft.MoneyBoxID = 2
	receipt, err := s.RecordPayment(context.Background(), draft)
	require.NoError(t, err)
	require.Equal(t, 600.0, receipt.Amount)
	require.Zero(t, api.listCount())
	require.Equal(t, receipt, s.State().LastReceipt)
}

func TestStoreRejectsConcurrentPayment(t *testing.T) {
	api := newFakeAPI()
	api.payBlock = make(chan struct{})
	s := startStore(t, api, GroupedQuery{})
	req := PaymentRequest{InstallmentID: 1, PaidAmount: 10, PaymentMethod: MethodCash, MoneyBoxID: 1}

	done := make(chan error, 1)
	go func() {
		_, err := s.RecordPayment(context.Background(), req)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State().Paying }, time.Second, time.Millisecond)

	_, err := s.RecordPayment(context.Background(), req)
	require.ErrorIs(t, err, ErrBusy)

	close(api.payBlock)
	require.NoError(t, <-done)
	require.False(t, s.State().Paying)
}

func TestStoreLocalRejectionKeepsPaymentInFlight(t *testing.T) {
	api := newFakeAPI()
	api.payBlock = make(chan struct{})
	s := startStore(t, api, GroupedQuery{})
	req := PaymentRequest{InstallmentID: 1, PaidAmount: 10, PaymentMethod: MethodCash, MoneyBoxID: 1}

	done := make(chan error, 1)
	go func() {
		_, err := s.RecordPayment(context.Background(), req)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State().Paying }, time.Second, time.Millisecond)

	invalid := req
	invalid.MoneyBoxID = 0
	_, err := s.RecordPayment(context.Background(), invalid)
	require.ErrorIs(t, err, ErrMoneyBoxRequired)
	st := s.State()
	require.True(t, st.Paying)
	require.NotEmpty(t, st.Error)

	_, err = s.RecordPayment(context.Background(), req)
	require.ErrorIs(t, err, ErrBusy)

	close(api.payBlock)
	require.NoError(t, <-done)
	require.Equal(t, 1, api.payments)
	require.False(t, s.State().Paying)
}

func TestStoreLocalRejectionKeepsConvertInFlight(t *testing.T) {
	st := Reduce(State{}, Event{Op: OpConvert, Phase: Pending})
	st = Reduce(st, Event{Op: OpConvert, Phase: Invalid, Err: ErrInvalidMonths, Message: "months"})
	require.True(t, st.Converting)
	require.Equal(t, "months", st.Error)

	st = Reduce(State{}, Event{Op: OpUpdate, Phase: Invalid, Message: "amount"})
	require.False(t, st.Saving)
	require.Equal(t, "amount", st.Error)
}

func TestStoreRetriedDraftReusesIdempotencyKey(t *testing.T) {
	api := newFakeAPI()
	api.payErr = context.DeadlineExceeded
	s := startStore(t, api, GroupedQuery{})
	draft := s.PaymentDraft(Installment{ID: 4, Amount: 100})
	draft.MoneyBoxID = 1
	require.NotEmpty(t, draft.IdempotencyKey)
	require.NotEqual(t, draft.IdempotencyKey, s.PaymentDraft(Installment{ID: 4, Amount: 100}).IdempotencyKey)

	_, err := s.RecordPayment(context.Background(), draft)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	api.mu.Lock()
	api.payErr = nil
	api.mu.Unlock()
	_, err = s.RecordPayment(context.Background(), draft)
	require.NoError(t, err)

	require.Len(t, api.keys, 2)
	require.Equal(t, draft.IdempotencyKey, api.keys[0])
	require.Equal(t, api.keys[0], api.keys[1])
}

func TestStoreCancelledPaymentClearsPendingWithoutError(t *testing.T) {
	api := newFakeAPI()
	api.payBlock = make(chan struct{})
	s := startStore(t, api, GroupedQuery{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.RecordPayment(ctx, PaymentRequest{InstallmentID: 1, PaidAmount: 10, PaymentMethod: MethodCash, MoneyBoxID: 1})
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State().Paying }, time.Second, time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	st := s.State()
	require.False(t, st.Paying)
	require.Empty(t, st.Error)
}

func TestStoreConvertAllFailedKeepsSummary(t *testing.T) {
	api := newFakeAPI()
	api.summary = ConversionSummary{ErrorCount: 2, Results: []DebtResult{{DebtID: 1, Error: "x"}, {DebtID: 2, Error: "y"}}}
	s := startStore(t, api, GroupedQuery{})

	summary, err := s.ConvertDebts(context.Background(), ConvertRequest{
		DebtIDs:           []int64{1, 2},
		InstallmentMonths: 2,
		StartingDueDate:   NewDate(time.Now()),
	})
	require.NoError(t, err)
	require.True(t, summary.AllFailed())
	st := s.State()
	require.Equal(t, msgAllFailed, st.Error)
	require.NotNil(t, st.LastSummary)
	require.Zero(t, api.listCount())
	require.False(t, st.Converting)
}

func TestStoreListErrorIsLocalised(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("debt not found")
	s := startStore(t, api, GroupedQuery{})

	require.Error(t, s.Refresh(context.Background()))
	st := s.State()
	require.NotEmpty(t, st.Error)
	require.NotEqual(t, "debt not found", st.Error)
	require.False(t, st.Loading)
}

func TestReduceIgnoresStaleRejection(t *testing.T) {
	st := Reduce(State{}, Event{Op: OpList, Phase: Pending, Seq: 2})
	st = Reduce(st, Event{Op: OpList, Phase: Rejected, Seq: 1, Message: "boom"})
	require.True(t, st.Loading)
	require.Empty(t, st.Error)
}
