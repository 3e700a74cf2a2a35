package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urcash/urcash/internal/installments"
	"github.com/urcash/urcash/internal/platform/httpx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListGroupedKeepsOnlyPlans(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/installments/grouped", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "partial", r.URL.Query().Get("payment_status"))
		_, _ = io.WriteString(w, `{"items":[
			{"sale_id":1,"customer_name":"Ali","installments":[{"id":1,"sale_id":1,"amount":50,"due_date":"2024-01-01"}]},
			{"sale_id":"broken"},
			{"id":9,"sale_id":2,"amount":20,"paid_amount":5}
		],"page":2,"limit":10,"total":13,"total_pages":2}`)
	})

	page, err := client.ListGrouped(context.Background(), installments.GroupedQuery{Page: 2, PaymentStatus: installments.StatusPartial})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "Ali", page.Items[0].CustomerName)
	require.Equal(t, 13, page.Total)
}

func TestDecodeErrorMapsProblems(t *testing.T) {
	stock := installments.StockError{ProductID: 4, Available: 1, Required: 3}
	cases := []struct {
		name  string
		body  httpx.ProblemDetail
		check func(t *testing.T, err error)
	}{
		{"fields", httpx.ProblemDetail{Status: 422, Errors: map[string]string{"amount": "bad"}}, func(t *testing.T, err error) {
			var fields installments.FieldErrors
			require.ErrorAs(t, err, &fields)
			require.Equal(t, "bad", fields["amount"])
		}},
		{"stock", httpx.ProblemDetail{Status: 409, Detail: stock.Error()}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, installments.ErrInsufficientStock)
		}},
		{"sentinel", httpx.ProblemDetail{Status: 404, Detail: installments.ErrMoneyBoxNotFound.Error()}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, installments.ErrMoneyBoxNotFound)
		}},
		{"already converted", httpx.ProblemDetail{Status: 400, Detail: installments.ErrAlreadyConverted.Error()}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, installments.ErrAlreadyConverted)
		}},
		{"sale", httpx.ProblemDetail{Status: 404, Detail: installments.ErrSaleNotFound.Error()}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, installments.ErrSaleNotFound)
		}},
		{"due date", httpx.ProblemDetail{Status: 400, Detail: installments.ErrDueDateRequired.Error()}, func(t *testing.T, err error) {
			require.ErrorIs(t, err, installments.ErrDueDateRequired)
		}},
		{"other", httpx.ProblemDetail{Status: 500, Title: "Internal Error"}, func(t *testing.T, err error) {
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, 500, apiErr.Status)
			require.Equal(t, "Internal Error", apiErr.Error())
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.body)
			require.NoError(t, err)
			tc.check(t, decodeError(tc.body.Status, raw))
		})
	}
	require.Contains(t, decodeError(502, []byte("bad gateway")).Error(), "bad gateway")
}

func TestRecordPaymentSendsIdempotencyKey(t *testing.T) {
	var keys []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/installments/5/payment", r.URL.Path)
		keys = append(keys, r.Header.Get(installments.IdempotencyHeader))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotContains(t, body, "installment_id")
		httpx.JSON(w, http.StatusCreated, installments.Receipt{ReceiptNumber: "RCP-20240101-0001", InstallmentID: 5})
	})

	req := installments.PaymentRequest{InstallmentID: 5, PaidAmount: 10, PaymentMethod: installments.MethodCash, MoneyBoxID: 1}
	receipt, err := client.RecordPayment(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "RCP-20240101-0001", receipt.ReceiptNumber)

	req.IdempotencyKey = "fixed"
	_, err = client.RecordPayment(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.NotEmpty(t, keys[0])
	require.Equal(t, "fixed", keys[1])
}

func TestConvertDebtsDecodesAllFailedSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusUnprocessableEntity, installments.ConversionSummary{
			ErrorCount: 1,
			Results:    []installments.DebtResult{{DebtID: 3, Error: "not found"}},
			Message:    "failed",
		})
	})

	summary, err := client.ConvertDebts(context.Background(), installments.ConvertRequest{DebtIDs: []int64{3}})
	require.NoError(t, err)
	require.True(t, summary.AllFailed())
	require.False(t, summary.Results[0].OK())
}

func TestConvertDebtsValidationProblem(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		httpx.ValidationProblem(w, "validation failed", map[string]string{"debt_ids": "required"})
	})

	_, err := client.ConvertDebts(context.Background(), installments.ConvertRequest{})
	var fields installments.FieldErrors
	require.ErrorAs(t, err, &fields)
}

func TestCustomerDebtsEligibleQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/debts/customer/8", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("eligible"))
		_, _ = io.WriteString(w, `[{"id":1,"sale_id":2,"customer_id":8,"invoice_no":"INV-2","remaining_amount":40,"status":"unpaid"}]`)
	})

	list, err := client.CustomerDebts(context.Background(), 8, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 40.0, list[0].RemainingAmount)
}
