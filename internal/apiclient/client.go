// Package apiclient talks to the installments REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/installments"
	"github.com/urcash/urcash/internal/moneybox"
	"github.com/urcash/urcash/internal/products"
)

// Client wraps the installments API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a new client. baseURL points at the /api prefix.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Error is a non-validation problem response.
type Error struct {
	Status int
	Title  string
	Detail string
}

// Error returns the server detail so localisation can pattern-match it.
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Title != "" {
		return e.Title
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

type problem struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors"`
}

var knownErrors = []error{
	installments.ErrNotFound,
	installments.ErrDebtNotFound,
	installments.ErrProductNotFound,
	installments.ErrMoneyBoxNotFound,
	installments.ErrCustomerRequired,
	installments.ErrNoProducts,
	installments.ErrInvalidMonths,
	installments.ErrInvalidTotal,
	installments.ErrTooManyInstallments,
	installments.ErrInvalidAmount,
	installments.ErrMoneyBoxRequired,
	installments.ErrInvalidMethod,
	installments.ErrNothingToConvert,
	installments.ErrDuplicatePayment,
	installments.ErrAlreadyConverted,
	installments.ErrSaleNotFound,
	installments.ErrDueDateRequired,
}

// decodeError turns a problem response into a domain error where possible.
func decodeError(status int, body []byte) error {
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		return &Error{Status: status, Detail: strings.TrimSpace(string(body))}
	}
	if len(p.Errors) > 0 {
		return installments.FieldErrors(p.Errors)
	}
	if stock, ok := installments.ParseStockMessage(p.Detail); ok {
		return stock
	}
	for _, known := range knownErrors {
		if p.Detail == known.Error() {
			return known
		}
	}
	return &Error{Status: status, Title: p.Title, Detail: p.Detail}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, header http.Header) error {
	status, raw, err := c.send(ctx, method, path, in, header)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, in any, header http.Header) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

type groupedResponse struct {
	Items      []json.RawMessage `json:"items"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

// ListGrouped fetches one page of plans. Malformed entries are skipped and
// logged.
func (c *Client) ListGrouped(ctx context.Context, q installments.GroupedQuery) (installments.GroupedPage, error) {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.PaymentStatus != "" {
		values.Set("payment_status", string(q.PaymentStatus))
	}
	if q.CustomerID != 0 {
		values.Set("customer_id", strconv.FormatInt(q.CustomerID, 10))
	}
	path := "/installments/grouped"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var resp groupedResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return installments.GroupedPage{}, err
	}
	return installments.GroupedPage{
		Items:      installments.DecodePlans(c.logger, resp.Items),
		Page:       resp.Page,
		Limit:      resp.Limit,
		Total:      resp.Total,
		TotalPages: resp.TotalPages,
	}, nil
}

// Get fetches one installment.
func (c *Client) Get(ctx context.Context, id int64) (installments.Installment, error) {
	var inst installments.Installment
	err := c.do(ctx, http.MethodGet, "/installments/"+strconv.FormatInt(id, 10), nil, &inst, nil)
	return inst, err
}

// Create adds a single installment.
func (c *Client) Create(ctx context.Context, in installments.InstallmentInput) (installments.Installment, error) {
	var inst installments.Installment
	err := c.do(ctx, http.MethodPost, "/installments", in, &inst, nil)
	return inst, err
}

// Update replaces a single installment.
func (c *Client) Update(ctx context.Context, id int64, in installments.InstallmentInput) (installments.Installment, error) {
	var inst installments.Installment
	err := c.do(ctx, http.MethodPut, "/installments/"+strconv.FormatInt(id, 10), in, &inst, nil)
	return inst, err
}

// Delete removes a single installment.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/installments/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// RecordPayment posts a payment. A fresh idempotency key is generated when
// the request carries none.
func (c *Client) RecordPayment(ctx context.Context, req installments.PaymentRequest) (*installments.Receipt, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	header := http.Header{}
	header.Set(installments.IdempotencyHeader, key)
	var receipt installments.Receipt
	path := "/installments/" + strconv.FormatInt(req.InstallmentID, 10) + "/payment"
	if err := c.do(ctx, http.MethodPost, path, req, &receipt, header); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// CreatePlan creates an installment plan from products.
func (c *Client) CreatePlan(ctx context.Context, req installments.PlanRequest) (*installments.PlanResult, error) {
	var plan installments.PlanResult
	if err := c.do(ctx, http.MethodPost, "/installments/plan", req, &plan, nil); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ConvertDebts converts debts into installments. A batch in which every debt
// failed is answered with 422 and still decoded as a summary.
func (c *Client) ConvertDebts(ctx context.Context, req installments.ConvertRequest) (installments.ConversionSummary, error) {
	status, raw, err := c.send(ctx, http.MethodPost, "/installments/convert-debts", req, nil)
	if err != nil {
		return installments.ConversionSummary{}, err
	}
	var summary installments.ConversionSummary
	if status < 400 || status == http.StatusUnprocessableEntity {
		if uerr := json.Unmarshal(raw, &summary); uerr == nil && len(summary.Results) > 0 {
			return summary, nil
		}
	}
	if status >= 400 {
		return installments.ConversionSummary{}, decodeError(status, raw)
	}
	return summary, json.Unmarshal(raw, &summary)
}

// CustomerDebts lists a customer's debts, optionally only convertible ones.
func (c *Client) CustomerDebts(ctx context.Context, customerID int64, eligibleOnly bool) ([]debts.Debt, error) {
	path := "/debts/customer/" + strconv.FormatInt(customerID, 10)
	if eligibleOnly {
		path += "?eligible=true"
	}
	var list []debts.Debt
	err := c.do(ctx, http.MethodGet, path, nil, &list, nil)
	return list, err
}

// MoneyBoxes lists payment destinations.
func (c *Client) MoneyBoxes(ctx context.Context) ([]moneybox.MoneyBox, error) {
	var list []moneybox.MoneyBox
	err := c.do(ctx, http.MethodGet, "/money-boxes", nil, &list, nil)
	return list, err
}

// Products lists products in stock.
func (c *Client) Products(ctx context.Context) ([]products.Product, error) {
	var list []products.Product
	err := c.do(ctx, http.MethodGet, "/products", nil, &list, nil)
	return list, err
}

var _ installments.API = (*Client)(nil)
