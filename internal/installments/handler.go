package installments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/urcash/urcash/internal/platform/httpx"
)

// Handler exposes the installment REST endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers installment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/grouped", h.listGrouped)
	r.Post("/", h.create)
	r.Post("/plan", h.createPlan)
	r.Post("/convert-debts", h.convertDebts)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/payment", h.recordPayment)
}

// ActorHeader optionally carries the acting user id.
const ActorHeader = "X-Actor-ID"

// IdempotencyHeader carries the client generated payment key.
const IdempotencyHeader = "Idempotency-Key"

func (h *Handler) listGrouped(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := GroupedQuery{
		Search:        query.Get("search"),
		PaymentStatus: PaymentStatus(query.Get("payment_status")),
	}
	q.Page, _ = strconv.Atoi(query.Get("page"))
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	if raw := query.Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.ValidationProblem(w, "invalid query", map[string]string{"customer_id": "قيمة غير صالحة"})
			return
		}
		q.CustomerID = id
	}
	page, err := h.service.ListGrouped(r.Context(), q)
	if err != nil {
		h.fail(w, "list grouped installments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inst, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get installment", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in InstallmentInput
	if !decode(w, r, &in) {
		return
	}
	inst, err := h.service.Create(r.Context(), in, actorID(r))
	if err != nil {
		h.fail(w, "create installment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inst)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in InstallmentInput
	if !decode(w, r, &in) {
		return
	}
	inst, err := h.service.Update(r.Context(), id, in, actorID(r))
	if err != nil {
		h.fail(w, "update installment", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, actorID(r)); err != nil {
		h.fail(w, "delete installment", err, slog.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	req.InstallmentID = id
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	req.ActorID = actorID(r)
	receipt, err := h.service.RecordPayment(r.Context(), req)
	if err != nil {
		h.fail(w, "record installment payment", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !decode(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	plan, err := h.service.CreatePlan(r.Context(), req)
	if err != nil {
		h.fail(w, "create installment plan", err, slog.Int64("customer_id", req.CustomerID))
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) convertDebts(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !decode(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	summary, err := h.service.ConvertDebts(r.Context(), req)
	if err != nil {
		h.fail(w, "convert debts", err)
		return
	}
	status := http.StatusOK
	if summary.AllFailed() {
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, summary)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status, title := problemFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, slog.Any("error", err))...)
	} else {
		h.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
	}
	var fields FieldErrors
	if errors.As(err, &fields) {
		httpx.ValidationProblem(w, fields.Error(), fields.Fields())
		return
	}
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		detail = ""
	}
	httpx.Problem(w, status, title, detail)
}

// problemFor maps domain errors to a status and problem title. The detail
// keeps the backend wording so clients can pattern-match it.
func problemFor(err error) (int, string) {
	var fields FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusUnprocessableEntity, "Validation Failed"
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict, "Insufficient Stock"
	case errors.Is(err, ErrDuplicatePayment):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSaleNotFound), errors.Is(err, ErrDebtNotFound),
		errors.Is(err, ErrProductNotFound), errors.Is(err, ErrMoneyBoxNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrCustomerRequired), errors.Is(err, ErrNoProducts), errors.Is(err, ErrInvalidMonths),
		errors.Is(err, ErrInvalidTotal), errors.Is(err, ErrTooManyInstallments), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMoneyBoxRequired), errors.Is(err, ErrInvalidMethod), errors.Is(err, ErrDueDateRequired),
		errors.Is(err, ErrNothingToConvert), errors.Is(err, ErrAlreadyConverted):
		return http.StatusBadRequest, "Bad Request"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid installment id", "")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	return id
}
