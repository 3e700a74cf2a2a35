package installments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/moneybox"
	"github.com/urcash/urcash/internal/products"
	"github.com/urcash/urcash/internal/shared"
)

// RepositoryPort abstracts installment storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Installment, error)
	Delete(ctx context.Context, id int64) error
	ListGrouped(ctx context.Context, q GroupedQuery) (GroupedPage, error)
	OverdueByCustomer(ctx context.Context, cutoff Date) ([]CustomerOverdue, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]products.Product, error)
	DecrementStock(ctx context.Context, productID int64, qty float64) error
	CreateSale(ctx context.Context, in SaleInput) (Sale, error)
	InsertInstallments(ctx context.Context, rows []Installment) ([]Installment, error)
	GetForUpdate(ctx context.Context, id int64) (Installment, error)
	UpdateInstallment(ctx context.Context, inst Installment) (Installment, error)
	Deposit(ctx context.Context, in moneybox.DepositInput) (moneybox.Transaction, error)
	NextReceiptSeq(ctx context.Context, day Date) (int64, error)
	InsertReceipt(ctx context.Context, r Receipt) (Receipt, error)
}

// DebtReader loads debts for conversion.
type DebtReader interface {
	Get(ctx context.Context, id int64) (debts.Debt, error)
}

// ProductReader loads catalog entries for the stock pre-check.
type ProductReader interface {
	GetMany(ctx context.Context, ids []int64) ([]products.Product, error)
}

// ListCache caches grouped listing pages.
type ListCache interface {
	Grouped(ctx context.Context, q GroupedQuery, load func(context.Context, GroupedQuery) (GroupedPage, error)) (GroupedPage, error)
	Bump(ctx context.Context) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards payment submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Metrics receives business counters.
type Metrics interface {
	PlanCreated(installments int, total float64)
	DebtsConverted(success, failed int)
	PaymentRecorded(method string, amount float64)
}

const paymentModule = "installments.payment"

// Options groups the optional collaborators of Service.
type Options struct {
	Logger      *slog.Logger
	Cache       ListCache
	Audit       AuditPort
	Idempotency IdempotencyPort
	Metrics     Metrics
	Localizer   *Localizer
	Now         func() time.Time
}

// Service coordinates the installment lifecycle.
type Service struct {
	repo      RepositoryPort
	debts     DebtReader
	catalog   ProductReader
	validator *Validator
	logger    *slog.Logger
	cache     ListCache
	audit     AuditPort
	idem      IdempotencyPort
	metrics   Metrics
	loc       *Localizer
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, debtReader DebtReader, catalog ProductReader, opts Options) *Service {
	s := &Service{
		repo:      repo,
		debts:     debtReader,
		catalog:   catalog,
		validator: NewValidator(),
		logger:    opts.Logger,
		cache:     opts.Cache,
		audit:     opts.Audit,
		idem:      opts.Idempotency,
		metrics:   opts.Metrics,
		loc:       opts.Localizer,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = DefaultLocalizer
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Localizer returns the localizer used for summary messages.
func (s *Service) Localizer() *Localizer {
	return s.loc
}

// CreatePlan sells products on installments. Stock is checked against the
// catalog before anything is written and again under row locks inside the
// transaction.
func (s *Service) CreatePlan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if err := s.validator.ValidatePlan(req); err != nil {
		return nil, err
	}
	ids := productIDs(req.Products)
	list, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("installments: load products: %w", err)
	}
	if err := CheckStock(req.Products, products.Index(list)); err != nil {
		return nil, err
	}
	total := req.Total()
	sched, err := BuildSchedule(total, req.InstallmentMonths, req.StartingDueDate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	invoice := invoiceNumber(now)
	var result PlanResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		if err := CheckStock(req.Products, locked); err != nil {
			return err
		}
		for _, line := range req.Products {
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		sale, err := tx.CreateSale(ctx, SaleInput{
			InvoiceNo:     invoice,
			CustomerID:    req.CustomerID,
			Total:         total,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
			Lines:         req.Products,
			ActorID:       req.ActorID,
		})
		if err != nil {
			return err
		}
		rows := make([]Installment, len(sched.Amounts))
		for i := range rows {
			rows[i] = Installment{
				SaleID:        sale.ID,
				CustomerID:    req.CustomerID,
				Amount:        sched.Amounts[i],
				DueDate:       sched.Dates[i],
				PaymentStatus: StatusUnpaid,
				PaymentMethod: req.PaymentMethod,
				Notes:         PlanNote(sale.InvoiceNo, i+1, len(rows), req.Notes),
				CustomerName:  sale.CustomerName,
				InvoiceNo:     sale.InvoiceNo,
			}
		}
		created, err := tx.InsertInstallments(ctx, rows)
		if err != nil {
			return err
		}
		result = PlanResult{SaleID: sale.ID, InvoiceNo: sale.InvoiceNo, TotalAmount: total, Installments: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, shared.AuditLog{
		ActorID:  req.ActorID,
		Action:   "installments.plan.create",
		Entity:   "sale",
		EntityID: strconv.FormatInt(result.SaleID, 10),
		Meta: map[string]any{
			"customer_id":  req.CustomerID,
			"total":        total,
			"installments": len(result.Installments),
		},
		At: now,
	})
	if s.metrics != nil {
		s.metrics.PlanCreated(len(result.Installments), total)
	}
	s.logger.Info("installment plan created",
		slog.Int64("sale_id", result.SaleID),
		slog.Int64("customer_id", req.CustomerID),
		slog.Int("installments", len(result.Installments)),
		slog.Float64("total", total))
	return &result, nil
}

// ConvertDebts splits each debt's remaining balance into installments. Debts
// are processed one after another in request order; a failure is recorded
// against its debt and does not stop the batch. Once ctx is done the
// remaining debts are reported with the context error.
func (s *Service) ConvertDebts(ctx context.Context, req ConvertRequest) (ConversionSummary, error) {
	if err := s.validator.ValidateConvert(req); err != nil {
		return ConversionSummary{}, err
	}
	method := req.PaymentMethod
	if method == "" {
		method = MethodCash
	}

	summary := ConversionSummary{Results: make([]DebtResult, 0, len(req.DebtIDs))}
	for _, id := range req.DebtIDs {
		res := DebtResult{DebtID: id}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res = s.convertDebt(ctx, id, req, method)
		}
		if res.Err != nil {
			res.Error = s.loc.Localize(res.Err)
			summary.ErrorCount++
			s.logger.Warn("debt conversion failed", slog.Int64("debt_id", id), slog.Any("error", res.Err))
		} else {
			summary.SuccessCount++
			summary.TotalInstallmentsCreated += len(res.Installments)
		}
		summary.Results = append(summary.Results, res)
	}
	summary.Message = s.loc.ConversionMessage(summary)

	if summary.SuccessCount > 0 {
		s.bumpCache(context.WithoutCancel(ctx))
	}
	if s.metrics != nil {
		s.metrics.DebtsConverted(summary.SuccessCount, summary.ErrorCount)
	}
	s.logger.Info("debts converted",
		slog.Int("success", summary.SuccessCount),
		slog.Int("failed", summary.ErrorCount),
		slog.Int("installments", summary.TotalInstallmentsCreated))
	return summary, nil
}

func (s *Service) convertDebt(ctx context.Context, id int64, req ConvertRequest, method PaymentMethod) DebtResult {
	res := DebtResult{DebtID: id}
	debt, err := s.debts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, debts.ErrNotFound) {
			err = ErrDebtNotFound
		}
		res.Err = err
		return res
	}
	res.InvoiceNo = debt.InvoiceNo
	if debt.RemainingAmount <= 0 || debt.Status == debts.StatusPaid {
		res.Err = ErrNothingToConvert
		return res
	}
	if !debts.Eligible(debt) {
		res.Err = ErrAlreadyConverted
		return res
	}
	sched, err := BuildSchedule(debt.RemainingAmount, req.InstallmentMonths, req.StartingDueDate)
	if err != nil {
		res.Err = err
		return res
	}
	rows := make([]Installment, len(sched.Amounts))
	for i := range rows {
		rows[i] = Installment{
			SaleID:        debt.SaleID,
			CustomerID:    debt.CustomerID,
			Amount:        sched.Amounts[i],
			DueDate:       sched.Dates[i],
			PaymentStatus: StatusUnpaid,
			PaymentMethod: method,
			Notes:         ConversionNote(debt.InvoiceNo, i+1, len(rows)),
			CustomerName:  debt.CustomerName,
			InvoiceNo:     debt.InvoiceNo,
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertInstallments(ctx, rows)
		if err != nil {
			return err
		}
		res.Installments = created
		return nil
	})
	if err != nil {
		res.Installments = nil
		res.Err = err
		return res
	}
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  req.ActorID,
		Action:   "installments.debt.convert",
		Entity:   "debt",
		EntityID: strconv.FormatInt(id, 10),
		Meta: map[string]any{
			"sale_id":      debt.SaleID,
			"amount":       debt.RemainingAmount,
			"installments": len(rows),
		},
		At: s.now().UTC(),
	})
	return res
}

// RecordPayment applies a payment to one installment, deposits it into the
// selected money box and issues a receipt. Overpayment is accepted.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	if err := s.validator.ValidatePayment(req); err != nil {
		return nil, err
	}
	if req.InstallmentID <= 0 {
		return nil, ErrNotFound
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, paymentModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrDuplicatePayment
			}
			return nil, err
		}
	}

	now := s.now().UTC()
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetForUpdate(ctx, req.InstallmentID)
		if err != nil {
			return err
		}
		inst.PaidAmount += req.PaidAmount
		inst.PaymentStatus = DeriveStatus(inst.Amount, inst.PaidAmount)
		inst.PaymentMethod = req.PaymentMethod
		if inst.PaymentStatus == StatusPaid && inst.PaidAt == nil {
			paidAt := now
			inst.PaidAt = &paidAt
		}
		inst, err = tx.UpdateInstallment(ctx, inst)
		if err != nil {
			return err
		}
		_, err = tx.Deposit(ctx, moneybox.DepositInput{
			BoxID:   req.MoneyBoxID,
			Amount:  req.PaidAmount,
			Notes:   "دفعة قسط - " + inst.InvoiceNo,
			RefType: "installment",
			RefID:   inst.ID,
			ActorID: req.ActorID,
		})
		if err != nil {
			if errors.Is(err, moneybox.ErrNotFound) {
				return ErrMoneyBoxNotFound
			}
			return err
		}
		day := NewDate(now)
		seq, err := tx.NextReceiptSeq(ctx, day)
		if err != nil {
			return err
		}
		receipt, err = tx.InsertReceipt(ctx, Receipt{
			ReceiptNumber: ReceiptNumber(day, seq),
			InstallmentID: inst.ID,
			CustomerName:  inst.CustomerName,
			SaleInvoiceNo: inst.InvoiceNo,
			Amount:        req.PaidAmount,
			PaymentMethod: req.PaymentMethod,
			MoneyBoxID:    req.MoneyBoxID,
			Notes:         req.Notes,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		if key != "" && s.idem != nil {
			if derr := s.idem.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return nil, err
	}

	s.afterMutation(ctx, shared.AuditLog{
		ActorID:  req.ActorID,
		Action:   "installments.payment.record",
		Entity:   "installment",
		EntityID: strconv.FormatInt(req.InstallmentID, 10),
		Meta: map[string]any{
			"receipt_number": receipt.ReceiptNumber,
			"amount":         req.PaidAmount,
			"money_box_id":   req.MoneyBoxID,
		},
		At: now,
	})
	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(req.PaymentMethod), req.PaidAmount)
	}
	s.logger.Info("installment payment recorded",
		slog.Int64("installment_id", req.InstallmentID),
		slog.String("receipt_number", receipt.ReceiptNumber),
		slog.Float64("amount", req.PaidAmount))
	return &receipt, nil
}

// Get returns one installment.
func (s *Service) Get(ctx context.Context, id int64) (Installment, error) {
	if id <= 0 {
		return Installment{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create inserts a single installment.
func (s *Service) Create(ctx context.Context, in InstallmentInput, actorID int64) (Installment, error) {
	if err := s.validator.ValidateInput(in); err != nil {
		return Installment{}, err
	}
	now := s.now().UTC()
	row := applyInput(Installment{}, in, now)
	var created Installment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.InsertInstallments(ctx, []Installment{row})
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return fmt.Errorf("installments: expected 1 inserted row, got %d", len(rows))
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return Installment{}, err
	}
	s.afterMutation(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "installments.create",
		Entity:   "installment",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"sale_id": created.SaleID, "amount": created.Amount},
		At:       now,
	})
	return created, nil
}

// Update replaces the editable fields of an installment.
func (s *Service) Update(ctx context.Context, id int64, in InstallmentInput, actorID int64) (Installment, error) {
	if id <= 0 {
		return Installment{}, ErrNotFound
	}
	if err := s.validator.ValidateInput(in); err != nil {
		return Installment{}, err
	}
	now := s.now().UTC()
	var updated Installment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated, err = tx.UpdateInstallment(ctx, applyInput(current, in, now))
		return err
	})
	if err != nil {
		return Installment{}, err
	}
	s.afterMutation(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "installments.update",
		Entity:   "installment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"amount": updated.Amount, "paid_amount": updated.PaidAmount},
		At:       now,
	})
	return updated, nil
}

// Delete removes an installment.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.afterMutation(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "installments.delete",
		Entity:   "installment",
		EntityID: strconv.FormatInt(id, 10),
		At:       s.now().UTC(),
	})
	return nil
}

// ListGrouped returns one page of plans, served from cache when possible.
func (s *Service) ListGrouped(ctx context.Context, q GroupedQuery) (GroupedPage, error) {
	q = q.Normalize()
	if q.PaymentStatus != "" && !q.PaymentStatus.Valid() {
		return GroupedPage{}, FieldErrors{"payment_status": "قيمة غير مسموحة"}
	}
	if s.cache == nil {
		return s.repo.ListGrouped(ctx, q)
	}
	return s.cache.Grouped(ctx, q, s.repo.ListGrouped)
}

// ScanOverdue lists customers with overdue unpaid installments as of now.
func (s *Service) ScanOverdue(ctx context.Context, now time.Time) ([]CustomerOverdue, error) {
	return s.repo.OverdueByCustomer(ctx, OverdueCutoff(now))
}

// InvalidateCache bumps the grouped listing cache version.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx)
}

func (s *Service) afterMutation(ctx context.Context, log shared.AuditLog) {
	ctx = context.WithoutCancel(ctx)
	s.bumpCache(ctx)
	s.recordAudit(ctx, log)
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump installments cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit log", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func applyInput(inst Installment, in InstallmentInput, now time.Time) Installment {
	inst.SaleID = in.SaleID
	inst.CustomerID = in.CustomerID
	inst.Amount = in.Amount
	inst.PaidAmount = in.PaidAmount
	inst.DueDate = in.DueDate
	inst.PaymentMethod = in.PaymentMethod
	inst.Notes = in.Notes
	inst.PaymentStatus = DeriveStatus(inst.Amount, inst.PaidAmount)
	switch {
	case inst.PaymentStatus == StatusPaid && inst.PaidAt == nil:
		paidAt := now
		inst.PaidAt = &paidAt
	case inst.PaymentStatus != StatusPaid:
		inst.PaidAt = nil
	}
	return inst
}

func productIDs(lines []PlanProduct) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func invoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "INS-" + now.Format("20060102") + "-" + suffix
}

// ReceiptNumber formats RCP-yyyymmdd-<seq>.
func ReceiptNumber(day Date, seq int64) string {
	return fmt.Sprintf("RCP-%s-%04d", day.Format("20060102"), seq)
}
