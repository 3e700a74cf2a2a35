package installments

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/urcash/urcash/internal/products"
)

// Validator wraps validator/v10 and reports failures as FieldErrors keyed by
// JSON path, with Arabic messages.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator using JSON field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s. It returns nil, FieldErrors or the underlying error when
// s is not a struct.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := FieldErrors{}
	for _, fe := range verrs {
		fields.Add(fieldPath(fe), fieldMessage(fe))
	}
	return fields
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "هذا الحقل مطلوب"
	case "gt":
		return "يجب أن تكون القيمة أكبر من " + fe.Param()
	case "gte":
		return "يجب ألا تقل القيمة عن " + fe.Param()
	case "lte":
		return "يجب ألا تزيد القيمة عن " + fe.Param()
	case "min":
		return "يجب إدخال " + fe.Param() + " عنصر على الأقل"
	case "max":
		return "النص أطول من المسموح (" + fe.Param() + ")"
	case "oneof":
		return "قيمة غير مسموحة"
	default:
		return "قيمة غير صالحة"
	}
}

// ValidatePlan checks a plan request shape: struct tags plus the starting
// due date, which has no tag of its own.
func (v *Validator) ValidatePlan(req PlanRequest) error {
	if req.CustomerID == 0 {
		return ErrCustomerRequired
	}
	if len(req.Products) == 0 {
		return ErrNoProducts
	}
	fields := FieldErrors{}
	if err := v.Struct(req); err != nil {
		var fe FieldErrors
		if !errors.As(err, &fe) {
			return err
		}
		fields = fe
	}
	if req.StartingDueDate.IsZero() {
		fields.Add("starting_due_date", "هذا الحقل مطلوب")
	}
	return fields.Err()
}

// ValidateConvert checks a conversion request.
func (v *Validator) ValidateConvert(req ConvertRequest) error {
	fields := FieldErrors{}
	if err := v.Struct(req); err != nil {
		var fe FieldErrors
		if !errors.As(err, &fe) {
			return err
		}
		fields = fe
	}
	if req.StartingDueDate.IsZero() {
		fields.Add("starting_due_date", "هذا الحقل مطلوب")
	}
	return fields.Err()
}

// ValidatePayment checks a payment request. Amount and money box failures are
// reported as their sentinels so callers can show the dedicated warning.
func (v *Validator) ValidatePayment(req PaymentRequest) error {
	if req.PaidAmount <= 0 {
		return ErrInvalidAmount
	}
	if req.MoneyBoxID <= 0 {
		return ErrMoneyBoxRequired
	}
	if !req.PaymentMethod.Valid() {
		return ErrInvalidMethod
	}
	return v.Struct(req)
}

// ValidateInput checks a single installment create/update payload.
func (v *Validator) ValidateInput(in InstallmentInput) error {
	fields := FieldErrors{}
	if err := v.Struct(in); err != nil {
		var fe FieldErrors
		if !errors.As(err, &fe) {
			return err
		}
		fields = fe
	}
	if in.DueDate.IsZero() {
		fields.Add("due_date", "هذا الحقل مطلوب")
	}
	return fields.Err()
}

// CheckStock verifies every product line against catalog. Lines are checked
// in request order and the first failure is returned: an unknown product
// yields ErrProductNotFound, a short one a *StockError naming it.
func CheckStock(lines []PlanProduct, catalog map[int64]products.Product) error {
	required := make(map[int64]float64, len(lines))
	for _, line := range lines {
		required[line.ProductID] += line.Quantity
	}
	for _, line := range lines {
		p, ok := catalog[line.ProductID]
		if !ok || line.ProductID <= 0 {
			return ErrProductNotFound
		}
		if need := required[line.ProductID]; need > p.CurrentStock {
			return &StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.CurrentStock,
				Required:    need,
			}
		}
	}
	return nil
}
