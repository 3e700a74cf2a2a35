package installments

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localizer renders user-facing notifications. Numbers are formatted for the
// configured locale; texts are Arabic.
type Localizer struct {
	printer *message.Printer
	// ProductName resolves a product id to a display name for re-localised
	// backend stock errors. Optional.
	ProductName func(id int64) string
}

// NewLocalizer builds a Localizer formatting numbers for tag.
func NewLocalizer(tag language.Tag) *Localizer {
	return &Localizer{printer: message.NewPrinter(tag)}
}

// DefaultLocalizer formats numbers with the Arabic locale.
var DefaultLocalizer = NewLocalizer(language.Arabic)

const (
	msgGenericFailure  = "حدث خطأ غير متوقع، يرجى المحاولة مرة أخرى"
	msgNetworkFailure  = "تعذر الاتصال بالخادم، يرجى التحقق من الاتصال والمحاولة مرة أخرى"
	msgFixFormErrors   = "يرجى تصحيح الأخطاء في النموذج"
	msgProductNotFound = "المنتج غير موجود"
	msgDebtNotFound    = "الدين غير موجود"
	msgNotFound        = "القسط غير موجود"
	msgMoneyBox        = "يرجى اختيار صندوق المال"
	msgAmount          = "يجب أن يكون المبلغ المدفوع أكبر من صفر"
	msgCustomer        = "يرجى اختيار العميل"
	msgNoProducts      = "يرجى إضافة منتج واحد على الأقل"
	msgMonths          = "يجب أن يكون عدد الأقساط أكبر من صفر"
	msgTooMany         = "عدد الأقساط كبير جداً بالنسبة للمبلغ"
	msgDueDate         = "يرجى تحديد تاريخ الاستحقاق الأول"
	msgNothingToConv   = "لا يوجد مبلغ متبقٍ في هذا الدين"
	msgConverted       = "تم تحويل هذا الدين إلى أقساط مسبقاً"
	msgDuplicate       = "تم تسجيل هذه الدفعة مسبقاً"
	msgCancelled       = "تم إلغاء العملية"
	msgAllFailed       = "فشل تحويل جميع الديون المحددة إلى أقساط"
)

var stockPattern = regexp.MustCompile(`Insufficient stock for product ID (\d+)\. Available: ([\d.]+), Required: ([\d.]+)`)

// MethodLabel returns the Arabic label of a payment method.
func MethodLabel(m PaymentMethod) string {
	switch m {
	case MethodCash:
		return "نقدي"
	case MethodCard:
		return "بطاقة"
	case MethodBankTransfer:
		return "تحويل بنكي"
	default:
		return string(m)
	}
}

// StatusLabel returns the Arabic label of a payment status.
func StatusLabel(s PaymentStatus) string {
	switch s {
	case StatusPaid:
		return "مدفوع"
	case StatusPartial:
		return "مدفوع جزئياً"
	case StatusUnpaid:
		return "غير مدفوع"
	default:
		return string(s)
	}
}

// Amount formats a currency amount for the locale with two decimals.
func (l *Localizer) Amount(v float64) string {
	return l.printer.Sprintf("%.2f", v)
}

// Count formats an integer count for the locale.
func (l *Localizer) Count(n int) string {
	return l.printer.Sprintf("%d", n)
}

// StockMessage names the product that lacks stock.
func (l *Localizer) StockMessage(e *StockError) string {
	name := e.ProductName
	if name == "" && l.ProductName != nil {
		name = l.ProductName(e.ProductID)
	}
	if name == "" {
		name = "#" + strconv.FormatInt(e.ProductID, 10)
	}
	return "الكمية المطلوبة من المنتج \"" + name + "\" غير متوفرة. المتوفر: " +
		l.printer.Sprintf("%v", e.Available) + "، المطلوب: " + l.printer.Sprintf("%v", e.Required)
}

// Localize converts err into a single user-facing message. Known domain
// errors and backend message patterns are translated; anything else is
// returned verbatim.
func (l *Localizer) Localize(err error) string {
	if err == nil {
		return ""
	}
	var stock *StockError
	if errors.As(err, &stock) {
		return l.StockMessage(stock)
	}
	var fields FieldErrors
	if errors.As(err, &fields) {
		return msgFixFormErrors
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return msgNetworkFailure
	case errors.Is(err, ErrProductNotFound):
		return msgProductNotFound
	case errors.Is(err, ErrDebtNotFound):
		return msgDebtNotFound
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	case errors.Is(err, ErrMoneyBoxRequired), errors.Is(err, ErrMoneyBoxNotFound):
		return msgMoneyBox
	case errors.Is(err, ErrInvalidAmount):
		return msgAmount
	case errors.Is(err, ErrCustomerRequired):
		return msgCustomer
	case errors.Is(err, ErrNoProducts):
		return msgNoProducts
	case errors.Is(err, ErrInvalidMonths):
		return msgMonths
	case errors.Is(err, ErrTooManyInstallments):
		return msgTooMany
	case errors.Is(err, ErrDueDateRequired):
		return msgDueDate
	case errors.Is(err, ErrNothingToConvert):
		return msgNothingToConv
	case errors.Is(err, ErrAlreadyConverted):
		return msgConverted
	case errors.Is(err, ErrDuplicatePayment):
		return msgDuplicate
	}
	return l.LocalizeMessage(err.Error())
}

// LocalizeMessage translates a raw backend message by pattern. Unmatched
// messages are returned unchanged; an empty message maps to the generic
// fallback.
func (l *Localizer) LocalizeMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return msgGenericFailure
	}
	if stock, ok := ParseStockMessage(msg); ok {
		return l.StockMessage(stock)
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "product not found"):
		return msgProductNotFound
	case strings.Contains(lower, "debt not found"):
		return msgDebtNotFound
	case strings.Contains(lower, "installment not found"):
		return msgNotFound
	}
	return msg
}

// ParseStockMessage extracts a StockError from a backend message.
func ParseStockMessage(msg string) (*StockError, bool) {
	m := stockPattern.FindStringSubmatch(msg)
	if m == nil {
		return nil, false
	}
	id, _ := strconv.ParseInt(m[1], 10, 64)
	avail, _ := strconv.ParseFloat(m[2], 64)
	req, _ := strconv.ParseFloat(m[3], 64)
	return &StockError{ProductID: id, Available: avail, Required: req}, true
}

// PaymentMessage is the success notification for a recorded payment.
func (l *Localizer) PaymentMessage(r Receipt) string {
	return "تم تسجيل الدفعة بنجاح - رقم الإيصال: " + r.ReceiptNumber +
		" - المبلغ: " + l.Amount(r.Amount) +
		" - طريقة الدفع: " + MethodLabel(r.PaymentMethod)
}

// PlanCreatedMessage is the success notification for a new plan.
func (l *Localizer) PlanCreatedMessage(p PlanResult) string {
	return "تم إنشاء خطة التقسيط بنجاح - " + l.Count(len(p.Installments)) +
		" أقساط بإجمالي " + l.Amount(p.TotalAmount)
}

// ConversionMessage summarises a conversion batch. A batch in which every
// debt failed gets a distinct failure message.
func (l *Localizer) ConversionMessage(s ConversionSummary) string {
	if s.AllFailed() {
		return msgAllFailed
	}
	msg := "تم تحويل " + l.Count(s.SuccessCount) + " دين إلى " +
		l.Count(s.TotalInstallmentsCreated) + " قسط بنجاح"
	if s.ErrorCount > 0 {
		msg += "، وفشل تحويل " + l.Count(s.ErrorCount) + " دين"
	}
	return msg
}

// ConversionNote is the provenance note written on converted installments.
func ConversionNote(invoiceNo string, index, total int) string {
	return "تحويل من دين - " + invoiceNo + " - القسط " + strconv.Itoa(index) + " من " + strconv.Itoa(total)
}

// PlanNote is the provenance note written on plan installments.
func PlanNote(invoiceNo string, index, total int, extra string) string {
	note := "خطة تقسيط - " + invoiceNo + " - القسط " + strconv.Itoa(index) + " من " + strconv.Itoa(total)
	if extra = strings.TrimSpace(extra); extra != "" {
		note += " - " + extra
	}
	return note
}
