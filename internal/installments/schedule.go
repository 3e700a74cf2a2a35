package installments

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitAmount divides total into n installments. Every installment but the
// last is ceil(total/n); the last absorbs the remainder so the parts sum to
// total exactly.
func SplitAmount(total float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, ErrInvalidMonths
	}
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	whole := decimal.NewFromFloat(total)
	count := decimal.NewFromInt(int64(n))
	per := whole.Div(count).Ceil()
	last := whole.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
	if last.IsNegative() {
		return nil, ErrTooManyInstallments
	}

	parts := make([]float64, n)
	perF := per.InexactFloat64()
	for i := 0; i < n-1; i++ {
		parts[i] = perF
	}
	parts[n-1] = last.InexactFloat64()
	return parts, nil
}

// AddMonths returns d shifted by months calendar months. When the target
// month is shorter the day is clamped to its last day, so 31 January plus
// one month is 29 February in a leap year.
func AddMonths(d Date, months int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := daysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return Date{time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

// DueDates returns n due dates starting at start, one calendar month apart.
// Each date is derived from start so clamping never accumulates.
func DueDates(start Date, n int) []Date {
	if n <= 0 {
		return nil
	}
	dates := make([]Date, n)
	for i := range dates {
		dates[i] = AddMonths(start, i)
	}
	return dates
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Schedule pairs generated amounts with due dates.
type Schedule struct {
	Amounts []float64
	Dates   []Date
}

// BuildSchedule combines SplitAmount and DueDates.
func BuildSchedule(total float64, n int, start Date) (Schedule, error) {
	amounts, err := SplitAmount(total, n)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Amounts: amounts, Dates: DueDates(start, n)}, nil
}
