package report

import (
	"time"

	"github.com/shopspring/decimal"

	"scoopos/backend/internal/domain"
)

func ValidPeriod(period domain.PeriodType) bool {
	switch period {
	case domain.PeriodDay, domain.PeriodWeek, domain.PeriodFortnight, domain.PeriodMonth, domain.PeriodCustom:
		return true
	}
	return false
}

// CurrentPeriod is the window of the given period that contains anchor, in
// anchor's location: the calendar day, the 7 or 14 days ending with that day,
// or the calendar month. Custom periods have no implied window.
func CurrentPeriod(period domain.PeriodType, anchor time.Time) (domain.DateRange, error) {
	midnight := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	end := midnight.AddDate(0, 0, 1)

	switch period {
	case domain.PeriodDay:
		return domain.DateRange{From: midnight, To: end}, nil
	case domain.PeriodWeek:
		return domain.DateRange{From: end.AddDate(0, 0, -7), To: end}, nil
	case domain.PeriodFortnight:
		return domain.DateRange{From: end.AddDate(0, 0, -14), To: end}, nil
	case domain.PeriodMonth:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return domain.DateRange{From: first, To: first.AddDate(0, 1, 0)}, nil
	case domain.PeriodCustom:
		return domain.DateRange{}, domain.Fail(domain.KindMissingComparisonRange, "from", "custom period needs an explicit range")
	default:
		return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "period", "unknown period %q", period)
	}
}

// PreviousPeriod derives the window that immediately precedes current and
// ends at current.From. Day, week and fortnight windows repeat the length of
// current, so a caller-supplied range is compared against one of equal
// length. Month steps back a calendar month. Custom periods cannot be
// inferred and must supply the previous window explicitly.
func PreviousPeriod(period domain.PeriodType, current domain.DateRange, custom *domain.DateRange) (domain.DateRange, error) {
	if !current.To.After(current.From) {
		return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "to", "range end must be after its start")
	}

	switch period {
	case domain.PeriodDay, domain.PeriodWeek, domain.PeriodFortnight:
		return domain.DateRange{From: current.From.Add(-current.Duration()), To: current.From}, nil
	case domain.PeriodMonth:
		return domain.DateRange{From: monthBefore(current.From), To: current.From}, nil
	case domain.PeriodCustom:
		if custom == nil || custom.From.IsZero() || custom.To.IsZero() {
			return domain.DateRange{}, domain.ErrMissingComparisonRange
		}
		if !custom.To.After(custom.From) {
			return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "previous_to", "previous range end must be after its start")
		}
		return *custom, nil
	default:
		return domain.DateRange{}, domain.Fail(domain.KindInvalidRequest, "period", "unknown period %q", period)
	}
}

// monthBefore steps back one calendar month, clamping the day so that
// March 31 maps to the last day of February.
func monthBefore(t time.Time) time.Time {
	year, month, d := t.Date()
	prev := time.Date(year, month-1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := prev.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(prev.Year(), prev.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func Metrics(sales []domain.Sale) domain.ComparisonMetrics {
	summary := Summarize(sales)
	avg := decimal.Zero
	if summary.TotalSales > 0 {
		avg = domain.RoundMoney(summary.TotalFinal.Div(decimal.NewFromInt(int64(summary.TotalSales))))
	}
	return domain.ComparisonMetrics{
		TotalFinal:    summary.TotalFinal,
		TotalSales:    summary.TotalSales,
		AverageTicket: avg,
	}
}

// Compare reports both windows and the deltas current minus previous.
func Compare(period domain.PeriodType, current domain.DateRange, currentSales []domain.Sale, previous domain.DateRange, previousSales []domain.Sale) domain.SalesComparison {
	cur := Metrics(currentSales)
	prev := Metrics(previousSales)
	return domain.SalesComparison{
		Period:          period,
		Current:         current,
		Previous:        previous,
		CurrentMetrics:  cur,
		PreviousMetrics: prev,
		Deltas: domain.ComparisonMetrics{
			TotalFinal:    cur.TotalFinal.Sub(prev.TotalFinal),
			TotalSales:    cur.TotalSales - prev.TotalSales,
			AverageTicket: cur.AverageTicket.Sub(prev.AverageTicket),
		},
	}
}

// Within keeps the sales whose creation time falls inside r.
func Within(sales []domain.Sale, r domain.DateRange) []domain.Sale {
	result := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if r.Contains(s.CreatedAt) {
			result = append(result, s)
		}
	}
	return result
}
