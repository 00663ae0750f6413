package ledger

import (
	"errors"
	"strings"
	"time"

	"encargos/internal/core"
)

// Period is a look-back window used by the statistics view.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

var ErrUnknownPeriod = errors.New("unknown period")

// ParsePeriod accepts week, month or year. Empty input defaults to month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", ErrUnknownPeriod
	}
}

// Label is the user-facing name of the period.
func (p Period) Label() string {
	switch p {
	case PeriodWeek:
		return "Última semana"
	case PeriodYear:
		return "Último año"
	default:
		return "Último mes"
	}
}

// PeriodStart returns the first calendar day included in the period ending at now.
//
// Weeks are 7 days. Months and years use calendar arithmetic and clamp to the
// last day of the target month when the day does not exist there, so
// 2024-03-31 minus one month is 2024-02-29 and 2024-02-29 minus one year is
// 2023-02-28.
func PeriodStart(p Period, now time.Time) (core.Date, error) {
	today := core.DateOf(now)
	switch p {
	case PeriodWeek:
		return core.Date{Time: today.AddDate(0, 0, -7)}, nil
	case PeriodMonth:
		return subMonths(today, 1), nil
	case PeriodYear:
		return subMonths(today, 12), nil
	default:
		return core.Date{}, ErrUnknownPeriod
	}
}

func subMonths(d core.Date, n int) core.Date {
	y, m, day := d.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -n, 0)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PeriodFilter keeps entries whose order date is on or after the period start.
func PeriodFilter(entries []Entry, p Period, now time.Time) ([]Entry, error) {
	start, err := PeriodStart(p, now)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if !e.Order.Date.Before(start.Time) {
			out = append(out, e)
		}
	}
	return out, nil
}
