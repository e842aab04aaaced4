package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownMonth  = errors.New("unknown month name")
	ErrNoYear        = errors.New("delivery date has no year and no year rule is configured")
	ErrMalformedDate = errors.New("malformed delivery date")
)

var months = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// YearRule infers the year of a delivery date that does not state one:
// months from LateMonthFrom through December belong to LateYear, the rest to
// EarlyYear. It only holds for order histories spanning that one window.
type YearRule struct {
	LateMonthFrom time.Month
	LateYear      int
	EarlyYear     int
}

// DefaultYearRule covers orders delivered between October 2022 and
// September 2023.
func DefaultYearRule() *YearRule {
	return &YearRule{LateMonthFrom: time.October, LateYear: 2022, EarlyYear: 2023}
}

func (r *YearRule) Year(m time.Month) int {
	if m >= r.LateMonthFrom {
		return r.LateYear
	}
	return r.EarlyYear
}

// ParseDeliveryDate parses "<weekday> <day> de <month> de <year>" as shown on
// the order page. An explicit four-digit year wins; otherwise rule decides,
// and a nil rule makes a missing year an error.
func ParseDeliveryDate(text string, rule *YearRule) (time.Time, error) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) < 4 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, text)
	}

	day, err := strconv.Atoi(tokens[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q in %q", ErrMalformedDate, tokens[1], text)
	}

	month, ok := months[strings.Trim(tokens[3], ",.")]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q in %q", ErrUnknownMonth, tokens[3], text)
	}

	year, ok := explicitYear(tokens)
	if !ok {
		if rule == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNoYear, text)
		}
		year = rule.Year(month)
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || date.Month() != month {
		return time.Time{}, fmt.Errorf("%w: no day %d in %s %d", ErrMalformedDate, day, month, year)
	}
	return date, nil
}

func explicitYear(tokens []string) (int, bool) {
	if len(tokens) < 6 {
		return 0, false
	}
	text := strings.Trim(tokens[5], ",.")
	if len(text) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return year, true
}
