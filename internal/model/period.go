package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Period is a calendar period in canonical form: "2006-01" for a month or
// "2006-Q1" for a quarter. Periods of the same cadence sort correctly as
// strings, which the stores rely on for history ordering.
type Period string

// ParsePeriod normalizes a period string. Accepted forms: YYYY-MM, YYYY-QN.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return "", eris.New("period: empty")
	}

	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 4 {
		return "", eris.Errorf("period: malformed %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1900 || year > 2200 {
		return "", eris.Errorf("period: bad year in %q", s)
	}

	if strings.HasPrefix(parts[1], "Q") {
		q, err := strconv.Atoi(parts[1][1:])
		if err != nil || q < 1 || q > 4 {
			return "", eris.Errorf("period: bad quarter in %q", s)
		}
		return Period(fmt.Sprintf("%04d-Q%d", year, q)), nil
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", eris.Errorf("period: bad month in %q", s)
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month)), nil
}

// MonthOf returns the monthly period containing t.
func MonthOf(t time.Time) Period {
	return Period(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// Quarterly reports whether the period is a quarter rather than a month.
func (p Period) Quarterly() bool {
	return strings.Contains(string(p), "Q")
}

// StartTime returns the first instant of the period in UTC.
func (p Period) StartTime() time.Time {
	s := string(p)
	if len(s) < 6 {
		return time.Time{}
	}
	year, _ := strconv.Atoi(s[:4])
	if p.Quarterly() {
		q, _ := strconv.Atoi(s[6:])
		return time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	}
	month, _ := strconv.Atoi(s[5:])
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// Before reports whether p starts before other.
func (p Period) Before(other Period) bool {
	return p.StartTime().Before(other.StartTime())
}

// Next returns the following period at the same cadence.
func (p Period) Next() Period {
	s := string(p)
	year, _ := strconv.Atoi(s[:4])
	if p.Quarterly() {
		q, _ := strconv.Atoi(s[6:])
		q++
		if q > 4 {
			q = 1
			year++
		}
		return Period(fmt.Sprintf("%04d-Q%d", year, q))
	}
	month, _ := strconv.Atoi(s[5:])
	month++
	if month > 12 {
		month = 1
		year++
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month))
}

// Prev returns the preceding period at the same cadence.
func (p Period) Prev() Period {
	s := string(p)
	year, _ := strconv.Atoi(s[:4])
	if p.Quarterly() {
		q, _ := strconv.Atoi(s[6:])
		q--
		if q < 1 {
			q = 4
			year--
		}
		return Period(fmt.Sprintf("%04d-Q%d", year, q))
	}
	month, _ := strconv.Atoi(s[5:])
	month--
	if month < 1 {
		month = 12
		year--
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month))
}

// Contiguous reports whether next immediately follows p at the same cadence.
func (p Period) Contiguous(next Period) bool {
	return p.Quarterly() == next.Quarterly() && p.Next() == next
}
