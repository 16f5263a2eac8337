package core

import (
	"errors"
	"fmt"
	"time"
)

// MonthKey identifies a calendar month. Its text form is YYYY-MM.
type MonthKey struct {
	Year  int
	Month time.Month
}

var ErrInvalidMonthKey = errors.New("invalid month key")

func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return MonthKey{Year: t.Year(), Month: t.Month()}, nil
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Label renders the month the way charts show it, e.g. "Mar 2024".
func (m MonthKey) Label() string {
	return m.first().Format("Jan 2006")
}

// AddMonths moves n calendar months forward (or backward for negative n).
func (m MonthKey) AddMonths(n int) MonthKey {
	t := m.first().AddDate(0, n, 0)
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// Compare returns -1, 0 or 1 like cmp.Compare.
func (m MonthKey) Compare(o MonthKey) int {
	switch {
	case m.Year < o.Year, m.Year == o.Year && m.Month < o.Month:
		return -1
	case m == o:
		return 0
	default:
		return 1
	}
}

func (m MonthKey) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m MonthKey) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MonthKey) UnmarshalText(b []byte) error {
	k, err := ParseMonthKey(string(b))
	if err != nil {
		return err
	}
	*m = k
	return nil
}

func (m MonthKey) first() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}
