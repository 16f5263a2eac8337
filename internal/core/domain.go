package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// Transaction is a single ledger entry as handed over by a transaction source.
	// Amount is signed; the forecasting pipeline only looks at its magnitude.
	Transaction struct {
		ID          string
		UserID      string
		Date        Date
		Category    string
		Description string
		Amount      decimal.Decimal
		Type        TransactionType
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUser        = errors.New("empty user id")
	ErrEmptyDescription = errors.New("empty description")
)

// ParseTransactionType accepts the type names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate understands ISO dates and the day-first layouts found in exported sheets.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, errors.New("unrecognized date: " + s)
}

// MonthKey returns the calendar month the date falls in.
func (d Date) MonthKey() MonthKey {
	return MonthKey{Year: d.Year(), Month: d.Time.Month()}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// IsExpense reports whether the transaction is an expense with a usable date.
func (t Transaction) IsExpense() bool {
	return t.Type == Expense && !t.Date.IsZero()
}
