package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

type (
	// TransactionType carries the income/expense direction. The amount itself
	// is always stored unsigned.
	TransactionType string

	RepetitionTypes string

	// Date is a calendar date with no time component.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID         int64
		UserID     int64
		CategoryID *int64
		Date       Date
		Type       TransactionType
		Amount     Money
		Memo       string
		Version    int64
		CreatedAt  time.Time
	}

	Category struct {
		ID        int64
		UserID    int64
		Name      string
		Type      TransactionType // fixed at creation
		Color     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		ID           int64
		Email        string
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	UserSettings struct {
		UserID         int64
		Currency       string
		TelegramChatID int64
	}

	RecurringTransaction struct {
		ID         int64
		UserID     int64
		CategoryID *int64
		StartDate  Date
		EndDate    Date
		Every      RepetitionTypes
		Type       TransactionType
		Amount     Money
		Memo       string
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidColor      = errors.New("invalid color")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrTypeMismatch      = errors.New("transaction type does not match category type")
	ErrInvalidCurrency   = errors.New("invalid currency code")
	ErrTooLong           = errors.New("value too long")
	ErrInvalidRepetition = errors.New("invalid repetition type")
)

// Recognized reports whether the type is one of the two known tags.
func (t TransactionType) Recognized() bool {
	return t == Income || t == Expense
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

const dateLayout = "2006-01-02"

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return ErrInvalidDate
	}
	d.Time = t
	return nil
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Type.Recognized() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Memo) > 200 {
		return fmt.Errorf("%w: memo (max 200 characters)", ErrTooLong)
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 50 {
		return fmt.Errorf("%w: name (max 50 characters)", ErrTooLong)
	}
	if !c.Type.Recognized() {
		return ErrInvalidType
	}
	if !validColor(c.Color) {
		return ErrInvalidColor
	}
	return nil
}

// validColor accepts #rgb and #rrggbb hex notation.
func validColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func (u User) Validate() error {
	email := strings.TrimSpace(u.Email)
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	if len(strings.TrimSpace(u.Name)) == 0 {
		return ErrEmptyName
	}
	if len(u.Name) > 100 {
		return fmt.Errorf("%w: name (max 100 characters)", ErrTooLong)
	}
	return nil
}

func (s UserSettings) Validate() error {
	if len(s.Currency) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range s.Currency {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

func (rt RecurringTransaction) Validate() error {
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("%w: start date", ErrInvalidDate)
	}
	if !rt.EndDate.IsZero() && rt.EndDate.Before(rt.StartDate.Time) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidDate)
	}
	switch rt.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return ErrInvalidRepetition
	}
	if !rt.Type.Recognized() {
		return ErrInvalidType
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if len(rt.Memo) > 200 {
		return fmt.Errorf("%w: memo (max 200 characters)", ErrTooLong)
	}
	return nil
}
