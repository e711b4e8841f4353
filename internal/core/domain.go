package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"

	// DefaultDisplayCurrency is used when no display currency was ever chosen.
	DefaultDisplayCurrency = "USD"

	// OtherCategory collects expenses recorded without a category.
	OtherCategory = "Other"

	maxTitleLength = 200
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
)

// DefaultCategories are offered as suggestions; any free-text category is accepted.
var DefaultCategories = []string{"Food", "Transport", "Shopping", "Bills", "Entertainment", "Health", OtherCategory}

type (
	Theme string

	Date struct {
		time.Time
	}

	Expense struct {
		ID       string
		Title    string
		Amount   decimal.Decimal
		Currency string
		Category string
		Date     Date
		Time     string // optional, HH:MM
	}

	// Goal is a spending ceiling. The zero value is the cleared goal.
	Goal struct {
		Amount   decimal.Decimal
		Currency string
	}

	Preferences struct {
		DisplayCurrency string
		Theme           Theme
	}

	// Snapshot is the unit of persistence: everything needed to rebuild the ledger.
	Snapshot struct {
		Expenses    []Expense
		Goal        Goal
		Preferences Preferences
		Rates       *RateTable
	}
)

var (
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = fmt.Errorf("title too long (max %d characters)", maxTitleLength)
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrMissingDate     = errors.New("missing date")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidGoal     = errors.New("goal amount must be greater than zero")
	ErrInvalidTheme    = errors.New("invalid theme")
)

// ValidationError reports user input that was rejected. The ledger is left unchanged.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", ErrInvalidTheme
}

// NormalizeCategory trims the label and folds blanks into OtherCategory.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return OtherCategory
	}
	return s
}

func validTime(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(timeLayout, s)
	return err == nil
}

func (e Expense) Validate() error {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return invalid("title", ErrEmptyTitle)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return invalid("title", ErrTitleTooLong)
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return invalid("amount", err)
	}
	if _, err := NormalizeCurrency(e.Currency); err != nil {
		return invalid("currency", err)
	}
	if err := e.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if !validTime(e.Time) {
		return invalid("time", ErrInvalidTime)
	}
	return nil
}

// IsSet reports whether a goal is active. A zero amount or missing currency means "no goal".
func (g Goal) IsSet() bool {
	return g.Amount.IsPositive() && g.Currency != ""
}

func (g Goal) Validate() error {
	if !g.Amount.IsPositive() {
		return invalid("amount", ErrInvalidGoal)
	}
	if _, err := NormalizeCurrency(g.Currency); err != nil {
		return invalid("currency", err)
	}
	return nil
}

// DefaultPreferences returns USD display in the light theme.
func DefaultPreferences() Preferences {
	return Preferences{DisplayCurrency: DefaultDisplayCurrency, Theme: ThemeLight}
}

func (p Preferences) Validate() error {
	if _, err := NormalizeCurrency(p.DisplayCurrency); err != nil {
		return invalid("display_currency", err)
	}
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		return invalid("theme", err)
	}
	return nil
}

// EmptySnapshot is the state of a fresh install.
func EmptySnapshot() Snapshot {
	return Snapshot{Preferences: DefaultPreferences()}
}
