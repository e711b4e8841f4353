// Package ledger implements the expense ledger and its valuation queries.
//
// An Engine owns the recorded expenses, the optional spending goal, the display
// preferences and the last good exchange-rate table. Mutations return the
// updated View so the presentation layer decides when to re-render; the engine
// never pushes updates itself. An Engine is not safe for concurrent use: exactly
// one owner (see services.BudgetService) drives it.
package ledger

import (
	"strings"

	"budget/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order selects how Expenses lists the ledger.
type Order int

const (
	// OrderInserted lists expenses in the order they were recorded.
	OrderInserted Order = iota
	// OrderRecent lists the most recently recorded expense first.
	OrderRecent
)

// ExpenseInput is the user submission for AddExpense.
type ExpenseInput struct {
	Title    string
	Amount   decimal.Decimal
	Currency string
	Category string
	Date     core.Date
	Time     string
}

type Engine struct {
	expenses []core.Expense
	goal     core.Goal
	prefs    core.Preferences
	rates    *core.RateTable
	newID    func() string
}

// New returns an empty engine with default preferences.
func New() *Engine {
	return &Engine{
		prefs: core.DefaultPreferences(),
		newID: uuid.NewString,
	}
}

// FromSnapshot rebuilds an engine from persisted state.
func FromSnapshot(s core.Snapshot) *Engine {
	e := New()
	e.Restore(s)
	return e
}

// AddExpense validates the input and appends a new expense with a fresh id.
func (e *Engine) AddExpense(in ExpenseInput) (core.Expense, View, error) {
	currency, err := core.NormalizeCurrency(in.Currency)
	if err != nil {
		return core.Expense{}, View{}, &core.ValidationError{Field: "currency", Err: err}
	}
	exp := core.Expense{
		Title:    strings.TrimSpace(in.Title),
		Amount:   in.Amount,
		Currency: currency,
		Category: core.NormalizeCategory(in.Category),
		Date:     in.Date,
		Time:     strings.TrimSpace(in.Time),
	}
	if err := exp.Validate(); err != nil {
		return core.Expense{}, View{}, err
	}
	exp.ID = e.newID()
	e.expenses = append(e.expenses, exp)
	return exp, e.View(), nil
}

// DeleteExpense removes the expense with the given id. An unknown id is a no-op.
func (e *Engine) DeleteExpense(id string) (bool, View) {
	for i, exp := range e.expenses {
		if exp.ID == id {
			e.expenses = append(e.expenses[:i:i], e.expenses[i+1:]...)
			return true, e.View()
		}
	}
	return false, e.View()
}

// ClearAll empties the ledger and clears the goal. Preferences and rates are kept.
func (e *Engine) ClearAll() View {
	e.expenses = nil
	e.goal = core.Goal{}
	return e.View()
}

// SetGoal replaces any existing goal.
func (e *Engine) SetGoal(amount decimal.Decimal, currency string) (core.Goal, View, error) {
	code, err := core.NormalizeCurrency(currency)
	if err != nil {
		return core.Goal{}, View{}, &core.ValidationError{Field: "currency", Err: err}
	}
	g := core.Goal{Amount: amount, Currency: code}
	if err := g.Validate(); err != nil {
		return core.Goal{}, View{}, err
	}
	e.goal = g
	return g, e.View(), nil
}

// ClearGoal resets the goal to the cleared state.
func (e *Engine) ClearGoal() View {
	e.goal = core.Goal{}
	return e.View()
}

// SetPreferences updates the display currency and theme. Empty values keep the current setting.
func (e *Engine) SetPreferences(displayCurrency, theme string) (View, error) {
	next := e.prefs
	if strings.TrimSpace(displayCurrency) != "" {
		code, err := core.NormalizeCurrency(displayCurrency)
		if err != nil {
			return View{}, &core.ValidationError{Field: "display_currency", Err: err}
		}
		next.DisplayCurrency = code
	}
	if strings.TrimSpace(theme) != "" {
		th, err := core.ParseTheme(theme)
		if err != nil {
			return View{}, &core.ValidationError{Field: "theme", Err: err}
		}
		next.Theme = th
	}
	e.prefs = next
	return e.View(), nil
}

// ReplaceRates installs a new rate table snapshot.
func (e *Engine) ReplaceRates(t *core.RateTable) {
	e.rates = t
}

// Rates returns the current rate table, or nil when none was loaded.
func (e *Engine) Rates() *core.RateTable {
	return e.rates
}

func (e *Engine) Goal() core.Goal {
	return e.goal
}

func (e *Engine) Preferences() core.Preferences {
	return e.prefs
}

// Len returns the number of recorded expenses.
func (e *Engine) Len() int {
	return len(e.expenses)
}

// Expenses returns a copy of the ledger.
func (e *Engine) Expenses(order Order) []core.Expense {
	out := make([]core.Expense, len(e.expenses))
	copy(out, e.expenses)
	if order == OrderRecent {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// TotalSpent sums the ledger in display using table.
func (e *Engine) TotalSpent(display string, table *core.RateTable) core.Total {
	return core.TotalSpent(e.expenses, display, table)
}

// TotalsByCategory groups the ledger per category in display using table.
func (e *Engine) TotalsByCategory(display string, table *core.RateTable) []core.CategoryTotal {
	return core.TotalsByCategory(e.expenses, display, table)
}

// GoalStatus compares the goal, converted into display, with total.
func (e *Engine) GoalStatus(total decimal.Decimal, display string, table *core.RateTable) core.GoalStatus {
	return core.EvaluateGoal(e.goal, total, display, table)
}

// Snapshot captures the full engine state for persistence.
func (e *Engine) Snapshot() core.Snapshot {
	return core.Snapshot{
		Expenses:    e.Expenses(OrderInserted),
		Goal:        e.goal,
		Preferences: e.prefs,
		Rates:       e.rates,
	}
}

// Restore replaces the engine state with s.
func (e *Engine) Restore(s core.Snapshot) {
	e.expenses = append([]core.Expense(nil), s.Expenses...)
	e.goal = s.Goal
	e.prefs = s.Preferences
	if e.prefs.DisplayCurrency == "" {
		e.prefs.DisplayCurrency = core.DefaultDisplayCurrency
	}
	if e.prefs.Theme == "" {
		e.prefs.Theme = core.ThemeLight
	}
	e.rates = s.Rates
}
