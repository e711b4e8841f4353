package ledger

import (
	"budget/internal/core"
)

// View is the derived, read-only picture of the ledger in one display currency.
type View struct {
	DisplayCurrency string
	Theme           core.Theme
	ExpenseCount    int
	Total           core.Total
	Categories      []core.CategoryTotal
	Goal            core.GoalStatus
	Rates           *core.RateTable
}

// Approximate reports whether any figure in the view fell back to an unconverted amount.
func (v View) Approximate() bool {
	if v.Total.Approximate || v.Goal.Approximate {
		return true
	}
	for _, c := range v.Categories {
		if c.Approximate {
			return true
		}
	}
	return false
}

// View computes the derived view in the preferred display currency.
func (e *Engine) View() View {
	return e.ViewIn(e.prefs.DisplayCurrency)
}

// ViewIn computes the derived view in display using the engine's rate table.
func (e *Engine) ViewIn(display string) View {
	total := e.TotalSpent(display, e.rates)
	return View{
		DisplayCurrency: display,
		Theme:           e.prefs.Theme,
		ExpenseCount:    len(e.expenses),
		Total:           total,
		Categories:      e.TotalsByCategory(display, e.rates),
		Goal:            e.GoalStatus(total.Amount, display, e.rates),
		Rates:           e.rates,
	}
}
