package http

import (
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/ledger"

	"github.com/shopspring/decimal"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type expenseJSON struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Formatted string          `json:"formatted"`
	Category  string          `json:"category"`
	Date      string          `json:"date"`
	Time      string          `json:"time,omitempty"`
}

type totalJSON struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Formatted   string          `json:"formatted"`
	Approximate bool            `json:"approximate"`
}

type categoryJSON struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Formatted   string          `json:"formatted"`
	Count       int             `json:"count"`
	Approximate bool            `json:"approximate"`
}

type goalJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type goalStatusJSON struct {
	Set                bool            `json:"set"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency,omitempty"`
	Converted          decimal.Decimal `json:"converted"`
	Remaining          decimal.Decimal `json:"remaining"`
	FormattedRemaining string          `json:"formatted_remaining,omitempty"`
	Exceeded           bool            `json:"exceeded"`
	Approximate        bool            `json:"approximate"`
}

type ratesJSON struct {
	Base      string                     `json:"base"`
	AsOf      string                     `json:"as_of,omitempty"`
	FetchedAt *time.Time                 `json:"fetched_at,omitempty"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

type ratesInfoJSON struct {
	Base      string     `json:"base"`
	AsOf      string     `json:"as_of,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

type viewJSON struct {
	DisplayCurrency string         `json:"display_currency"`
	Theme           core.Theme     `json:"theme"`
	ExpenseCount    int            `json:"expense_count"`
	Total           totalJSON      `json:"total"`
	Categories      []categoryJSON `json:"categories"`
	Goal            goalStatusJSON `json:"goal"`
	Approximate     bool           `json:"approximate"`
	Rates           *ratesInfoJSON `json:"rates"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:        e.ID,
		Title:     e.Title,
		Amount:    e.Amount,
		Currency:  e.Currency,
		Formatted: core.FormatAmount(e.Amount, e.Currency),
		Category:  e.Category,
		Date:      e.Date.String(),
		Time:      e.Time,
	}
}

func toExpensesJSON(list []core.Expense) []expenseJSON {
	out := make([]expenseJSON, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseJSON(e))
	}
	return out
}

func toViewJSON(v ledger.View) viewJSON {
	out := viewJSON{
		DisplayCurrency: v.DisplayCurrency,
		Theme:           v.Theme,
		ExpenseCount:    v.ExpenseCount,
		Total: totalJSON{
			Amount:      v.Total.Amount,
			Currency:    v.Total.Currency,
			Formatted:   core.FormatAmount(v.Total.Amount, v.Total.Currency),
			Approximate: v.Total.Approximate,
		},
		Categories:  make([]categoryJSON, 0, len(v.Categories)),
		Goal:        toGoalStatusJSON(v.Goal, v.DisplayCurrency),
		Approximate: v.Approximate(),
	}
	for _, c := range v.Categories {
		out.Categories = append(out.Categories, categoryJSON{
			Name:        c.Name,
			Amount:      c.Amount,
			Formatted:   core.FormatAmount(c.Amount, v.DisplayCurrency),
			Count:       c.Count,
			Approximate: c.Approximate,
		})
	}
	if v.Rates != nil {
		out.Rates = &ratesInfoJSON{Base: v.Rates.Base, AsOf: v.Rates.AsOf, FetchedAt: timePtr(v.Rates.FetchedAt)}
	}
	return out
}

func toGoalStatusJSON(st core.GoalStatus, display string) goalStatusJSON {
	if !st.Set {
		return goalStatusJSON{Amount: decimal.Zero, Converted: decimal.Zero, Remaining: decimal.Zero}
	}
	return goalStatusJSON{
		Set:                true,
		Amount:             st.Goal.Amount,
		Currency:           st.Goal.Currency,
		Converted:          st.ConvertedGoal,
		Remaining:          st.Remaining,
		FormattedRemaining: core.FormatAmount(st.Remaining, display),
		Exceeded:           st.Exceeded,
		Approximate:        st.Approximate,
	}
}

func toRatesJSON(t *core.RateTable) *ratesJSON {
	if t == nil {
		return nil
	}
	out := &ratesJSON{
		Base:      t.Base,
		AsOf:      t.AsOf,
		FetchedAt: timePtr(t.FetchedAt),
		Rates:     make(map[string]decimal.Decimal, len(t.Rates)),
	}
	for code, r := range t.Rates {
		out.Rates[code] = r
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
