// Package sheets mirrors the ledger snapshot into a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
	"budget/internal/export"
	applog "budget/internal/log"
)

const (
	DefaultExpensesSheet = "Expenses"
	DefaultSummarySheet  = "Summary"
)

// ValuesWriter is the subset of the Sheets values API the exporter needs.
type ValuesWriter interface {
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]any) error
}

// Exporter rewrites the expenses and summary ranges from a snapshot.
type Exporter struct {
	writer        ValuesWriter
	expensesSheet string
	summarySheet  string
}

func NewExporter(w ValuesWriter, expensesSheet, summarySheet string) *Exporter {
	if strings.TrimSpace(expensesSheet) == "" {
		expensesSheet = DefaultExpensesSheet
	}
	if strings.TrimSpace(summarySheet) == "" {
		summarySheet = DefaultSummarySheet
	}
	return &Exporter{writer: w, expensesSheet: expensesSheet, summarySheet: summarySheet}
}

// Export replaces both sheets' contents.
func (e *Exporter) Export(ctx context.Context, s core.Snapshot) error {
	if e.writer == nil {
		return errors.New("sheets writer not initialized")
	}
	display := s.Preferences.DisplayCurrency
	if display == "" {
		display = core.DefaultDisplayCurrency
	}

	if err := e.replace(ctx, e.expensesSheet, ExpenseRows(s.Expenses, display, s.Rates)); err != nil {
		return err
	}
	if err := e.replace(ctx, e.summarySheet, SummaryRows(s, display)); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Snapshot exported to Google Sheets",
		applog.FieldComponent, applog.ComponentSheets,
		"expenses", len(s.Expenses),
		applog.FieldDisplayCurrency, display)
	return nil
}

func (e *Exporter) replace(ctx context.Context, sheet string, rows [][]any) error {
	all := fmt.Sprintf("%s!A:Z", sheet)
	if err := e.writer.Clear(ctx, all); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A1", sheet)
	if err := e.writer.Update(ctx, rng, rows); err != nil {
		return fmt.Errorf("update %s: %w", sheet, err)
	}
	return nil
}

// ExpenseRows builds the expenses sheet: header then one row per expense.
func ExpenseRows(expenses []core.Expense, display string, table *core.RateTable) [][]any {
	rows := make([][]any, 0, len(expenses)+1)
	rows = append(rows, []any{"Date", "Time", "Title", "Category", "Amount", "Currency", "Converted (" + display + ")", "Approximate"})
	for _, x := range expenses {
		c := core.Convert(x.Amount, x.Currency, display, table)
		rows = append(rows, []any{
			x.Date.String(),
			x.Time,
			export.EscapeFormula(x.Title),
			export.EscapeFormula(x.Category),
			x.Amount.StringFixed(2),
			x.Currency,
			c.Amount.StringFixed(2),
			c.Approximate,
		})
	}
	return rows
}

// SummaryRows builds the summary sheet: total, goal status and one row per category.
// The third column flags amounts that include unconverted terms.
func SummaryRows(s core.Snapshot, display string) [][]any {
	total := core.TotalSpent(s.Expenses, display, s.Rates)
	st := core.EvaluateGoal(s.Goal, total.Amount, display, s.Rates)

	rows := [][]any{
		{"Display currency", display},
		{"", "Amount", "Approximate"},
		{"Total spent", total.Amount.StringFixed(2), total.Approximate},
	}
	if st.Set {
		approx := st.Approximate || total.Approximate
		rows = append(rows,
			[]any{"Goal", st.ConvertedGoal.StringFixed(2), st.Approximate},
			[]any{"Remaining", st.Remaining.StringFixed(2), approx},
			[]any{"Exceeded", st.Exceeded, approx},
		)
	} else {
		rows = append(rows, []any{"Goal", "none"})
	}
	if s.Rates != nil {
		rows = append(rows, []any{"Rates base", s.Rates.Base}, []any{"Rates as of", s.Rates.AsOf})
	} else {
		rows = append(rows, []any{"Rates base", "none"})
	}

	rows = append(rows, []any{}, []any{"Category", "Amount", "Count", "Approximate"})
	for _, c := range core.TotalsByCategory(s.Expenses, display, s.Rates) {
		rows = append(rows, []any{export.EscapeFormula(c.Name), c.Amount.StringFixed(2), c.Count, c.Approximate})
	}
	return rows
}
