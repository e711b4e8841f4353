// Package export renders the ledger as CSV and as a category chart.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"budget/internal/core"
)

var csvHeader = []string{
	"id", "date", "time", "title", "category", "amount", "currency",
	"converted_amount", "display_currency", "approximate",
}

// EscapeFormula prefixes text that a spreadsheet would evaluate as a formula
// with a single quote, so it is shown as typed.
func EscapeFormula(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// WriteCSV writes one row per expense with its amount converted into display.
func WriteCSV(w io.Writer, expenses []core.Expense, display string, table *core.RateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		c := core.Convert(e.Amount, e.Currency, display, table)
		row := []string{
			e.ID,
			e.Date.String(),
			e.Time,
			EscapeFormula(e.Title),
			EscapeFormula(e.Category),
			e.Amount.StringFixed(2),
			e.Currency,
			c.Amount.StringFixed(2),
			display,
			strconv.FormatBool(c.Approximate),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
