package export

import (
	"errors"
	"fmt"
	"io"

	"budget/internal/core"

	"github.com/wcharczuk/go-chart/v2"
)

var ErrNoData = errors.New("no data to chart")

const (
	chartWidth  = 800
	chartHeight = 600
)

// RenderCategoryChart draws a pie chart of the category totals as PNG.
// Categories with a zero total are left out; ErrNoData is returned when none remain.
func RenderCategoryChart(w io.Writer, totals []core.CategoryTotal, currency string) error {
	values := make([]chart.Value, 0, len(totals))
	for _, t := range totals {
		if !t.Amount.IsPositive() {
			continue
		}
		label := fmt.Sprintf("%s: %s", t.Name, core.FormatAmount(t.Amount, currency))
		if t.Approximate {
			label += " (approx.)"
		}
		values = append(values, chart.Value{Label: label, Value: t.Amount.InexactFloat64()})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	pie := chart.PieChart{
		Width:  chartWidth,
		Height: chartHeight,
		Values: values,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40, Left: 40, Right: 40, Bottom: 40},
			FillColor: chart.ColorWhite,
		},
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render category chart: %w", err)
	}
	return nil
}
