package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"budget/internal/export"
	"budget/internal/ledger"
	applog "budget/internal/log"
)

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	view, err := s.api.Summary(r.URL.Query().Get("currency"))
	if err != nil {
		s.writeServiceError(w, r, "export csv", err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, s.api.Expenses(ledger.OrderInserted), view.DisplayCurrency, view.Rates); err != nil {
		s.writeServiceError(w, r, "export csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleExportChart serves the category pie chart. Renders are cached per ledger
// version and display currency.
func (s *Server) handleExportChart(w http.ResponseWriter, r *http.Request) {
	version := s.api.Version()
	view, err := s.api.Summary(r.URL.Query().Get("currency"))
	if err != nil {
		s.writeServiceError(w, r, "render chart", err)
		return
	}

	key := chartCacheKey(version, view.DisplayCurrency)
	png, ok := s.chartCache.Get(key)
	if !ok {
		var buf bytes.Buffer
		if err := export.RenderCategoryChart(&buf, view.Categories, view.DisplayCurrency); err != nil {
			if errors.Is(err, export.ErrNoData) {
				ErrorResponse(http.StatusNotFound, CodeNoData, "no expenses to chart").Write(w)
				return
			}
			s.writeServiceError(w, r, "render chart", err)
			return
		}
		png = buf.Bytes()
		s.chartCache.Set(key, png)
		slog.DebugContext(r.Context(), "Category chart rendered",
			applog.FieldComponent, applog.ComponentExport,
			applog.FieldVersion, version,
			applog.FieldDisplayCurrency, view.DisplayCurrency)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

func chartCacheKey(version int64, currency string) string {
	return fmt.Sprintf("%d:%s", version, currency)
}
