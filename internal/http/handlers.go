package http

import (
	"errors"
	"log/slog"
	"net/http"

	applog "budget/internal/log"
	"budget/internal/rates"
	"budget/internal/services"
)

var errUnknownOrder = errors.New("order must be inserted or recent")

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	view := s.api.View()
	g := s.api.Goal()
	data := map[string]any{
		"goal":   nil,
		"status": toGoalStatusJSON(view.Goal, view.DisplayCurrency),
	}
	if g.IsSet() {
		data["goal"] = goalJSON{Amount: g.Amount, Currency: g.Currency}
	}
	NewJSONResponse().Data(data).Write(w)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	p, fail := parseBody(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	amount, currency, err := ParseGoalInput(p)
	if err != nil {
		ValidationErrorResponse(err).Write(w)
		return
	}
	g, view, err := s.api.SetGoal(r.Context(), amount, currency)
	if err != nil {
		s.writeServiceError(w, r, "set goal", err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"goal":    goalJSON{Amount: g.Amount, Currency: g.Currency},
		"summary": toViewJSON(view),
	}).Write(w)
}

func (s *Server) handleClearGoal(w http.ResponseWriter, r *http.Request) {
	view, err := s.api.ClearGoal(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "clear goal", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"summary": toViewJSON(view)}).Write(w)
}

// handleSummary serves totals, category breakdown and goal status. ?currency= overrides
// the preferred display currency for this request only.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	view, err := s.api.Summary(r.URL.Query().Get("currency"))
	if err != nil {
		s.writeServiceError(w, r, "build summary", err)
		return
	}
	NewJSONResponse().Data(toViewJSON(view)).Write(w)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	view := s.api.View()
	NewJSONResponse().Data(map[string]any{
		"display_currency": view.DisplayCurrency,
		"theme":            view.Theme,
	}).Write(w)
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	p, fail := parseBody(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	view, err := s.api.SetPreferences(r.Context(), p.Get("display_currency"), p.Get("theme"))
	if err != nil {
		s.writeServiceError(w, r, "update preferences", err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"display_currency": view.DisplayCurrency,
		"theme":            view.Theme,
		"summary":          toViewJSON(view),
	}).Write(w)
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{"rates": toRatesJSON(s.api.Rates())}).Write(w)
}

// handleRefreshRates never fails because the provider did: the last good table
// stays in use and the response carries a warning.
func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	res, view, err := s.api.RefreshRates(r.Context(), queryBool(r, "force"))
	if err != nil {
		s.writeServiceError(w, r, "refresh rates", err)
		return
	}

	b := NewJSONResponse().Data(map[string]any{
		"origin":  res.Origin,
		"rates":   toRatesJSON(res.Table),
		"summary": toViewJSON(view),
	})
	if res.Err != nil {
		msg := "could not refresh exchange rates; using last known rates"
		switch {
		case errors.Is(res.Err, services.ErrRatesDisabled):
			msg = "exchange rate refresh is not configured"
		case res.Origin == rates.OriginNone:
			msg = "could not fetch exchange rates; amounts are shown unconverted"
		}
		slog.WarnContext(r.Context(), "Rates refresh degraded",
			applog.FieldComponent, applog.ComponentRates,
			applog.FieldRatesOrigin, string(res.Origin),
			applog.FieldError, res.Err)
		b.Warning(msg)
	}
	b.Write(w)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	table := s.api.Rates()
	codes := table.Codes()
	if codes == nil {
		codes = []string{}
	}
	base := ""
	if table != nil {
		base = table.Base
	}
	NewJSONResponse().Data(map[string]any{
		"base":       base,
		"currencies": codes,
	}).Write(w)
}
