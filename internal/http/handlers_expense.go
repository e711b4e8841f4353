package http

import (
	"log/slog"
	"net/http"
	"strings"

	"budget/internal/core"
	"budget/internal/ledger"
	applog "budget/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	order := ledger.OrderInserted
	switch strings.ToLower(r.URL.Query().Get("order")) {
	case "", "inserted":
	case "recent":
		order = ledger.OrderRecent
	default:
		ValidationErrorResponse(&core.ValidationError{Field: "order", Err: errUnknownOrder}).Write(w)
		return
	}
	list := s.api.Expenses(order)
	NewJSONResponse().Data(map[string]any{
		"expenses": toExpensesJSON(list),
		"count":    len(list),
	}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, fail := parseBody(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	in, err := ParseExpenseInput(p)
	if err != nil {
		slog.InfoContext(r.Context(), "Expense rejected",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldError, err)
		ValidationErrorResponse(err).Write(w)
		return
	}

	exp, view, err := s.api.AddExpense(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, "add expense", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+exp.ID).
		Data(map[string]any{
			"expense": toExpenseJSON(exp),
			"summary": toViewJSON(view),
		}).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		BadRequestError("missing expense id").Write(w)
		return
	}
	removed, view, err := s.api.DeleteExpense(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "delete expense", err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"removed": removed,
		"summary": toViewJSON(view),
	}).Write(w)
}

// handleClearExpenses empties the ledger and clears the goal; requires ?confirm=true.
func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if !queryBool(r, "confirm") {
		BadRequestError("clearing all expenses requires confirm=true").Write(w)
		return
	}
	view, err := s.api.ClearAll(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "clear expenses", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"summary": toViewJSON(view)}).Write(w)
}

// writeServiceError maps validation failures to 422 and everything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if core.IsValidation(err) {
		ValidationErrorResponse(err).Write(w)
		return
	}
	slog.ErrorContext(r.Context(), "Request failed",
		applog.FieldComponent, applog.ComponentHTTP,
		applog.FieldOperation, op,
		applog.FieldError, err)
	InternalServerError("could not " + op).Write(w)
}
