// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON objects or url-encoded forms; both are read through the
// same RequestBodyParser so handlers never care which one arrived.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budget/internal/core"
	"budget/internal/ledger"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns a trimmed string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseBody runs the parser and maps read failures to a 400 response.
func parseBody(r *http.Request) (*RequestBodyParser, *JSONResponseBuilder) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, ErrorResponse(http.StatusRequestEntityTooLarge, CodeBadRequest, err.Error())
		}
		return nil, BadRequestError("malformed request body")
	}
	return p, nil
}

// number returns the raw literal when key holds a JSON number.
func (p *RequestBodyParser) number(key string) (json.Number, bool) {
	if p.jsonData == nil {
		return "", false
	}
	n, ok := p.jsonData[key].(json.Number)
	return n, ok
}

// parseAmount reads a strictly positive decimal amount. JSON numbers may use
// exponent form; strings and form values may not.
func parseAmount(p *RequestBodyParser, field string) (decimal.Decimal, error) {
	if n, ok := p.number(field); ok {
		return core.AmountFromNumber(n.String())
	}
	return core.ParseAmount(p.Get(field))
}

// parseAmountField reads an amount, reporting failures against field.
func parseAmountField(p *RequestBodyParser, field string) (decimal.Decimal, error) {
	amount, err := parseAmount(p, field)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Err: err}
	}
	return amount, nil
}

// ParseExpenseInput builds the ledger input from a request body. Currency and
// category validation is left to the ledger.
func ParseExpenseInput(p *RequestBodyParser) (ledger.ExpenseInput, error) {
	in := ledger.ExpenseInput{
		Title:    p.Get("title"),
		Currency: p.Get("currency"),
		Category: p.Get("category"),
		Time:     p.Get("time"),
	}
	if in.Title == "" {
		return in, &core.ValidationError{Field: "title", Err: core.ErrEmptyTitle}
	}
	amount, err := parseAmountField(p, "amount")
	if err != nil {
		return in, err
	}
	in.Amount = amount

	raw := p.Get("date")
	if raw == "" {
		return in, &core.ValidationError{Field: "date", Err: core.ErrMissingDate}
	}
	date, err := core.ParseDate(raw)
	if err != nil {
		return in, &core.ValidationError{Field: "date", Err: fmt.Errorf("expected YYYY-MM-DD: %w", core.ErrMissingDate)}
	}
	in.Date = date
	return in, nil
}

// ParseGoalInput reads {amount, currency} for a goal.
func ParseGoalInput(p *RequestBodyParser) (decimal.Decimal, string, error) {
	amount, err := parseAmount(p, "amount")
	if err != nil {
		return decimal.Zero, "", &core.ValidationError{Field: "amount", Err: core.ErrInvalidGoal}
	}
	return amount, p.Get("currency"), nil
}

// queryBool accepts 1/true/yes in any case.
func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
