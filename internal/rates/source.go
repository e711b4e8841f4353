// Package rates fetches exchange-rate tables and keeps the last good one.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
)

// DefaultURL is the public rates endpoint; the base code is appended as a path segment.
const DefaultURL = "https://api.exchangerate-api.com/v4/latest"

var ErrFetch = errors.New("rates fetch failed")

// Source loads a rate table for a base currency.
type Source interface {
	Fetch(ctx context.Context, base string) (core.RateTable, error)
}

// HTTPSource reads tables shaped like {"base":"USD","date":"2025-01-01","rates":{"EUR":0.9}}.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Now     func() time.Time
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Now:     time.Now,
	}
}

type ratesPayload struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) Fetch(ctx context.Context, base string) (core.RateTable, error) {
	addr := s.BaseURL + "/" + base
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.RateTable{}, fmt.Errorf("%w: GET %s: %s", ErrFetch, addr, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.RateTable{}, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	var p ratesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return core.RateTable{}, fmt.Errorf("%w: decode body: %v", ErrFetch, err)
	}
	return s.table(p, base)
}

func (s *HTTPSource) table(p ratesPayload, requested string) (core.RateTable, error) {
	code := strings.ToUpper(strings.TrimSpace(p.Base))
	if code == "" {
		code = requested
	}
	if code == "" {
		return core.RateTable{}, fmt.Errorf("%w: missing base currency", ErrFetch)
	}
	rates := make(map[string]decimal.Decimal, len(p.Rates))
	for c, r := range p.Rates {
		if r.IsPositive() {
			rates[strings.ToUpper(c)] = r
		}
	}
	if len(rates) == 0 {
		return core.RateTable{}, fmt.Errorf("%w: no usable rates", ErrFetch)
	}
	if _, ok := rates[code]; !ok {
		rates[code] = decimal.NewFromInt(1)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return core.RateTable{Base: code, Rates: rates, AsOf: p.Date, FetchedAt: now().UTC()}, nil
}

var _ Source = (*HTTPSource)(nil)
