// Package storage persists the ledger snapshot.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
)

// ErrCorruptSnapshot is returned together with a default snapshot when stored data cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// SnapshotStore loads and saves the whole ledger state as one unit.
// Load on an empty store returns core.EmptySnapshot and no error.
type SnapshotStore interface {
	Load(ctx context.Context) (core.Snapshot, error)
	Save(ctx context.Context, s core.Snapshot) error
	Close() error
}

type wireExpense struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
	Time     string          `json:"time,omitempty"`
}

type wireGoal struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type wireRates struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date,omitempty"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type wireSnapshot struct {
	Expenses        []wireExpense `json:"expenses"`
	Goal            *wireGoal     `json:"goal"`
	DisplayCurrency string        `json:"displayCurrency"`
	Theme           string        `json:"theme"`
	Rates           *wireRates    `json:"rates"`
	RatesFetchedAt  *time.Time    `json:"ratesFetchedAt"`
}

// looseSnapshot decodes each section independently so one bad field does not lose the rest.
type looseSnapshot struct {
	Expenses        []json.RawMessage `json:"expenses"`
	Goal            json.RawMessage   `json:"goal"`
	DisplayCurrency json.RawMessage   `json:"displayCurrency"`
	Theme           json.RawMessage   `json:"theme"`
	Rates           json.RawMessage   `json:"rates"`
	RatesFetchedAt  json.RawMessage   `json:"ratesFetchedAt"`
}

// EncodeSnapshot renders s in the JSON wire format.
func EncodeSnapshot(s core.Snapshot) ([]byte, error) {
	data, err := json.Marshal(toWire(s))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses the wire format. Absent or invalid fields take their defaults and
// individually invalid expenses are dropped. Undecodable input yields the default snapshot
// and ErrCorruptSnapshot.
func DecodeSnapshot(data []byte) (core.Snapshot, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return core.EmptySnapshot(), nil
	}
	var loose looseSnapshot
	if err := json.Unmarshal(data, &loose); err != nil {
		return core.EmptySnapshot(), fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var w wireSnapshot
	for _, raw := range loose.Expenses {
		var e wireExpense
		if json.Unmarshal(raw, &e) == nil {
			w.Expenses = append(w.Expenses, e)
		}
	}
	var g wireGoal
	if len(loose.Goal) > 0 && json.Unmarshal(loose.Goal, &g) == nil {
		w.Goal = &g
	}
	_ = json.Unmarshal(loose.DisplayCurrency, &w.DisplayCurrency)
	_ = json.Unmarshal(loose.Theme, &w.Theme)
	var r wireRates
	if len(loose.Rates) > 0 && json.Unmarshal(loose.Rates, &r) == nil {
		w.Rates = &r
	}
	var at time.Time
	if len(loose.RatesFetchedAt) > 0 && json.Unmarshal(loose.RatesFetchedAt, &at) == nil {
		w.RatesFetchedAt = &at
	}
	return fromWire(w), nil
}

func toWire(s core.Snapshot) wireSnapshot {
	w := wireSnapshot{
		Expenses:        make([]wireExpense, 0, len(s.Expenses)),
		DisplayCurrency: s.Preferences.DisplayCurrency,
		Theme:           string(s.Preferences.Theme),
	}
	for _, e := range s.Expenses {
		w.Expenses = append(w.Expenses, wireExpense{
			ID:       e.ID,
			Title:    e.Title,
			Amount:   e.Amount,
			Currency: e.Currency,
			Category: e.Category,
			Date:     e.Date.String(),
			Time:     e.Time,
		})
	}
	if s.Goal.IsSet() {
		w.Goal = &wireGoal{Amount: s.Goal.Amount, Currency: s.Goal.Currency}
	}
	if s.Rates != nil {
		w.Rates = &wireRates{Base: s.Rates.Base, Date: s.Rates.AsOf, Rates: s.Rates.Rates}
		if !s.Rates.FetchedAt.IsZero() {
			at := s.Rates.FetchedAt.UTC()
			w.RatesFetchedAt = &at
		}
	}
	return w
}

// fromWire applies defaults and drops anything that does not validate.
func fromWire(w wireSnapshot) core.Snapshot {
	s := core.EmptySnapshot()

	seen := make(map[string]struct{}, len(w.Expenses))
	for _, we := range w.Expenses {
		if we.ID == "" {
			continue
		}
		if _, dup := seen[we.ID]; dup {
			continue
		}
		date, err := core.ParseDate(we.Date)
		if err != nil {
			continue
		}
		currency, err := core.NormalizeCurrency(we.Currency)
		if err != nil {
			continue
		}
		e := core.Expense{
			ID:       we.ID,
			Title:    strings.TrimSpace(we.Title),
			Amount:   we.Amount,
			Currency: currency,
			Category: core.NormalizeCategory(we.Category),
			Date:     date,
			Time:     strings.TrimSpace(we.Time),
		}
		if e.Validate() != nil {
			continue
		}
		seen[e.ID] = struct{}{}
		s.Expenses = append(s.Expenses, e)
	}

	if w.Goal != nil {
		if code, err := core.NormalizeCurrency(w.Goal.Currency); err == nil {
			g := core.Goal{Amount: w.Goal.Amount, Currency: code}
			if g.Validate() == nil {
				s.Goal = g
			}
		}
	}

	if code, err := core.NormalizeCurrency(w.DisplayCurrency); err == nil {
		s.Preferences.DisplayCurrency = code
	}
	if th, err := core.ParseTheme(w.Theme); err == nil {
		s.Preferences.Theme = th
	}

	if w.Rates != nil {
		s.Rates = rateTable(w.Rates, w.RatesFetchedAt)
	}
	return s
}

func rateTable(r *wireRates, fetchedAt *time.Time) *core.RateTable {
	base := strings.ToUpper(strings.TrimSpace(r.Base))
	if base == "" {
		return nil
	}
	rates := make(map[string]decimal.Decimal, len(r.Rates))
	for code, v := range r.Rates {
		if v.IsPositive() {
			rates[strings.ToUpper(code)] = v
		}
	}
	if len(rates) == 0 {
		return nil
	}
	t := &core.RateTable{Base: base, Rates: rates, AsOf: r.Date}
	if fetchedAt != nil {
		t.FetchedAt = fetchedAt.UTC()
	}
	return t
}
