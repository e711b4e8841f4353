package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable maps currency codes to multipliers relative to Base.
// A table is a read-only snapshot once built.
type RateTable struct {
	Base      string
	Rates     map[string]decimal.Decimal
	AsOf      string // provider date, informational
	FetchedAt time.Time
}

// Rate returns the multiplier for code. The base always has rate 1.
func (t *RateTable) Rate(code string) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	if code == t.Base {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[code]
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}
	return r, true
}

// Has reports whether code can be converted with this table.
func (t *RateTable) Has(code string) bool {
	_, ok := t.Rate(code)
	return ok
}

// Codes lists the convertible currency codes in alphabetical order.
func (t *RateTable) Codes() []string {
	if t == nil {
		return nil
	}
	seen := map[string]struct{}{t.Base: {}}
	out := []string{t.Base}
	for code, r := range t.Rates {
		if _, ok := seen[code]; ok || !r.IsPositive() {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Age is the time elapsed since the table was fetched.
func (t *RateTable) Age(now time.Time) time.Duration {
	if t == nil || t.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(t.FetchedAt)
}

// Conversion is the result of Convert. Approximate is set when a conversion was
// needed but could not be performed, in which case Amount is the input unchanged.
type Conversion struct {
	Amount      decimal.Decimal
	Approximate bool
}

// Convert values amount (in from) in currency to.
//
// Identical currencies are returned as is. Without a table, or when either
// currency is missing from it, the amount is returned unconverted and flagged
// Approximate. Otherwise the amount is normalised through the table's base.
func Convert(amount decimal.Decimal, from, to string, table *RateTable) Conversion {
	if from == to {
		return Conversion{Amount: amount}
	}
	if table == nil {
		return Conversion{Amount: amount, Approximate: true}
	}
	fromRate, okFrom := table.Rate(from)
	toRate, okTo := table.Rate(to)
	if !okFrom || !okTo {
		return Conversion{Amount: amount, Approximate: true}
	}
	switch {
	case from == table.Base:
		return Conversion{Amount: amount.Mul(toRate)}
	case to == table.Base:
		return Conversion{Amount: amount.Div(fromRate)}
	default:
		return Conversion{Amount: amount.Div(fromRate).Mul(toRate)}
	}
}
