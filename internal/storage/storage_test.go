package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleSnapshot() core.Snapshot {
	return core.Snapshot{
		Expenses: []core.Expense{
			{ID: "a", Title: "Coffee", Amount: dec("5"), Currency: "USD", Category: "Food", Date: core.NewDate(2025, 1, 1), Time: "08:30"},
			{ID: "b", Title: "Train", Amount: dec("12.40"), Currency: "EUR", Category: "Transport", Date: core.NewDate(2025, 1, 2)},
		},
		Goal:        core.Goal{Amount: dec("1000"), Currency: "USD"},
		Preferences: core.Preferences{DisplayCurrency: "EUR", Theme: core.ThemeDark},
		Rates: &core.RateTable{
			Base:      "USD",
			Rates:     map[string]decimal.Decimal{"EUR": dec("0.9"), "INR": dec("83.1")},
			AsOf:      "2025-01-01",
			FetchedAt: time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC),
		},
	}
}

func assertSnapshot(t *testing.T, got core.Snapshot) {
	t.Helper()
	want := sampleSnapshot()
	if len(got.Expenses) != len(want.Expenses) {
		t.Fatalf("expected %d expenses, got %d", len(want.Expenses), len(got.Expenses))
	}
	for i := range want.Expenses {
		g, w := got.Expenses[i], want.Expenses[i]
		if g.ID != w.ID || g.Title != w.Title || !g.Amount.Equal(w.Amount) || g.Currency != w.Currency ||
			g.Category != w.Category || g.Date.String() != w.Date.String() || g.Time != w.Time {
			t.Fatalf("expense %d mismatch: got %+v want %+v", i, g, w)
		}
	}
	if !got.Goal.Amount.Equal(want.Goal.Amount) || got.Goal.Currency != want.Goal.Currency {
		t.Fatalf("goal mismatch: %+v", got.Goal)
	}
	if got.Preferences != want.Preferences {
		t.Fatalf("preferences mismatch: %+v", got.Preferences)
	}
	if got.Rates == nil || got.Rates.Base != "USD" || got.Rates.AsOf != "2025-01-01" ||
		!got.Rates.FetchedAt.Equal(want.Rates.FetchedAt) || !got.Rates.Rates["INR"].Equal(dec("83.1")) {
		t.Fatalf("rates mismatch: %+v", got.Rates)
	}
}

func TestDecodeSnapshotDefaults(t *testing.T) {
	for _, in := range []string{"", "{}", "null"} {
		s, err := DecodeSnapshot([]byte(in))
		if err != nil {
			t.Fatalf("DecodeSnapshot(%q): %v", in, err)
		}
		if len(s.Expenses) != 0 || s.Goal.IsSet() || s.Rates != nil {
			t.Fatalf("expected empty snapshot, got %+v", s)
		}
		if s.Preferences != core.DefaultPreferences() {
			t.Fatalf("expected default preferences, got %+v", s.Preferences)
		}
	}
}

func TestDecodeSnapshotCorrupt(t *testing.T) {
	s, err := DecodeSnapshot([]byte("{not json"))
	if !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
	if s.Preferences.DisplayCurrency != core.DefaultDisplayCurrency {
		t.Fatalf("corrupt input should still yield defaults")
	}
}

func TestDecodeSnapshotDropsInvalidFields(t *testing.T) {
	data := []byte(`{
		"expenses": [
			{"id":"ok","title":"Coffee","amount":"5","currency":"usd","category":"","date":"2025-01-01"},
			{"id":"neg","title":"Bad","amount":"-3","currency":"USD","category":"Food","date":"2025-01-01"},
			{"id":"nodate","title":"Bad","amount":"3","currency":"USD","category":"Food","date":""},
			{"id":"ok","title":"Duplicate","amount":"1","currency":"USD","category":"Food","date":"2025-01-01"},
			"garbage"
		],
		"goal": {"amount": "0", "currency": "USD"},
		"displayCurrency": "XXZ",
		"theme": "purple",
		"rates": {"base": "", "rates": {}}
	}`)
	s, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(s.Expenses) != 1 || s.Expenses[0].ID != "ok" {
		t.Fatalf("expected only the valid expense, got %+v", s.Expenses)
	}
	if s.Expenses[0].Currency != "USD" || s.Expenses[0].Category != core.OtherCategory {
		t.Fatalf("expense not normalized: %+v", s.Expenses[0])
	}
	if s.Goal.IsSet() || s.Preferences != core.DefaultPreferences() || s.Rates != nil {
		t.Fatalf("invalid fields should default, got %+v", s)
	}
}

func TestDecodeSnapshotAcceptsNumericAmounts(t *testing.T) {
	data := []byte(`{"expenses":[{"id":"x","title":"Tea","amount":2.5,"currency":"GBP","category":"Food","date":"2025-03-04"}],"goal":{"amount":300,"currency":"GBP"}}`)
	s, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(s.Expenses) != 1 || !s.Expenses[0].Amount.Equal(dec("2.5")) || !s.Goal.Amount.Equal(dec("300")) {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	data, err := EncodeSnapshot(sampleSnapshot())
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	assertSnapshot(t, s)
}

func TestDecodeSnapshotKeepsMultibyteTitles(t *testing.T) {
	snap := sampleSnapshot()
	snap.Expenses[0].Title = strings.Repeat("€", 100)
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(s.Expenses) != 2 || s.Expenses[0].Title != snap.Expenses[0].Title {
		t.Fatalf("multibyte title dropped on reload: %+v", s.Expenses)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s, err := m.Load(ctx)
	if err != nil || len(s.Expenses) != 0 {
		t.Fatalf("empty store should load defaults, got %+v %v", s, err)
	}
	if err := m.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, err = m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshot(t, s)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "snapshot.json")
	f, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	s, err := f.Load(ctx)
	if err != nil || len(s.Expenses) != 0 {
		t.Fatalf("missing file should load defaults, got %+v %v", s, err)
	}
	if err := f.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, err = f.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshot(t, s)

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}

	if err := os.WriteFile(path, []byte("]]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := f.Load(ctx); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budget.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	s, err := repo.Load(ctx)
	if err != nil || len(s.Expenses) != 0 || s.Preferences != core.DefaultPreferences() {
		t.Fatalf("fresh database should load defaults, got %+v %v", s, err)
	}

	if err := repo.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshot(t, s)

	// A second save replaces rows instead of appending.
	next := sampleSnapshot()
	next.Expenses = next.Expenses[1:]
	next.Goal = core.Goal{}
	next.Rates = nil
	if err := repo.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Expenses) != 1 || s.Expenses[0].ID != "b" || s.Goal.IsSet() || s.Rates != nil {
		t.Fatalf("unexpected snapshot after replace: %+v", s)
	}
}

func TestSQLiteRepositoryReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budget.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	if err := repo.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	repo.Close()

	reopened, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	s, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshot(t, s)
}
