package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/ledger"
	"budget/internal/rates"
	"budget/internal/storage"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []core.Snapshot
	loadErr error
	load    core.Snapshot
	saveErr error
	closed  bool
}

func (f *fakeStore) Load(ctx context.Context) (core.Snapshot, error) {
	return f.load, f.loadErr
}

func (f *fakeStore) Save(ctx context.Context, s core.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (f *fakePublisher) PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

type fakeSource struct {
	calls int
	table core.RateTable
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context, base string) (core.RateTable, error) {
	f.calls++
	if f.err != nil {
		return core.RateTable{}, f.err
	}
	return f.table, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func coffee() ledger.ExpenseInput {
	return ledger.ExpenseInput{
		Title:    "Coffee",
		Amount:   dec("5"),
		Currency: "USD",
		Category: "Food",
		Date:     core.NewDate(2025, 1, 1),
	}
}

func newService(t *testing.T, store storage.SnapshotStore, refresher RateRefresher, pub EventPublisher) *BudgetService {
	t.Helper()
	svc := NewBudgetService(store, refresher, pub)
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc
}

func TestAddExpensePersistsAndPublishes(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, nil, pub)
	start := svc.Version()

	exp, view, err := svc.AddExpense(context.Background(), coffee())
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if view.ExpenseCount != 1 || !view.Total.Amount.Equal(dec("5")) {
		t.Fatalf("unexpected view %+v", view)
	}
	if store.saves() != 1 || len(store.saved[0].Expenses) != 1 {
		t.Fatalf("expected one snapshot with the new expense, got %+v", store.saved)
	}
	if len(pub.events) != 1 || pub.events[0].Type != amqp.EventExpenseAdded || pub.events[0].ExpenseID != exp.ID {
		t.Fatalf("unexpected events %+v", pub.events)
	}
	if pub.events[0].Version != start+1 || svc.Version() != start+1 {
		t.Fatalf("version should advance by one, got %d", pub.events[0].Version)
	}
}

func TestValidationErrorDoesNotPersist(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, nil, pub)

	in := coffee()
	in.Title = "   "
	if _, _, err := svc.AddExpense(context.Background(), in); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.saves() != 0 || len(pub.events) != 0 {
		t.Fatalf("rejected input must not persist or publish")
	}
}

func TestSaveFailureRollsBack(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, nil, pub)
	if _, _, err := svc.AddExpense(context.Background(), coffee()); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	version := svc.Version()

	store.saveErr = errors.New("disk full")
	if _, _, err := svc.AddExpense(context.Background(), coffee()); err == nil {
		t.Fatalf("expected persistence error")
	}
	if _, err := svc.ClearAll(context.Background()); err == nil {
		t.Fatalf("expected persistence error")
	}
	if got := len(svc.Expenses(ledger.OrderInserted)); got != 1 {
		t.Fatalf("failed writes must be rolled back, have %d expenses", got)
	}
	if svc.Version() != version || len(pub.events) != 1 {
		t.Fatalf("failed writes must not bump the version or publish")
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newService(t, store, nil, pub)

	if _, _, err := svc.SetGoal(context.Background(), dec("1000"), "USD"); err != nil {
		t.Fatalf("SetGoal should succeed without the broker: %v", err)
	}
	if !svc.Goal().IsSet() || store.saves() != 1 {
		t.Fatalf("goal should be set and persisted")
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, nil, pub)

	removed, _, err := svc.DeleteExpense(context.Background(), "missing")
	if err != nil || removed {
		t.Fatalf("unknown id should be a no-op, got removed=%v err=%v", removed, err)
	}
	if store.saves() != 0 || len(pub.events) != 0 {
		t.Fatalf("no-op delete must not persist or publish")
	}
}

func TestMutationEvents(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, nil, pub)
	ctx := context.Background()

	exp, _, _ := svc.AddExpense(ctx, coffee())
	_, _, _ = svc.DeleteExpense(ctx, exp.ID)
	_, _, _ = svc.SetGoal(ctx, dec("10"), "EUR")
	_, _ = svc.ClearGoal(ctx)
	_, _ = svc.SetPreferences(ctx, "EUR", "dark")
	_, _ = svc.ClearAll(ctx)

	want := []amqp.EventType{
		amqp.EventExpenseAdded, amqp.EventExpenseDeleted, amqp.EventGoalSet,
		amqp.EventGoalCleared, amqp.EventPreferencesUpdated, amqp.EventLedgerCleared,
	}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), pub.events)
	}
	for i, ev := range pub.events {
		if ev.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, want[i])
		}
		if i > 0 && ev.Version <= pub.events[i-1].Version {
			t.Fatalf("versions must increase: %+v", pub.events)
		}
	}
}

func TestOpenCorruptSnapshotStartsFresh(t *testing.T) {
	store := &fakeStore{load: core.EmptySnapshot(), loadErr: storage.ErrCorruptSnapshot}
	svc := newService(t, store, nil, nil)
	if len(svc.Expenses(ledger.OrderInserted)) != 0 || svc.View().DisplayCurrency != core.DefaultDisplayCurrency {
		t.Fatalf("corrupt snapshot should yield defaults")
	}

	broken := NewBudgetService(&fakeStore{loadErr: errors.New("permission denied")}, nil, nil)
	if err := broken.Open(context.Background()); err == nil {
		t.Fatalf("other load errors should fail Open")
	}
}

func TestOpenSeedsRefresher(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	refresher := rates.NewRefresher(src, "USD", rates.WithClock(func() time.Time { return now }))
	persisted := &core.RateTable{
		Base:      "USD",
		Rates:     map[string]decimal.Decimal{"EUR": dec("0.9")},
		FetchedAt: now.Add(-time.Hour),
	}
	snap := core.EmptySnapshot()
	snap.Rates = persisted
	svc := newService(t, &fakeStore{load: snap}, refresher, nil)

	res, _, err := svc.RefreshRates(context.Background(), false)
	if err != nil {
		t.Fatalf("RefreshRates: %v", err)
	}
	if res.Origin != rates.OriginCache || src.calls != 0 {
		t.Fatalf("persisted table inside ttl should be reused, got %s with %d calls", res.Origin, src.calls)
	}
}

func TestRefreshRatesInstallsAndFallsBack(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{table: core.RateTable{
		Base:      "USD",
		Rates:     map[string]decimal.Decimal{"EUR": dec("0.5")},
		FetchedAt: now,
	}}
	refresher := rates.NewRefresher(src, "USD", rates.WithClock(func() time.Time { return now }))
	store := &fakeStore{load: core.EmptySnapshot()}
	pub := &fakePublisher{}
	svc := newService(t, store, refresher, pub)
	ctx := context.Background()

	in := coffee()
	in.Amount = dec("10")
	_, _, _ = svc.AddExpense(ctx, in)
	_, _ = svc.SetPreferences(ctx, "EUR", "")

	res, view, err := svc.RefreshRates(ctx, true)
	if err != nil || res.Origin != rates.OriginRemote {
		t.Fatalf("expected remote refresh, got %+v %v", res, err)
	}
	if !view.Total.Amount.Equal(dec("5")) || view.Approximate() {
		t.Fatalf("expected 5 EUR, got %s approx=%v", view.Total.Amount, view.Approximate())
	}
	last := store.saved[len(store.saved)-1]
	if last.Rates == nil || last.Rates.Base != "USD" {
		t.Fatalf("refreshed table should be persisted")
	}
	if pub.events[len(pub.events)-1].Type != amqp.EventRatesRefreshed {
		t.Fatalf("expected rates.refreshed event")
	}

	saves := store.saves()
	src.err = rates.ErrFetch
	res, view, err = svc.RefreshRates(ctx, true)
	if err != nil {
		t.Fatalf("fetch failure must not be an error: %v", err)
	}
	if res.Origin != rates.OriginStale || !errors.Is(res.Err, rates.ErrFetch) {
		t.Fatalf("expected stale fallback, got %+v", res)
	}
	if !view.Total.Amount.Equal(dec("5")) || store.saves() != saves {
		t.Fatalf("fallback should keep the previous table without rewriting it")
	}
}

func TestRefreshRatesDisabled(t *testing.T) {
	svc := newService(t, &fakeStore{load: core.EmptySnapshot()}, nil, nil)
	res, _, err := svc.RefreshRates(context.Background(), true)
	if err != nil || res.Origin != rates.OriginNone || !errors.Is(res.Err, ErrRatesDisabled) {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
}

func TestSummaryOverride(t *testing.T) {
	svc := newService(t, &fakeStore{load: core.EmptySnapshot()}, nil, nil)
	_, _, _ = svc.AddExpense(context.Background(), coffee())

	view, err := svc.Summary("eur")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if view.DisplayCurrency != "EUR" || !view.Total.Approximate {
		t.Fatalf("override without rates should be approximate, got %+v", view)
	}
	if _, err := svc.Summary("ZZZ"); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBudgetServiceClose(t *testing.T) {
	store := &fakeStore{}
	svc := NewBudgetService(store, nil, nil)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !store.closed {
		t.Fatalf("store should be closed")
	}
}
