package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/rates"
	"budget/internal/storage"

	"github.com/shopspring/decimal"
)

var ErrRatesDisabled = errors.New("rate refresh not configured")

// EventPublisher announces snapshot changes. amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error
}

// RateRefresher is the part of rates.Refresher the service depends on.
type RateRefresher interface {
	Refresh(ctx context.Context, force bool) rates.Result
	Seed(t *core.RateTable)
}

// BudgetService owns the ledger engine. Every mutation is persisted before it becomes
// visible; a failed write restores the previous state.
type BudgetService struct {
	mu        sync.Mutex
	engine    *ledger.Engine
	store     storage.SnapshotStore
	refresher RateRefresher
	publisher EventPublisher
	version   int64
}

// NewBudgetService wires the collaborators. refresher and publisher may be nil.
func NewBudgetService(store storage.SnapshotStore, refresher RateRefresher, publisher EventPublisher) *BudgetService {
	return &BudgetService{
		engine:    ledger.New(),
		store:     store,
		refresher: refresher,
		publisher: publisher,
		version:   time.Now().UnixMilli(),
	}
}

// Open loads the persisted snapshot. A corrupt snapshot is replaced by defaults.
func (s *BudgetService) Open(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptSnapshot) {
			return fmt.Errorf("load snapshot: %w", err)
		}
		slog.WarnContext(ctx, "Stored snapshot is corrupt, starting from defaults",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldError, err)
	}

	s.mu.Lock()
	s.engine = ledger.FromSnapshot(snap)
	s.mu.Unlock()

	if s.refresher != nil && snap.Rates != nil {
		s.refresher.Seed(snap.Rates)
	}
	slog.InfoContext(ctx, "Ledger loaded",
		applog.FieldComponent, applog.ComponentLedger,
		"expenses", len(snap.Expenses),
		"goal_set", snap.Goal.IsSet(),
		applog.FieldDisplayCurrency, snap.Preferences.DisplayCurrency)
	return nil
}

// commit persists the engine state or restores before. Callers hold s.mu.
func (s *BudgetService) commit(ctx context.Context, before core.Snapshot) (int64, error) {
	if err := s.store.Save(ctx, s.engine.Snapshot()); err != nil {
		s.engine.Restore(before)
		return 0, fmt.Errorf("persist snapshot: %w", err)
	}
	s.version++
	return s.version, nil
}

func (s *BudgetService) publish(ctx context.Context, t amqp.EventType, version int64, expenseID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(t, version, expenseID)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldComponent, applog.ComponentAMQP,
			"type", t,
			applog.FieldVersion, version,
			applog.FieldError, err)
	}
}

func (s *BudgetService) AddExpense(ctx context.Context, in ledger.ExpenseInput) (core.Expense, ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	exp, view, err := s.engine.AddExpense(in)
	if err != nil {
		s.mu.Unlock()
		return core.Expense{}, ledger.View{}, err
	}
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return core.Expense{}, ledger.View{}, err
	}

	slog.InfoContext(ctx, "Expense added",
		applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithExpense(exp.ID, exp.Amount.String(), exp.Currency, exp.Category).
			ToSlice()...)
	s.publish(ctx, amqp.EventExpenseAdded, version, exp.ID)
	return exp, view, nil
}

// DeleteExpense removes id. An unknown id changes nothing and is not an error.
func (s *BudgetService) DeleteExpense(ctx context.Context, id string) (bool, ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	removed, view := s.engine.DeleteExpense(id)
	if !removed {
		s.mu.Unlock()
		return false, view, nil
	}
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return false, ledger.View{}, err
	}

	slog.InfoContext(ctx, "Expense deleted",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldExpenseID, id)
	s.publish(ctx, amqp.EventExpenseDeleted, version, id)
	return true, view, nil
}

func (s *BudgetService) ClearAll(ctx context.Context) (ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	view := s.engine.ClearAll()
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return ledger.View{}, err
	}

	slog.InfoContext(ctx, "Ledger cleared",
		applog.FieldComponent, applog.ComponentLedger,
		"removed", len(before.Expenses))
	s.publish(ctx, amqp.EventLedgerCleared, version, "")
	return view, nil
}

func (s *BudgetService) SetGoal(ctx context.Context, amount decimal.Decimal, currency string) (core.Goal, ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	goal, view, err := s.engine.SetGoal(amount, currency)
	if err != nil {
		s.mu.Unlock()
		return core.Goal{}, ledger.View{}, err
	}
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return core.Goal{}, ledger.View{}, err
	}

	slog.InfoContext(ctx, "Goal set",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldAmount, goal.Amount.String(),
		applog.FieldCurrency, goal.Currency)
	s.publish(ctx, amqp.EventGoalSet, version, "")
	return goal, view, nil
}

func (s *BudgetService) ClearGoal(ctx context.Context) (ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	view := s.engine.ClearGoal()
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return ledger.View{}, err
	}
	s.publish(ctx, amqp.EventGoalCleared, version, "")
	return view, nil
}

func (s *BudgetService) SetPreferences(ctx context.Context, displayCurrency, theme string) (ledger.View, error) {
	s.mu.Lock()
	before := s.engine.Snapshot()
	view, err := s.engine.SetPreferences(displayCurrency, theme)
	if err != nil {
		s.mu.Unlock()
		return ledger.View{}, err
	}
	version, err := s.commit(ctx, before)
	s.mu.Unlock()
	if err != nil {
		return ledger.View{}, err
	}

	slog.InfoContext(ctx, "Preferences updated",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldDisplayCurrency, view.DisplayCurrency,
		"theme", view.Theme)
	s.publish(ctx, amqp.EventPreferencesUpdated, version, "")
	return view, nil
}

// RefreshRates asks the refresher for a table and installs it when it is newer than the
// engine's. A fetch failure is reported in the Result, not as an error; the returned
// error is only set when the new table could not be persisted.
func (s *BudgetService) RefreshRates(ctx context.Context, force bool) (rates.Result, ledger.View, error) {
	if s.refresher == nil {
		return rates.Result{Origin: rates.OriginNone, Err: ErrRatesDisabled}, s.View(), nil
	}
	res := s.refresher.Refresh(ctx, force)
	view, err := s.InstallRates(ctx, res.Table)
	return res, view, err
}

// InstallRates replaces the engine table with t when t is newer and persists it.
func (s *BudgetService) InstallRates(ctx context.Context, t *core.RateTable) (ledger.View, error) {
	s.mu.Lock()
	current := s.engine.Rates()
	if t == nil || (current != nil && current.Base == t.Base && !t.FetchedAt.After(current.FetchedAt)) {
		view := s.engine.View()
		s.mu.Unlock()
		return view, nil
	}
	before := s.engine.Snapshot()
	s.engine.ReplaceRates(t)
	version, err := s.commit(ctx, before)
	view := s.engine.View()
	s.mu.Unlock()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to persist refreshed rates",
			applog.FieldComponent, applog.ComponentRates,
			applog.FieldError, err)
		return view, err
	}
	s.publish(ctx, amqp.EventRatesRefreshed, version, "")
	return view, nil
}

// View returns the derived view in the preferred display currency.
func (s *BudgetService) View() ledger.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.View()
}

// Summary returns the view in display, or in the preferred currency when display is empty.
func (s *BudgetService) Summary(display string) (ledger.View, error) {
	if display == "" {
		return s.View(), nil
	}
	code, err := core.NormalizeCurrency(display)
	if err != nil {
		return ledger.View{}, &core.ValidationError{Field: "currency", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ViewIn(code), nil
}

func (s *BudgetService) Expenses(order ledger.Order) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Expenses(order)
}

func (s *BudgetService) Goal() core.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Goal()
}

func (s *BudgetService) Rates() *core.RateTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Rates()
}

func (s *BudgetService) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Version increases with every persisted change.
func (s *BudgetService) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Close closes the store and, when it supports it, the publisher.
func (s *BudgetService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close budget service: %w", errors.Join(errs...))
	}
	return nil
}
