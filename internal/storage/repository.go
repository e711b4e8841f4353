package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budget/internal/core"
	applog "budget/internal/log"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	keyGoalAmount      = "goal_amount"
	keyGoalCurrency    = "goal_currency"
	keyDisplayCurrency = "display_currency"
	keyTheme           = "theme"
	keyRatesBase       = "rates_base"
	keyRatesAsOf       = "rates_as_of"
	keyRatesFetchedAt  = "rates_fetched_at"
)

// SQLiteRepository stores the snapshot as rows. Save rewrites every table in one transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (core.Snapshot, error) {
	var w wireSnapshot

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, amount, currency, category, date, time FROM expenses ORDER BY position`)
	if err != nil {
		return core.EmptySnapshot(), fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e      wireExpense
			amount string
		)
		if err := rows.Scan(&e.ID, &e.Title, &amount, &e.Currency, &e.Category, &e.Date, &e.Time); err != nil {
			return core.EmptySnapshot(), fmt.Errorf("scan expense: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			slog.WarnContext(ctx, "Skipping stored expense with invalid amount",
				applog.FieldComponent, applog.ComponentStorage,
				applog.FieldExpenseID, e.ID,
				applog.FieldAmount, amount)
			continue
		}
		e.Amount = d
		w.Expenses = append(w.Expenses, e)
	}
	if err := rows.Err(); err != nil {
		return core.EmptySnapshot(), fmt.Errorf("iterate expenses: %w", err)
	}

	settings, err := r.settings(ctx)
	if err != nil {
		return core.EmptySnapshot(), err
	}
	if amount, err := decimal.NewFromString(settings[keyGoalAmount]); err == nil {
		w.Goal = &wireGoal{Amount: amount, Currency: settings[keyGoalCurrency]}
	}
	w.DisplayCurrency = settings[keyDisplayCurrency]
	w.Theme = settings[keyTheme]

	if base := settings[keyRatesBase]; base != "" {
		rates, err := r.rates(ctx)
		if err != nil {
			return core.EmptySnapshot(), err
		}
		w.Rates = &wireRates{Base: base, Date: settings[keyRatesAsOf], Rates: rates}
		if at, err := time.Parse(time.RFC3339Nano, settings[keyRatesFetchedAt]); err == nil {
			w.RatesFetchedAt = &at
		}
	}
	return fromWire(w), nil
}

func (r *SQLiteRepository) settings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, rate FROM rates`)
	if err != nil {
		return nil, fmt.Errorf("query rates: %w", err)
	}
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code, rate string
		if err := rows.Scan(&code, &rate); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		if d, err := decimal.NewFromString(rate); err == nil {
			out[code] = d
		}
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Save(ctx context.Context, s core.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", applog.FieldComponent, applog.ComponentStorage, applog.FieldError, rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	for i, e := range s.Expenses {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (position, id, title, amount, currency, category, date, time) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, e.ID, e.Title, e.Amount.String(), e.Currency, e.Category, e.Date.String(), e.Time); err != nil {
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
	}

	settings := map[string]string{
		keyDisplayCurrency: s.Preferences.DisplayCurrency,
		keyTheme:           string(s.Preferences.Theme),
		keyGoalAmount:      "",
		keyGoalCurrency:    "",
		keyRatesBase:       "",
		keyRatesAsOf:       "",
		keyRatesFetchedAt:  "",
	}
	if s.Goal.IsSet() {
		settings[keyGoalAmount] = s.Goal.Amount.String()
		settings[keyGoalCurrency] = s.Goal.Currency
	}
	if s.Rates != nil {
		settings[keyRatesBase] = s.Rates.Base
		settings[keyRatesAsOf] = s.Rates.AsOf
		if !s.Rates.FetchedAt.IsZero() {
			settings[keyRatesFetchedAt] = s.Rates.FetchedAt.UTC().Format(time.RFC3339Nano)
		}
	}
	for k, v := range settings {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v); err != nil {
			return fmt.Errorf("save setting %s: %w", k, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM rates`); err != nil {
		return fmt.Errorf("clear rates: %w", err)
	}
	if s.Rates != nil {
		for code, rate := range s.Rates.Rates {
			if _, err = tx.ExecContext(ctx, `INSERT INTO rates (code, rate) VALUES (?, ?)`, code, rate.String()); err != nil {
				return fmt.Errorf("insert rate %s: %w", code, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	slog.DebugContext(ctx, "Snapshot saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		"expenses", len(s.Expenses))
	return nil
}

var _ SnapshotStore = (*SQLiteRepository)(nil)
