package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"budget/internal/amqp"
	"budget/internal/config"
	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/storage"
)

func quietFactory() *DefaultFactory {
	return NewFactory(applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}))
}

func TestCreateBackendTypes(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name  string
		cfg   Config
		ready bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"file", Config{Type: FileBackend, SnapshotFile: filepath.Join(dir, "snap", "budget.json")}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "budget.db")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := quietFactory().CreateBackend(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			if res.Publisher != nil || res.EventPublisher() != nil {
				t.Fatalf("publisher should be disabled without AMQP_URL")
			}
			if (res.Ready != nil) != tc.ready {
				t.Fatalf("unexpected readiness probe presence")
			}
			if res.Ready != nil {
				if err := res.Ready(ctx); err != nil {
					t.Fatalf("Ready: %v", err)
				}
			}

			snap := core.EmptySnapshot()
			snap.Preferences.DisplayCurrency = "EUR"
			if err := res.Store.Save(ctx, snap); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := res.Store.Load(ctx)
			if err != nil || got.Preferences.DisplayCurrency != "EUR" {
				t.Fatalf("Load = %+v, %v", got.Preferences, err)
			}
			if err := res.Cleanup(); err != nil {
				t.Fatalf("Cleanup: %v", err)
			}
		})
	}
}

func TestCreateBackendValidation(t *testing.T) {
	cases := []Config{
		{Type: "postgres"},
		{Type: FileBackend},
		{Type: SQLiteBackend},
		{Type: MemoryBackend, AMQPURL: "amqp://localhost"},
	}
	for _, cfg := range cases {
		if _, err := quietFactory().CreateBackend(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestUnreachableBrokerDisablesNotifications(t *testing.T) {
	f := quietFactory()
	dialed := false
	f.dial = func(url, exchange, queue string) (*amqp.Client, error) {
		dialed = true
		return nil, errors.New("connection refused")
	}
	res, err := f.CreateBackend(context.Background(), Config{
		Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "budget", AMQPQueue: "ledger_events",
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if !dialed || res.Publisher != nil {
		t.Fatalf("expected a dial attempt and no publisher")
	}
	if _, ok := res.Store.(*storage.MemoryStore); !ok {
		t.Fatalf("unexpected store %T", res.Store)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPQueue: "q"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.AMQPQueue != "q" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
