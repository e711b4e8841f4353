// Package worker keeps external exports in step with the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/storage"
)

type SnapshotLoader interface {
	Load(ctx context.Context) (core.Snapshot, error)
}

type SnapshotExporter interface {
	Export(ctx context.Context, s core.Snapshot) error
}

// ExportWorker reloads the shared snapshot on every ledger event and pushes it out.
// Events whose version is not newer than the last export are skipped.
type ExportWorker struct {
	store    SnapshotLoader
	exporter SnapshotExporter

	mu          sync.Mutex
	lastVersion int64
}

func NewExportWorker(store SnapshotLoader, exporter SnapshotExporter) *ExportWorker {
	return &ExportWorker{store: store, exporter: exporter}
}

// HandleEvent is the amqp consumer callback.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.Version <= w.lastVersion {
		slog.DebugContext(ctx, "Skipping already exported version",
			applog.FieldComponent, applog.ComponentWorker,
			"type", ev.Type,
			applog.FieldVersion, ev.Version,
			"last_version", w.lastVersion)
		return nil
	}
	if err := w.export(ctx); err != nil {
		return fmt.Errorf("export version %d: %w", ev.Version, err)
	}
	w.lastVersion = ev.Version

	slog.InfoContext(ctx, "Ledger exported",
		applog.FieldComponent, applog.ComponentWorker,
		"type", ev.Type,
		applog.FieldVersion, ev.Version)
	return nil
}

// ExportNow exports the current snapshot regardless of version.
func (w *ExportWorker) ExportNow(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.export(ctx)
}

func (w *ExportWorker) export(ctx context.Context) error {
	snap, err := w.store.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrCorruptSnapshot) {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err != nil {
		slog.WarnContext(ctx, "Exporting defaults for corrupt snapshot",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldError, err)
	}
	return w.exporter.Export(ctx, snap)
}

func (w *ExportWorker) LastVersion() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastVersion
}

// RunPeriodic re-exports every interval until ctx is done, covering lost events.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ExportNow(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed",
					applog.FieldComponent, applog.ComponentWorker,
					applog.FieldError, err)
			}
		}
	}
}
