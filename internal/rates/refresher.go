package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	applog "budget/internal/log"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 12 * time.Hour

// Origin says where a refresh result came from.
type Origin string

const (
	OriginCache  Origin = "cache"
	OriginRemote Origin = "remote"
	OriginStale  Origin = "stale"
	OriginNone   Origin = "none"
)

// Result is the outcome of a refresh. Table is nil only when Origin is OriginNone.
// Err is set whenever a fetch was attempted and failed.
type Result struct {
	Table  *core.RateTable
	Origin Origin
	Err    error
}

// Refresher serves the cached table inside its TTL and refetches after it.
type Refresher struct {
	source Source
	base   string
	ttl    time.Duration
	now    func() time.Time
	tables *cache.LRUCache[core.RateTable]
	group  singleflight.Group

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

type Option func(*Refresher)

// WithClock sets the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Refresher) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRefresher(source Source, base string, opts ...Option) *Refresher {
	r := &Refresher{
		source: source,
		base:   base,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tables = cache.NewLRUCache[core.RateTable](4, r.ttl).WithClock(r.now)
	return r
}

func (r *Refresher) Base() string {
	return r.base
}

// Seed installs a previously persisted table. A table older than the cached one is ignored.
//
// A table without FetchedAt has an unknown age. It is kept as the stale fallback
// but already expired, so the next Refresh fetches.
func (r *Refresher) Seed(t *core.RateTable) {
	if t == nil || t.Base != r.base {
		return
	}
	if t.FetchedAt.IsZero() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, _, ok := r.tables.Peek(r.base); !ok {
			r.tables.SetWithExpiry(r.base, *t, time.Time{})
		}
		return
	}
	r.store(*t)
}

// Current returns the last good table regardless of age.
func (r *Refresher) Current() *core.RateTable {
	t, _, ok := r.tables.Peek(r.base)
	if !ok {
		return nil
	}
	return &t
}

type stored struct {
	table    core.RateTable
	replaced bool
}

// Refresh returns the cached table when it is inside the TTL and force is false.
// Otherwise it fetches a new one; concurrent callers share a single fetch.
//
// The shared fetch is detached from the caller's cancellation and bounded by the
// source's own timeout. A caller whose ctx ends first gets the fallback with ctx.Err().
func (r *Refresher) Refresh(ctx context.Context, force bool) Result {
	if !force {
		if t, ok := r.tables.Get(r.base); ok {
			return Result{Table: &t, Origin: OriginCache}
		}
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(r.base, func() (any, error) {
		t, err := r.source.Fetch(fetchCtx, r.base)
		if err != nil {
			return nil, err
		}
		kept, replaced := r.store(t)
		return stored{table: kept, replaced: replaced}, nil
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		slog.WarnContext(ctx, "Rate refresh failed, keeping last good table",
			applog.FieldComponent, applog.ComponentRates,
			applog.FieldRatesBase, r.base,
			applog.FieldError, err)
		if prev := r.Current(); prev != nil {
			return Result{Table: prev, Origin: OriginStale, Err: err}
		}
		return Result{Origin: OriginNone, Err: err}
	}

	got := v.(stored)
	t := got.table
	if !got.replaced {
		// a newer table was already cached; the fetched one was discarded
		return Result{Table: &t, Origin: OriginCache}
	}
	slog.InfoContext(ctx, "Rates refreshed",
		applog.FieldComponent, applog.ComponentRates,
		applog.FieldRatesBase, t.Base,
		"as_of", t.AsOf,
		"currencies", len(t.Rates))
	return Result{Table: &t, Origin: OriginRemote}
}

// store caches t unless a newer table is already present. It returns the table
// kept and whether t replaced the cached one.
func (r *Refresher) store(t core.RateTable) (core.RateTable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, _, ok := r.tables.Peek(r.base); ok && prev.FetchedAt.After(t.FetchedAt) {
		return prev, false
	}
	fetched := t.FetchedAt
	if fetched.IsZero() {
		fetched = r.now()
		t.FetchedAt = fetched
	}
	r.tables.SetWithExpiry(r.base, t, fetched.Add(r.ttl))
	return t, true
}

// Start launches a ticker that calls Refresh(false) every interval and hands
// remote results to onRefresh. Stop ends it.
func (r *Refresher) Start(interval time.Duration, onRefresh func(context.Context, Result)) {
	r.mu.Lock()
	if r.stop != nil || interval <= 0 {
		r.mu.Unlock()
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx := context.Background()
				res := r.Refresh(ctx, false)
				if res.Origin == OriginRemote && onRefresh != nil {
					onRefresh(ctx, res)
				}
			case <-stop:
				return
			}
		}
	}()
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
