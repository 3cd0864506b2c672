// Package sync runs catalog synchronizations: authenticate, page through
// the supplier, normalize, filter and upsert, with at most one run in
// flight per process.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"
	"catalogsync/internal/normalizer"
	"catalogsync/internal/services/supplier"
	"catalogsync/internal/store"

	"golang.org/x/sync/singleflight"
)

const flightKey = "catalog-sync"

// Supplier is the remote catalog source.
type Supplier interface {
	Authenticate(ctx context.Context) (string, error)
	FetchPage(ctx context.Context, token string, offset, limit int) (*supplier.Page, error)
}

type Normalizer interface {
	Normalize(body []byte, contentType string) (*normalizer.Result, error)
}

// Dispatcher submits the post-sync export task. Implementations must not
// block on the export itself.
type Dispatcher interface {
	DispatchExport(ctx context.Context, runID string) error
}

// Invalidator drops derived views that depend on the catalog contents.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Config struct {
	PageSize   int
	MaxRecords int
	// PageDelay is waited after every full page.
	PageDelay time.Duration
	// DispatchTimeout bounds the export submission, not the export.
	DispatchTimeout time.Duration
	// StaleRunAfter is how long a running row may go without a heartbeat
	// before a new run closes it as interrupted.
	StaleRunAfter time.Duration
}

// Options are per-invocation settings.
type Options struct {
	// Categories overrides the persisted allow-list when non-empty.
	Categories []string
}

// Result is shared by every caller attached to the same run.
type Result struct {
	RunID      string               `json:"run_id"`
	Status     models.SyncRunStatus `json:"status"`
	Fetched    int                  `json:"fetched"`
	Added      int                  `json:"added"`
	Updated    int                  `json:"updated"`
	Failed     int                  `json:"failed"`
	Filtered   int                  `json:"filtered"`
	StopReason string               `json:"stop_reason,omitempty"`
	Error      string               `json:"error,omitempty"`
	Duration   time.Duration        `json:"duration"`
}

type Orchestrator struct {
	cfg        Config
	supplier   Supplier
	normalizer Normalizer
	store      *store.Store
	logger     *logger.Logger

	invalidators []Invalidator
	dispatcher   Dispatcher

	// mu orders flag changes against joining the flight, so a caller that
	// sees running also joins the in-flight run.
	mu      gosync.Mutex
	group   singleflight.Group
	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sup Supplier, norm Normalizer, st *store.Store, logger *logger.Logger) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 50000
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.StaleRunAfter <= 0 {
		cfg.StaleRunAfter = 30 * time.Minute
	}
	return &Orchestrator{
		cfg:        cfg,
		supplier:   sup,
		normalizer: norm,
		store:      st,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// WithDispatcher sets the export dispatcher used after completed runs.
func (o *Orchestrator) WithDispatcher(d Dispatcher) *Orchestrator {
	o.dispatcher = d
	return o
}

// WithInvalidator registers a view to drop after completed runs.
func (o *Orchestrator) WithInvalidator(i Invalidator) *Orchestrator {
	o.invalidators = append(o.invalidators, i)
	return o
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Sync starts a run, or attaches to the one in flight, and waits for its
// result. Options of an attaching caller are ignored. Cancelling ctx stops
// the wait, never the run.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (*Result, error) {
	ch, _ := o.start(ctx, opts)
	select {
	case r := <-ch:
		res, _ := r.Val.(*Result)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start triggers a run in the background. It reports whether the call
// attached to a run already in flight.
func (o *Orchestrator) Start(opts Options) bool {
	_, attached := o.start(context.Background(), opts)
	return attached
}

func (o *Orchestrator) start(ctx context.Context, opts Options) (<-chan singleflight.Result, bool) {
	runCtx := context.WithoutCancel(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	attached := o.running.Load()
	o.running.Store(true)
	ch := o.group.DoChan(flightKey, func() (any, error) {
		defer func() {
			o.mu.Lock()
			o.running.Store(false)
			o.group.Forget(flightKey)
			o.mu.Unlock()
		}()
		return o.run(runCtx, opts)
	})
	return ch, attached
}

type runState struct {
	res      *Result
	progress store.RunProgress
}

func (o *Orchestrator) run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()

	run, err := o.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := o.store.FailStaleRuns(ctx, run.ID, o.cfg.StaleRunAfter); err != nil {
		o.logger.Warn("%v", err)
	} else if n > 0 {
		o.logger.Warn("Closed %d sync runs interrupted by a previous process", n)
	}

	st := &runState{res: &Result{RunID: run.ID, Status: models.SyncRunStatusRunning}}
	o.logger.Info("Sync run %s started", run.ID)

	stop, runErr := o.execute(ctx, run.ID, opts, st)
	st.res.Duration = time.Since(started)
	metrics.SyncDuration.Observe(st.res.Duration.Seconds())

	if runErr != nil {
		return o.fail(ctx, run.ID, st, runErr)
	}

	st.res.StopReason = stop
	if n, err := o.store.EnsureShowInAI(ctx); err != nil {
		o.logger.Error("%v", err)
	} else if n > 0 {
		o.logger.Info("Restored AI visibility on %d products", n)
	}

	if err := o.store.FinishRun(ctx, run.ID, models.SyncRunStatusCompleted, st.progress, stop, nil); err != nil {
		return o.fail(ctx, run.ID, st, err)
	}
	st.res.Status = models.SyncRunStatusCompleted
	metrics.SyncRuns.WithLabelValues(string(models.SyncRunStatusCompleted)).Inc()
	o.logger.Info("Sync run %s completed (%s): fetched=%d added=%d updated=%d failed=%d",
		run.ID, stop, st.res.Fetched, st.res.Added, st.res.Updated, st.res.Failed)

	for _, inv := range o.invalidators {
		inv.Invalidate(ctx)
	}
	o.dispatchExport(run.ID)
	return st.res, nil
}

func (o *Orchestrator) fail(ctx context.Context, runID string, st *runState, runErr error) (*Result, error) {
	st.res.Status = models.SyncRunStatusFailed
	st.res.Error = runErr.Error()
	if err := o.store.FinishRun(ctx, runID, models.SyncRunStatusFailed, st.progress, "", runErr); err != nil {
		o.logger.Error("Failed to record failure of sync run %s: %v", runID, err)
	}
	metrics.SyncRuns.WithLabelValues(string(models.SyncRunStatusFailed)).Inc()
	o.logger.Error("Sync run %s failed: %v", runID, runErr)
	return st.res, runErr
}

// execute is the fetch loop. It returns the stop reason of a successful
// run or the error that failed it. Pages committed before a failure stay.
func (o *Orchestrator) execute(ctx context.Context, runID string, opts Options, st *runState) (string, error) {
	token, err := o.supplier.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	allow, bootstrap, err := o.allowList(ctx, opts)
	if err != nil {
		return "", err
	}

	offset := 0
	for {
		if st.res.Fetched >= o.cfg.MaxRecords {
			o.logger.Warn("Sync run %s reached the %d record cap", runID, o.cfg.MaxRecords)
			return StopMaxRecords, nil
		}
		limit := o.cfg.PageSize
		if remaining := o.cfg.MaxRecords - st.res.Fetched; remaining < limit {
			limit = remaining
		}

		products, stop, err := o.fetchPage(ctx, token, offset, limit)
		if err != nil {
			return "", err
		}
		if stop != "" {
			return stop, nil
		}

		received := len(products)
		st.res.Fetched += received
		metrics.SyncRecords.WithLabelValues("fetched").Add(float64(received))

		batch := filter(products, allow)
		st.res.Filtered += received - len(batch)

		result, err := o.store.UpsertBatch(ctx, batch)
		if err != nil {
			return "", fmt.Errorf("failed to store page at offset %d: %w", offset, err)
		}
		st.res.Added += result.Added
		st.res.Updated += result.Updated
		st.res.Failed += len(result.Failed)
		metrics.SyncRecords.WithLabelValues("added").Add(float64(result.Added))
		metrics.SyncRecords.WithLabelValues("updated").Add(float64(result.Updated))
		metrics.SyncRecords.WithLabelValues("failed").Add(float64(len(result.Failed)))

		if err := o.store.ObserveCategories(ctx, products, bootstrap); err != nil {
			o.logger.Warn("%v", err)
		}

		st.progress = store.RunProgress{Fetched: st.res.Fetched, Added: st.res.Added, Updated: st.res.Updated}
		if err := o.store.UpdateRunProgress(ctx, runID, st.progress); err != nil {
			o.logger.Warn("%v", err)
		}
		o.logger.Debug("Sync run %s: offset=%d received=%d kept=%d", runID, offset, received, len(batch))

		offset += received
		if received >= limit && o.cfg.PageDelay > 0 {
			if err := o.sleep(ctx, o.cfg.PageDelay); err != nil {
				return "", err
			}
		}
	}
}

// fetchPage returns the page's products, or a stop reason when the
// supplier signalled the end of the run.
func (o *Orchestrator) fetchPage(ctx context.Context, token string, offset, limit int) ([]models.Product, string, error) {
	page, err := o.supplier.FetchPage(ctx, token, offset, limit)
	if err != nil {
		var se *supplier.StatusError
		if errors.As(err, &se) {
			if sig := statusSignal(se.Status, se.Body); sig != nil {
				o.logger.Info("Supplier stop signal at offset %d: %v", offset, sig)
				return nil, stopReason(sig), nil
			}
		}
		return nil, "", fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
	}

	res, err := o.normalizer.Normalize(page.Body, page.ContentType)
	if err != nil {
		if sig := stopSignal(string(page.Body)); sig != nil {
			o.logger.Info("Supplier stop signal at offset %d: %v", offset, sig)
			return nil, stopReason(sig), nil
		}
		return nil, "", fmt.Errorf("failed to decode page at offset %d: %w", offset, err)
	}
	if res.Degraded > 0 {
		o.logger.Warn("%d records at offset %d degraded to defaults", res.Degraded, offset)
	}

	if len(res.Products) == 0 {
		if res.EmbeddedError != "" {
			if sig := stopSignal(res.EmbeddedError); sig != nil {
				o.logger.Info("Supplier stop signal at offset %d: %v", offset, sig)
				return nil, stopReason(sig), nil
			}
			return nil, "", fmt.Errorf("supplier error at offset %d: %s", offset, res.EmbeddedError)
		}
		return nil, StopEmptyPage, nil
	}
	if res.EmbeddedError != "" {
		o.logger.Warn("Supplier reported %q alongside %d products at offset %d", res.EmbeddedError, len(res.Products), offset)
	}
	return res.Products, "", nil
}

// allowList resolves the category filter: explicit options, then enabled
// config rows, then accept-all. bootstrap is true only in the last case.
func (o *Orchestrator) allowList(ctx context.Context, opts Options) (map[string]bool, bool, error) {
	if len(opts.Categories) > 0 {
		return toSet(opts.Categories), false, nil
	}
	cats, err := o.store.EnabledCategories(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(cats) == 0 {
		return nil, true, nil
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return toSet(names), false, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = true
		}
	}
	return set
}

// filter keeps products whose leaf or main category is allowed. A nil set
// accepts everything.
func filter(products []models.Product, allow map[string]bool) []models.Product {
	if allow == nil {
		return products
	}
	kept := make([]models.Product, 0, len(products))
	for _, p := range products {
		if allow[p.Category] || allow[p.MainCategory()] {
			kept = append(kept, p)
		}
	}
	return kept
}

// dispatchExport submits the export task detached from the run. Its
// outcome never reaches the finalized run.
func (o *Orchestrator) dispatchExport(runID string) {
	if o.dispatcher == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.Exports.WithLabelValues("dispatch_panic").Inc()
				o.logger.Error("Export dispatch for run %s panicked: %v", runID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DispatchTimeout)
		defer cancel()
		if err := o.dispatcher.DispatchExport(ctx, runID); err != nil {
			metrics.Exports.WithLabelValues("dispatch_failed").Inc()
			o.logger.Error("Failed to dispatch export for run %s: %v", runID, err)
			return
		}
		o.logger.Info("Export task dispatched for run %s", runID)
	}()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
