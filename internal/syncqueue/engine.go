// Package syncqueue implements the durable offline submission queue: the
// persisted queue, its attempt ledger and processing registry, and the
// engine that drains it against the remote API.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/inspection-sync/internal/connectivity"
	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/kv"
	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
)

const (
	defaultInterval    = 30 * time.Second
	defaultCooldown    = 10 * time.Second
	defaultMaxAttempts = 3
	defaultLockTTL     = 5 * time.Minute
)

// EngineConfig holds sync engine configuration.
type EngineConfig struct {
	Interval    time.Duration // time between passes while running
	Cooldown    time.Duration // minimum time between attempts on one item
	MaxAttempts int           // failed attempts before an item is dropped
	LockTTL     time.Duration // expiry of attempts and processing claims
	KeyPrefix   string
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Interval:    defaultInterval,
		Cooldown:    defaultCooldown,
		MaxAttempts: defaultMaxAttempts,
		LockTTL:     defaultLockTTL,
		KeyPrefix:   DefaultKeyPrefix,
	}
}

// Connectivity is the connectivity signal the engine consults.
type Connectivity interface {
	Status(ctx context.Context) connectivity.State
	OnChange(fn func(connectivity.State)) func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConnectivity sets the signal used by Enqueue and SyncNow. Without it
// the engine assumes it is online.
func WithConnectivity(c Connectivity) Option {
	return func(e *Engine) { e.conn = c }
}

// PassResult summarizes one ProcessQueue call.
type PassResult struct {
	Skipped   bool // another pass was executing
	Processed int
	Succeeded int
	Failed    int
	Dropped   int
	Deferred  int
	Err       error // pass-level failure, already reported to listeners
}

// Engine drains the queue. Items are guarded by three independent locks:
// the in-memory in-flight set, the attempt ledger and the processing
// registry.
type Engine struct {
	config    EngineConfig
	queue     *Queue
	attempts  *AttemptLedger
	registry  *ProcessingRegistry
	transport Transport
	notifier  *Notifier
	conn      Connectivity
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processing atomic.Bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewEngine creates an engine over store. It does not start it.
func NewEngine(store kv.Store, transport Transport, config EngineConfig, opts ...Option) *Engine {
	defaults := DefaultEngineConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Cooldown < 0 {
		config.Cooldown = defaults.Cooldown
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}

	e := &Engine{
		config:    config,
		transport: transport,
		notifier:  NewNotifier(),
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	keys := KeysFor(config.KeyPrefix)
	e.queue = NewQueue(store, keys, e.now)
	e.attempts = NewAttemptLedger(store, keys.Attempts, config.LockTTL, e.now)
	e.registry = NewProcessingRegistry(store, keys.Processing, config.LockTTL, e.now)
	return e
}

// Notifier returns the engine's status and event notifier.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// Queue returns the underlying durable queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Start begins periodic processing: one pass right away, then one every
// Interval. It is a no-op when already running. Passes run detached from
// ctx cancellation; use Stop or Close to end them.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	base := context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancel(base)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	recordRunning(true)
	slog.Info("sync engine started", "interval", e.config.Interval)

	e.notifier.publish(StatusSyncing)
	e.notifier.emit(Event{Type: EventSyncStart})

	go e.loop(loopCtx, base)
}

func (e *Engine) loop(loopCtx, passCtx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	e.ProcessQueue(passCtx)

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			if loopCtx.Err() != nil {
				return
			}
			e.ProcessQueue(passCtx)
		}
	}
}

// Stop cancels the timer and clears this instance's in-flight set. On the
// running to idle transition it also clears the processing registry and
// notifies idle. It does not wait for a pass in
// progress, so it is safe to call from within one. Calling it twice is safe.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	e.clearInflight()

	// The registry is shared with other processes on the same store; only an
	// engine that was running may have claims of its own in it.
	if !wasRunning {
		return
	}

	if err := e.registry.Reset(context.Background()); err != nil {
		slog.Warn("failed to reset processing registry", "error", err)
	}

	recordRunning(false)
	slog.Info("sync engine stopped")
	e.notifier.publish(StatusIdle)
}

// Close stops the engine and waits for the timer goroutine to exit,
// including any pass it is executing.
func (e *Engine) Close() {
	e.Stop()
	e.wg.Wait()
}

// IsSyncing reports whether the periodic timer is active.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ForceSync runs a pass now when running, otherwise starts the engine.
func (e *Engine) ForceSync(ctx context.Context) {
	if e.IsSyncing() {
		e.ProcessQueue(ctx)
		return
	}
	e.Start(ctx)
}

// ProcessQueue runs one pass over the queue. Overlapping calls return
// immediately with Skipped set. Per-item failures never abort the pass;
// pass-level failures are reported through the notifier and returned in
// PassResult.Err.
func (e *Engine) ProcessQueue(ctx context.Context) PassResult {
	if !e.processing.CompareAndSwap(false, true) {
		slog.Debug("pass already in progress, skipping")
		recordPass("skipped")
		return PassResult{Skipped: true}
	}
	defer e.processing.Store(false)

	if _, err := e.attempts.CleanupExpired(ctx); err != nil {
		return e.passFailed(err)
	}

	items, err := e.queue.List(ctx)
	if err != nil {
		return e.passFailed(err)
	}
	queueSize.Set(float64(len(items)))

	var result PassResult
	if len(items) == 0 {
		e.Stop()
		e.notifier.emit(Event{Type: EventQueueEmpty})
		recordPass("empty")
		return result
	}

	slog.Debug("processing queue", "items", len(items))

	for _, item := range items {
		switch e.processItem(ctx, item) {
		case outcomeSucceeded:
			result.Processed++
			result.Succeeded++
		case outcomeFailed:
			result.Processed++
			result.Failed++
		case outcomeCapped:
			result.Processed++
			result.Failed++
			result.Dropped++
		case outcomeDropped:
			result.Processed++
			result.Dropped++
		case outcomeDeferred:
			result.Deferred++
		}
	}

	if result.Processed > 0 {
		noErrors := result.Failed == 0 && result.Dropped == 0
		e.notifier.emit(Event{
			Type:      EventSyncComplete,
			NoErrors:  noErrors,
			Processed: result.Processed,
		})
		slog.Info("sync pass completed",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"dropped", result.Dropped,
			"deferred", result.Deferred,
		)
	}

	recordPass("completed")
	return result
}

func (e *Engine) passFailed(err error) PassResult {
	slog.Error("sync pass failed", "error", err)
	recordPass("failed")

	e.notifier.publish(StatusError)
	e.notifier.emit(Event{
		Type:    EventSyncError,
		ItemID:  "queue",
		Err:     err,
		Kind:    Classify(err),
		Message: "Erro ao processar fila de sincronização: " + err.Error(),
	})
	return PassResult{Err: err}
}

type itemOutcome int

const (
	outcomeDeferred itemOutcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeCapped  // failed and reached the retry cap
	outcomeDropped // already at the retry cap when the pass began
)

func (e *Engine) processItem(ctx context.Context, item QueueItem) itemOutcome {
	ctx, log := ctxlog.With(ctx, "item_id", item.ID)

	if e.isInflight(item.ID) {
		return e.deferItem(item, DeferInFlight)
	}

	if item.Attempts >= e.config.MaxAttempts {
		return e.dropCapped(ctx, item)
	}

	if e.now().UnixMilli()-item.LastAttempt < e.config.Cooldown.Milliseconds() {
		return e.deferItem(item, DeferCooldown)
	}

	attemptID, ok, err := e.attempts.Create(ctx, item.ID)
	if err != nil {
		log.Warn("failed to create attempt", "error", err)
		return e.deferItem(item, DeferLockError)
	}
	if !ok {
		return e.deferItem(item, DeferAttemptActive)
	}
	ctx, log = ctxlog.With(ctx, "attempt_id", attemptID)

	claimed, err := e.registry.TryClaim(ctx, item.ID)
	if err != nil || !claimed {
		if rmErr := e.attempts.Remove(ctx, attemptID); rmErr != nil {
			log.Warn("failed to remove attempt", "error", rmErr)
		}
		if err != nil {
			log.Warn("failed to claim item", "error", err)
			return e.deferItem(item, DeferLockError)
		}
		return e.deferItem(item, DeferClaimed)
	}

	e.addInflight(item.ID)
	if err := e.attempts.UpdateStatus(ctx, attemptID, AttemptProcessing); err != nil {
		log.Warn("failed to mark attempt processing", "error", err)
	}

	completed := false
	defer func() {
		e.removeInflight(item.ID)
		if err := e.registry.Release(ctx, item.ID); err != nil {
			log.Warn("failed to release claim", "error", err)
		}
		if !completed {
			if err := e.attempts.Remove(ctx, attemptID); err != nil {
				log.Warn("failed to remove attempt", "error", err)
			}
		}
	}()

	log.Debug("submitting item", "attempts", item.Attempts)
	record, err := e.submit(ctx, item.Data)
	if err == nil {
		// An item still in the queue is not synced. The record carries the
		// server id by now, so the retry updates instead of duplicating.
		if rmErr := e.queue.Remove(ctx, item.ID); rmErr != nil {
			log.Error("failed to remove synced item from queue", "error", rmErr)
			err = fmt.Errorf("remove synced item: %w", rmErr)
		}
	}
	if err == nil {
		if err := e.attempts.UpdateStatus(ctx, attemptID, AttemptCompleted); err != nil {
			log.Warn("failed to mark attempt completed", "error", err)
		} else {
			completed = true
		}

		log.Info("item synced")
		recordItemOutcome("succeeded")
		e.notifier.emit(Event{
			Type:       EventSyncSuccess,
			ItemID:     item.ID,
			Inspection: record,
			Message:    fmt.Sprintf("Vistoria %s sincronizada com sucesso!", record.DisplayName()),
		})
		return outcomeSucceeded
	}

	return e.recordFailure(ctx, log, item, attemptID, record, err)
}

// recordFailure persists the failed attempt on item, or drops the item when
// it has reached the retry cap.
func (e *Engine) recordFailure(ctx context.Context, log *slog.Logger, item QueueItem, attemptID string, record *domain.Inspection, cause error) itemOutcome {
	if err := e.attempts.UpdateStatus(ctx, attemptID, AttemptFailed); err != nil {
		log.Warn("failed to mark attempt failed", "error", err)
	}

	item.Attempts++
	item.LastAttempt = e.now().UnixMilli()
	if record != nil {
		item.Data = record
	}

	canRetry := item.Attempts < e.config.MaxAttempts
	reported := cause

	if canRetry {
		if err := e.queue.Replace(ctx, item); err != nil {
			log.Error("failed to persist failed attempt", "error", err)
		}
		recordItemOutcome("failed")
	} else {
		reported = fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, cause)
		if err := e.queue.Remove(ctx, item.ID); err != nil {
			log.Error("failed to remove item at retry cap", "error", err)
		}
		recordItemOutcome("dropped")
	}
	kind := Classify(reported)

	log.Warn("item sync failed",
		"attempts", item.Attempts,
		"can_retry", canRetry,
		"kind", kind,
		"error", cause,
	)

	e.notifier.emit(Event{
		Type:     EventSyncError,
		ItemID:   item.ID,
		Err:      reported,
		Kind:     kind,
		Attempts: item.Attempts,
		CanRetry: canRetry,
		Message:  "Erro ao sincronizar: " + cause.Error(),
	})

	if !canRetry {
		return outcomeCapped
	}
	return outcomeFailed
}

// dropCapped removes an item that was persisted with attempts at the cap.
func (e *Engine) dropCapped(ctx context.Context, item QueueItem) itemOutcome {
	if err := e.queue.Remove(ctx, item.ID); err != nil {
		slog.Error("failed to remove item at retry cap", "item_id", item.ID, "error", err)
		return outcomeFailed
	}

	slog.Warn("item exceeded max attempts, removed from queue", "item_id", item.ID, "attempts", item.Attempts)
	recordItemOutcome("dropped")

	e.notifier.emit(Event{
		Type:     EventSyncError,
		ItemID:   item.ID,
		Err:      ErrMaxAttemptsExceeded,
		Kind:     KindCapacity,
		Attempts: item.Attempts,
		CanRetry: false,
		Message:  "Erro ao sincronizar: Máximo de tentativas excedido",
	})
	return outcomeDropped
}

func (e *Engine) deferItem(item QueueItem, reason DeferReason) itemOutcome {
	slog.Debug("item deferred", "item_id", item.ID, "reason", reason)
	recordDeferred(reason)
	e.notifier.emit(Event{
		Type:     EventItemDeferred,
		ItemID:   item.ID,
		Kind:     KindConcurrency,
		Attempts: item.Attempts,
		CanRetry: true,
		Reason:   reason,
	})
	return outcomeDeferred
}

// Enqueue persists insp and starts the engine when online.
func (e *Engine) Enqueue(ctx context.Context, insp *domain.Inspection) (string, error) {
	item, err := e.queue.Append(ctx, insp)
	if err != nil {
		return "", err
	}

	if e.online(ctx) {
		e.Start(ctx)
	}
	return item.ID, nil
}

func (e *Engine) online(ctx context.Context) bool {
	if e.conn == nil {
		return true
	}
	return e.conn.Status(ctx).Online()
}

// WatchConnectivity starts the engine when signal reports online and stops
// it when the network link is lost. The returned func ends the watch.
func (e *Engine) WatchConnectivity(ctx context.Context, signal Connectivity) func() {
	return signal.OnChange(func(s connectivity.State) {
		switch {
		case s.Online() && !e.IsSyncing():
			slog.Info("network available, starting sync")
			e.Start(ctx)
		case !s.Connected && e.IsSyncing():
			slog.Info("network lost, stopping sync")
			e.Stop()
		}
	})
}

// ResetOrphans removes the processing registry and the attempt ledger.
// Call it at startup, before any engine on the store is running: claims
// left from a previous process can never be released by it.
func (e *Engine) ResetOrphans(ctx context.Context) error {
	return errors.Join(e.registry.Reset(ctx), e.attempts.Reset(ctx))
}

// Clear empties the queue, the ledger and the registry, and forgets
// in-flight ids.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.queue.Clear(ctx); err != nil {
		return err
	}
	e.clearInflight()
	queueSize.Set(0)
	slog.Info("sync queue cleared")
	return nil
}

// QueueStatus counts queued items.
type QueueStatus struct {
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

func (e *Engine) QueueStatus(ctx context.Context) (QueueStatus, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	return QueueStatus{Pending: len(items), Total: len(items)}, nil
}

// PendingItem is the display summary of a queued item.
type PendingItem struct {
	ID            string     `json:"id"`
	Name          string     `json:"nome"`
	Fleet         string     `json:"frota"`
	Attempts      int        `json:"attempts"`
	CanRetry      bool       `json:"canRetry"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
}

func (e *Engine) PendingItems(ctx context.Context) ([]PendingItem, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PendingItem, 0, len(items))
	for _, it := range items {
		p := PendingItem{
			ID:        it.ID,
			Name:      "Sem nome",
			Fleet:     "Sem frota",
			Attempts:  it.Attempts,
			CanRetry:  it.Attempts < e.config.MaxAttempts,
			CreatedAt: time.UnixMilli(it.CreatedAt).UTC(),
		}
		if it.Data != nil {
			p.Name = it.Data.DisplayName()
			p.Fleet = it.Data.DisplayFleet()
		}
		if it.LastAttempt > 0 {
			t := time.UnixMilli(it.LastAttempt).UTC()
			p.LastAttemptAt = &t
		}
		out = append(out, p)
	}
	return out, nil
}

func (e *Engine) HasPendingItems(ctx context.Context) (bool, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// IsItemProcessing reports whether this instance is uploading id right now.
func (e *Engine) IsItemProcessing(id string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	_, ok := e.inflight[id]
	return ok
}

// IsItemClaimed reports whether any instance holds a valid claim on id.
func (e *Engine) IsItemClaimed(ctx context.Context, id string) (bool, error) {
	return e.registry.IsClaimed(ctx, id)
}

// ProcessingIDs returns the ids this instance is uploading, sorted.
func (e *Engine) ProcessingIDs() []string {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	ids := make([]string, 0, len(e.inflight))
	for id := range e.inflight {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) isInflight(id string) bool {
	return e.IsItemProcessing(id)
}

func (e *Engine) addInflight(id string) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	e.inflight[id] = struct{}{}
}

func (e *Engine) removeInflight(id string) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	delete(e.inflight, id)
}

func (e *Engine) clearInflight() {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	clear(e.inflight)
}
