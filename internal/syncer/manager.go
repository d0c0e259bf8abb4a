// Package syncer drains the offline mutation queue against the remote
// backend. Runs are triggered by reconnect transitions, a fixed interval,
// and manual requests; a guard flag keeps runs from overlapping.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mwangivic/soma/internal/connectivity"
	apperrors "github.com/mwangivic/soma/internal/errors"
	"github.com/mwangivic/soma/internal/logging"
	"github.com/mwangivic/soma/internal/models"
	"github.com/mwangivic/soma/internal/notify"
	"github.com/mwangivic/soma/internal/store"
)

// Backend is the remote write surface the manager replays queued mutations
// against.
type Backend interface {
	InsertMessage(ctx context.Context, payload json.RawMessage) error
	UpsertLessonProgress(ctx context.Context, payload json.RawMessage) error
	InsertComment(ctx context.Context, payload json.RawMessage) error
}

// Connectivity is the subset of the connectivity observer the manager needs.
// A nil Connectivity means "always online" (one-shot CLI use).
type Connectivity interface {
	IsOnline() bool
	AddListener(fn connectivity.Listener) func()
}

// Config holds sync manager settings.
type Config struct {
	// Interval between opportunistic sync runs while online.
	Interval time.Duration
	// Retention is how long synced queue items are kept before pruning.
	// Zero disables pruning.
	Retention time.Duration
}

// DefaultConfig returns the production defaults: a 60 second sync interval
// and 7 days of synced-item retention.
func DefaultConfig() *Config {
	return &Config{
		Interval:  60 * time.Second,
		Retention: 7 * 24 * time.Hour,
	}
}

// ResultListener receives the result of every completed sync run.
type ResultListener func(*Result)

// Result summarizes one sync run.
type Result struct {
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Attempted int       `json:"attempted"`
	Synced    int       `json:"synced"`
	Failed    int       `json:"failed"`
	Discarded int       `json:"discarded"`
	Remaining int       `json:"remaining"`
}

// Manager owns the Idle -> Syncing -> Idle cycle.
type Manager struct {
	store     *store.Store
	backend   Backend
	conn      Connectivity
	notifier  notify.Notifier
	interval  time.Duration
	retention time.Duration

	mu              sync.Mutex
	isSyncing       bool
	isRunning       bool
	lastRun         *Result
	resultListeners []ResultListener

	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()

	now func() time.Time
}

// New creates a Manager. conn may be nil for one-shot use.
func New(st *store.Store, backend Backend, conn Connectivity, notifier notify.Notifier, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		store:     st,
		backend:   backend,
		conn:      conn,
		notifier:  notifier,
		interval:  config.Interval,
		retention: config.Retention,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// AddResultListener registers fn to receive the result of every completed
// run, whatever its trigger. Listeners run synchronously after the run
// finishes, in registration order.
func (m *Manager) AddResultListener(fn ResultListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultListeners = append(m.resultListeners, fn)
}

// Start subscribes to reconnect transitions and begins the interval loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()

	if m.conn != nil {
		m.unsubscribe = m.conn.AddListener(func(online bool) {
			if online {
				go m.syncOnTrigger(ctx, "reconnect")
			}
		})
	}

	m.wg.Add(1)
	go m.intervalLoop(ctx)

	logging.Info("sync manager started", map[string]interface{}{"interval": m.interval.String()})
}

// Stop halts the interval loop and unsubscribes from connectivity events.
// An in-flight run finishes on its own.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	close(m.stopCh)
	m.wg.Wait()

	logging.Info("sync manager stopped", nil)
}

func (m *Manager) intervalLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.syncOnTrigger(ctx, "interval")
		}
	}
}

// syncOnTrigger runs a sync if one is not already in flight. Overlap and
// offline states are expected here, not errors.
func (m *Manager) syncOnTrigger(ctx context.Context, trigger string) {
	_, err := m.SyncNow(ctx)
	if err == nil || apperrors.Is(err, apperrors.ErrSyncInProgress) {
		return
	}
	if apperrors.Is(err, apperrors.ErrSyncFailed) {
		logging.Debug("sync trigger skipped", map[string]interface{}{"trigger": trigger, "reason": err.Error()})
		return
	}
	logging.ErrorWithCode("sync run failed", string(apperrors.ErrSyncFailed), err,
		map[string]interface{}{"trigger": trigger})
}

// SyncNow performs one sync run: it snapshots the pending queue and replays
// each item sequentially in insertion order. Items enqueued during the run
// wait for the next one. Returns ErrSyncInProgress when a run is already in
// flight.
func (m *Manager) SyncNow(ctx context.Context) (*Result, error) {
	if m.conn != nil && !m.conn.IsOnline() {
		return nil, apperrors.New(apperrors.ErrSyncFailed, "offline")
	}

	m.mu.Lock()
	if m.isSyncing {
		m.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	m.isSyncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isSyncing = false
		m.mu.Unlock()
	}()

	result, err := m.drain(ctx)
	if result != nil {
		m.mu.Lock()
		m.lastRun = result
		listeners := make([]ResultListener, len(m.resultListeners))
		copy(listeners, m.resultListeners)
		m.mu.Unlock()

		for _, fn := range listeners {
			fn(result)
		}
	}
	return result, err
}

func (m *Manager) drain(ctx context.Context) (*Result, error) {
	started := m.now()

	items, err := m.store.Pending(ctx, started)
	if err != nil {
		return nil, err
	}

	result := &Result{Started: started, Attempted: len(items)}

	for _, item := range items {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		// One item at a time: replay order is the queue's insertion order.
		err := m.dispatch(ctx, item)
		switch {
		case err == nil:
			result.Synced++
			if err := m.store.MarkSynced(ctx, item.ID); err != nil {
				logging.Error("failed to acknowledge synced item", err,
					map[string]interface{}{"item_id": item.ID})
			}
		case apperrors.Is(err, apperrors.ErrUnknownOperation):
			result.Discarded++
			logging.Warn("discarding unknown queue operation",
				map[string]interface{}{"item_id": item.ID, "type": item.Type, "action": item.Action})
			if err := m.store.Discard(ctx, item.ID, err.Error()); err != nil {
				logging.Error("failed to discard queue item", err,
					map[string]interface{}{"item_id": item.ID})
			}
		default:
			result.Failed++
			logging.ErrorWithCode("queue item replay failed", string(apperrors.ErrSyncFailed), err,
				map[string]interface{}{"item_id": item.ID, "type": item.Type, "action": item.Action})
			if err := m.store.RecordFailure(ctx, item.ID, err, m.now()); err != nil {
				logging.Error("failed to record item failure", err,
					map[string]interface{}{"item_id": item.ID})
			}
		}
	}

	if remaining, err := m.store.Pending(ctx, m.now()); err == nil {
		result.Remaining = len(remaining)
	}

	if m.retention > 0 {
		cutoff := m.now().Add(-m.retention)
		if pruned, err := m.store.PruneSynced(ctx, cutoff); err != nil {
			logging.Error("failed to prune synced items", err)
		} else if pruned > 0 {
			logging.Info("pruned synced queue items", map[string]interface{}{"count": pruned})
		}
	}

	result.Finished = m.now()

	switch {
	case result.Synced > 0:
		m.notifier.Success(fmt.Sprintf("%d offline change(s) synced", result.Synced))
	case result.Failed > 0 && result.Synced == 0:
		m.notifier.Error("Sync failed. Your changes will be retried automatically.")
	}

	return result, nil
}

// dispatch routes one queue item to the remote write matching its
// (type, action) pair.
func (m *Manager) dispatch(ctx context.Context, item *models.SyncQueueItem) error {
	switch {
	case item.Type == models.ItemTypeMessage && item.Action == models.ActionCreate:
		return m.backend.InsertMessage(ctx, item.Payload)
	case item.Type == models.ItemTypeCourseProgress && item.Action == models.ActionUpdate:
		return m.backend.UpsertLessonProgress(ctx, item.Payload)
	case item.Type == models.ItemTypeComment && item.Action == models.ActionCreate:
		return m.backend.InsertComment(ctx, item.Payload)
	}
	return apperrors.New(apperrors.ErrUnknownOperation,
		fmt.Sprintf("no remote write for %s/%s", item.Type, item.Action))
}

// Status is a point-in-time snapshot of the manager for status displays.
type Status struct {
	Syncing bool             `json:"syncing"`
	Online  bool             `json:"online"`
	LastRun *Result          `json:"last_run,omitempty"`
	Queue   store.QueueStats `json:"queue"`
}

// Status reports the manager and queue state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	m.mu.Lock()
	status := Status{
		Syncing: m.isSyncing,
		LastRun: m.lastRun,
	}
	m.mu.Unlock()

	if m.conn != nil {
		status.Online = m.conn.IsOnline()
	} else {
		status.Online = true
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.Queue = stats
	return status, nil
}
