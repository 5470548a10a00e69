// Package sync drives the replay of deferred cart actions against the
// authoritative remote store.
package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/models"
	"github.com/craftbiz/cartsync/internal/remote"
	"github.com/craftbiz/cartsync/internal/retry"
	"github.com/craftbiz/cartsync/internal/sync/conflict"
	"github.com/craftbiz/cartsync/internal/sync/queue"
)

// Result aggregates the outcome of one sync pass. Conflicts counts both
// auto-resolved conflicts and those surfaced for manual resolution.
type Result struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Status is the live state exposed to the UI collaborator.
type Status struct {
	IsOnline     bool                   `json:"is_online"`
	IsSyncing    bool                   `json:"is_syncing"`
	PendingCount int                    `json:"pending_count"`
	Conflicts    []*models.ConflictInfo `json:"conflicts"`
	LastSync     *time.Time             `json:"last_sync,omitempty"`
}

// EventHandler receives notifications during sync operations, typically
// bridged to the UI over WebSocket.
type EventHandler interface {
	SyncStarted(pending int)
	SyncCompleted(result *Result)
	SyncFailed(code string, err error)
	ConflictDetected(info *models.ConflictInfo)
	QueueUpdated(pending int)
}

// Engine orchestrates sync passes: it drains the queue in creation order,
// classifies conflicts, applies or resolves each action, and tracks retry
// counts. At most one pass runs at a time.
type Engine struct {
	store    *queue.Store
	remote   remote.CartStore
	detector *conflict.Detector
	resolver *conflict.Resolver
	policy   retry.Policy

	mu        sync.Mutex
	syncing   bool
	online    bool
	conflicts map[models.UUID]*models.ConflictInfo
	lastSync  *time.Time
	events    EventHandler
}

// NewEngine creates an Engine. The engine starts offline; the connectivity
// monitor or the UI collaborator flips it online.
func NewEngine(store *queue.Store, remoteStore remote.CartStore, policy retry.Policy) *Engine {
	return &Engine{
		store:     store,
		remote:    remoteStore,
		detector:  conflict.NewDetector(remoteStore),
		resolver:  conflict.NewResolver(remoteStore),
		policy:    policy,
		conflicts: make(map[models.UUID]*models.ConflictInfo),
	}
}

// SetEventHandler sets the event handler for sync notifications.
func (e *Engine) SetEventHandler(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = h
}

// handler returns the current event handler, possibly nil.
func (e *Engine) handler() EventHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}

// IsSyncing reports whether a pass is currently running.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// IsOnline reports the last known connectivity state.
func (e *Engine) IsOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetOnline records the connectivity state and reports whether this call
// was an offline-to-online transition (the automatic sync trigger).
func (e *Engine) SetOnline(online bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	became := online && !e.online
	if e.online != online {
		logging.Info("Connectivity changed", map[string]interface{}{"online": online})
	}
	e.online = online
	return became
}

// PendingCount returns the number of queued actions, 0 on storage faults.
func (e *Engine) PendingCount() int {
	n, err := e.store.Count()
	if err != nil {
		logging.Error("Failed to count pending actions", err)
		return 0
	}
	return n
}

// Conflicts returns the surfaced conflicts awaiting manual resolution,
// oldest first.
func (e *Engine) Conflicts() []*models.ConflictInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.ConflictInfo, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt != out[j].DetectedAt {
			return out[i].DetectedAt < out[j].DetectedAt
		}
		return out[i].ActionID < out[j].ActionID
	})
	return out
}

// Status returns a snapshot of the live sync state.
func (e *Engine) Status() Status {
	conflicts := e.Conflicts()
	pending := e.PendingCount()

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		IsOnline:     e.online,
		IsSyncing:    e.syncing,
		PendingCount: pending,
		Conflicts:    conflicts,
		LastSync:     e.lastSync,
	}
}

// begin claims the single-flight guard. It fails when a pass is already
// running or the engine is offline.
func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.syncing {
		return apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	if !e.online {
		return apperrors.New(apperrors.ErrSyncOffline, "device is offline")
	}
	e.syncing = true
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

// Sync runs one full replay pass. The pass drains the queue snapshot taken
// at start; no single action's failure aborts it. A second trigger while a
// pass is active is refused with SYNC_IN_PROGRESS.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	// Fail-safe: without an authenticated identity nothing is mutated or
	// dequeued; the queue is preserved for a later pass.
	if e.remote.UserID() == "" {
		err := apperrors.New(apperrors.ErrSyncUnauthorized, "no authenticated identity")
		logging.Warn("Sync pass abandoned: not authenticated")
		if h := e.handler(); h != nil {
			h.SyncFailed(string(apperrors.ErrSyncUnauthorized), err)
		}
		return nil, err
	}

	pending, err := e.store.ListPending()
	if err != nil {
		if h := e.handler(); h != nil {
			h.SyncFailed(string(apperrors.CodeOf(err)), err)
		}
		return nil, err
	}

	result := &Result{StartTime: time.Now()}
	if h := e.handler(); h != nil {
		h.SyncStarted(len(pending))
	}

	for _, action := range pending {
		e.replayOne(ctx, action, result)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	now := result.EndTime
	e.mu.Lock()
	e.lastSync = &now
	e.mu.Unlock()

	logging.Info("Sync pass completed", map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
	})

	if h := e.handler(); h != nil {
		h.SyncCompleted(result)
		h.QueueUpdated(e.PendingCount())
	}

	return result, nil
}

// replayOne replays a single queued action and folds the outcome into the
// pass result. Failures become retry-count increments; they never abort
// the pass.
func (e *Engine) replayOne(ctx context.Context, action *models.CartAction, result *Result) {
	// Retry ceiling: drop without attempting detection or resolution.
	if e.policy.Exhausted(action.RetryCount) {
		logging.ErrorWithCode("Dropping action: retry ceiling reached",
			string(apperrors.ErrSyncExhausted), nil,
			map[string]interface{}{
				"action_id":   action.ID,
				"kind":        action.Kind,
				"retry_count": action.RetryCount,
			})
		if err := e.store.Remove(action.ID); err != nil {
			logging.Error("Failed to drop exhausted action", err, map[string]interface{}{"action_id": action.ID})
		}
		result.Failed++
		return
	}

	info, err := e.detector.Detect(ctx, action)
	if err != nil {
		// Transient detection failure: retry on a later pass.
		logging.Warn("Detection failed, will retry", map[string]interface{}{
			"action_id": action.ID,
			"error":     err.Error(),
		})
		e.bumpRetry(action.ID)
		result.Failed++
		return
	}

	if info.Class != models.ConflictNone {
		strategy := conflict.AutoResolve(info)
		if err := e.resolver.Resolve(ctx, info, strategy); err != nil {
			// Surface for manual resolution; the action stays queued.
			logging.Warn("Auto-resolution failed, surfacing conflict", map[string]interface{}{
				"action_id": action.ID,
				"strategy":  strategy,
				"error":     err.Error(),
			})
			e.mu.Lock()
			e.conflicts[action.ID] = info
			e.mu.Unlock()
			if h := e.handler(); h != nil {
				h.ConflictDetected(info)
			}
			e.bumpRetry(action.ID)
			result.Conflicts++
			return
		}
		if err := e.store.Remove(action.ID); err != nil {
			logging.Error("Failed to remove resolved action", err, map[string]interface{}{"action_id": action.ID})
		}
		result.Conflicts++
		return
	}

	if err := e.apply(ctx, action, info.LocalData); err != nil {
		e.bumpRetry(action.ID)
		result.Failed++
		return
	}
	if err := e.store.Remove(action.ID); err != nil {
		logging.Error("Failed to remove synced action", err, map[string]interface{}{"action_id": action.ID})
	}
	result.Synced++
}

// apply performs the action's mutation directly against the remote store.
func (e *Engine) apply(ctx context.Context, action *models.CartAction, local *models.CartPayload) error {
	switch action.Kind {
	case models.ActionRemoveFromCart:
		return e.remote.DeleteItem(ctx, local.ItemID)
	case models.ActionAddToCart, models.ActionUpdateCart, models.ActionToggleFavorite:
		item := &models.CartItem{
			UserID:    e.remote.UserID(),
			ItemID:    local.ItemID,
			Quantity:  local.Quantity,
			Favorite:  local.Favorite,
			Note:      local.Note,
			UpdatedAt: time.Now().Unix(),
		}
		return e.remote.UpsertItem(ctx, item)
	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown action kind: "+string(action.Kind))
	}
}

func (e *Engine) bumpRetry(id models.UUID) {
	if err := e.store.IncrementRetry(id); err != nil {
		logging.Error("Failed to increment retry count", err, map[string]interface{}{"action_id": id})
	}
}

// ResolveConflict resolves a previously surfaced conflict with an explicit
// strategy. On success the queue entry is removed and the conflict
// discarded; on failure both are kept.
func (e *Engine) ResolveConflict(ctx context.Context, actionID models.UUID, strategy conflict.Strategy) error {
	if !strategy.Valid() {
		return apperrors.New(apperrors.ErrInvalid, "unknown strategy: "+string(strategy))
	}

	e.mu.Lock()
	info, ok := e.conflicts[actionID]
	e.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrConflictUnknown, "no surfaced conflict for action "+string(actionID))
	}

	if err := e.resolver.Resolve(ctx, info, strategy); err != nil {
		return err
	}

	if err := e.store.Remove(actionID); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conflicts, actionID)
	e.mu.Unlock()

	if h := e.handler(); h != nil {
		h.QueueUpdated(e.PendingCount())
	}
	return nil
}

// DismissConflict discards a surfaced conflict without touching the queue
// entry or its retry count. Returns false when no such conflict exists.
func (e *Engine) DismissConflict(actionID models.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.conflicts[actionID]; !ok {
		return false
	}
	delete(e.conflicts, actionID)
	return true
}
