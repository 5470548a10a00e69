// Package handlers provides REST API handlers for the cart sync daemon.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/models"
	syncpkg "github.com/craftbiz/cartsync/internal/sync"
	"github.com/craftbiz/cartsync/internal/sync/conflict"
	"github.com/craftbiz/cartsync/internal/sync/queue"
)

// CartHandler exposes the queue and sync orchestrator to the UI collaborator.
type CartHandler struct {
	store  *queue.Store
	engine *syncpkg.Engine
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(store *queue.Store, engine *syncpkg.Engine) *CartHandler {
	return &CartHandler{store: store, engine: engine}
}

// Register wires the handler's routes onto mux.
func (h *CartHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/cart/actions", h.Actions)
	mux.HandleFunc("/api/cart/stats", h.Stats)
	mux.HandleFunc("/api/sync/status", h.SyncStatus)
	mux.HandleFunc("/api/sync/now", h.SyncNow)
	mux.HandleFunc("/api/sync/conflicts", h.Conflicts)
	mux.HandleFunc("/api/sync/conflicts/resolve", h.ResolveConflict)
	mux.HandleFunc("/api/sync/conflicts/dismiss", h.DismissConflict)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an application error to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrValidation, apperrors.ErrInvalid:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound, apperrors.ErrConflictUnknown:
		status = http.StatusNotFound
	case apperrors.ErrSyncInProgress, apperrors.ErrSyncOffline:
		status = http.StatusConflict
	case apperrors.ErrSyncUnauthorized:
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]interface{}{
		"error_code": code,
		"error":      err.Error(),
	})
}

// enqueueRequest is the body of POST /api/cart/actions.
type enqueueRequest struct {
	Kind    models.ActionKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

// Actions handles /api/cart/actions:
// POST defers a cart mutation; GET lists the pending queue in replay order.
func (h *CartHandler) Actions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
			return
		}

		action, err := h.store.Enqueue(req.Kind, req.Payload)
		if err != nil {
			writeError(w, err)
			return
		}

		logging.Info("Action queued", map[string]interface{}{
			"action_id": action.ID,
			"kind":      action.Kind,
		})
		writeJSON(w, http.StatusCreated, action)

	case http.MethodGet:
		actions, err := h.store.ListPending()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"actions": actions,
			"count":   len(actions),
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Stats handles GET /api/cart/stats: pending counts by kind for UI badges.
func (h *CartHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SyncStatus handles GET /api/sync/status.
func (h *CartHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SyncNow handles POST /api/sync/now: the manual sync trigger. A pass
// already in flight or an offline device yields 409.
func (h *CartHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.engine.Sync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Conflicts handles GET /api/sync/conflicts: conflicts awaiting manual
// resolution, oldest first.
func (h *CartHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conflicts := h.engine.Conflicts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// conflictRequest is the body of the conflict resolve/dismiss endpoints.
type conflictRequest struct {
	ActionID models.UUID       `json:"action_id"`
	Strategy conflict.Strategy `json:"strategy,omitempty"`
}

// ResolveConflict handles POST /api/sync/conflicts/resolve: applies an
// explicit strategy to a surfaced conflict and removes its queue entry.
func (h *CartHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req conflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return
	}

	if err := h.engine.ResolveConflict(r.Context(), req.ActionID, req.Strategy); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resolved":  req.ActionID,
		"remaining": h.engine.PendingCount(),
	})
}

// DismissConflict handles POST /api/sync/conflicts/dismiss: discards the
// surfaced conflict but leaves the queue entry and retry count intact.
func (h *CartHandler) DismissConflict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req conflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return
	}

	if !h.engine.DismissConflict(req.ActionID) {
		writeError(w, apperrors.New(apperrors.ErrConflictUnknown, "no surfaced conflict for action "+string(req.ActionID)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"dismissed": req.ActionID})
}
