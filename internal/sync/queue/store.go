// Package queue provides the durable store of deferred cart actions.
// Actions queued while offline survive process restarts and are replayed
// in creation order once connectivity returns.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/craftbiz/cartsync/internal/db"
	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/models"
	"github.com/craftbiz/cartsync/internal/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_actions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cart_actions_order ON cart_actions(created_at, seq);
`

// Store persists CartAction records across process lifetimes. Exactly one
// record exists per action id; the store is the single source of truth for
// what still needs to sync. All operations are atomic at single-record
// granularity; no transaction spans a whole sync pass.
type Store struct {
	mu      sync.Mutex
	dataDir string
	db      *db.DB
}

// NewStore creates a Store rooted at dataDir. The database is not opened
// until Open is called.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Open opens the underlying database and ensures the schema exists.
// It is idempotent: repeated calls return the same live handle.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	handle, err := db.Open(s.dataDir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to open queue store", err)
	}

	if _, err := handle.Exec(schema); err != nil {
		handle.Close()
		return apperrors.Wrap(apperrors.ErrStorage, "failed to initialize queue schema", err)
	}

	s.db = handle
	return nil
}

// Close closes the underlying database. A closed store can be reopened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the live database handle or a storage error when the
// store has not been opened.
func (s *Store) handle() (*db.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, apperrors.New(apperrors.ErrStorage, "queue store is not open")
	}
	return s.db, nil
}

// Enqueue records a deferred cart action and returns it. The action gets a
// fresh id, a creation timestamp and a zero retry count. Enqueue never
// depends on network availability; the store is local-only.
func (s *Store) Enqueue(kind models.ActionKind, payload json.RawMessage) (*models.CartAction, error) {
	if !kind.Valid() {
		return nil, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown action kind: %s", kind))
	}
	if !json.Valid(payload) {
		return nil, apperrors.New(apperrors.ErrValidation, "payload is not valid JSON")
	}

	handle, err := s.handle()
	if err != nil {
		return nil, err
	}

	action := &models.CartAction{
		ID:         models.UUID(uuid.New()),
		Kind:       kind,
		Payload:    payload,
		RetryCount: 0,
		CreatedAt:  time.Now().UnixNano(),
	}

	res, err := handle.Exec(
		`INSERT INTO cart_actions (id, kind, payload, retry_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		action.ID, string(action.Kind), string(action.Payload), action.RetryCount, action.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to enqueue action", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		action.Seq = seq
	}

	logging.Debug("Enqueued cart action", map[string]interface{}{
		"action_id": action.ID,
		"kind":      action.Kind,
	})

	return action, nil
}

// ListPending returns all queued actions ordered by creation time ascending,
// ties broken by insertion order. The result is a snapshot, not a live view.
func (s *Store) ListPending() ([]*models.CartAction, error) {
	handle, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := handle.Query(
		`SELECT seq, id, kind, payload, retry_count, created_at
		 FROM cart_actions ORDER BY created_at ASC, seq ASC`,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending actions", err)
	}
	defer rows.Close()

	var actions []*models.CartAction
	for rows.Next() {
		var a models.CartAction
		var kind, payload string
		if err := rows.Scan(&a.Seq, &a.ID, &kind, &payload, &a.RetryCount, &a.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan action row", err)
		}
		a.Kind = models.ActionKind(kind)
		a.Payload = json.RawMessage(payload)
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate action rows", err)
	}

	return actions, nil
}

// Get returns the queued action for id, or nil when no such action exists.
func (s *Store) Get(id models.UUID) (*models.CartAction, error) {
	handle, err := s.handle()
	if err != nil {
		return nil, err
	}

	var a models.CartAction
	var kind, payload string
	err = handle.QueryRow(
		`SELECT seq, id, kind, payload, retry_count, created_at FROM cart_actions WHERE id = ?`, id,
	).Scan(&a.Seq, &a.ID, &kind, &payload, &a.RetryCount, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get action", err)
	}
	a.Kind = models.ActionKind(kind)
	a.Payload = json.RawMessage(payload)
	return &a, nil
}

// Remove deletes the action for id. Removing an absent id is a no-op, which
// keeps cleanup idempotent after races with a completed replay.
func (s *Store) Remove(id models.UUID) error {
	handle, err := s.handle()
	if err != nil {
		return err
	}

	if _, err := handle.Exec(`DELETE FROM cart_actions WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove action", err)
	}
	return nil
}

// IncrementRetry bumps the retry count of the action for id. Absent ids are
// a no-op.
func (s *Store) IncrementRetry(id models.UUID) error {
	handle, err := s.handle()
	if err != nil {
		return err
	}

	if _, err := handle.Exec(
		`UPDATE cart_actions SET retry_count = retry_count + 1 WHERE id = ?`, id,
	); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to increment retry count", err)
	}
	return nil
}

// Count returns the number of currently pending actions.
func (s *Store) Count() (int, error) {
	handle, err := s.handle()
	if err != nil {
		return 0, err
	}

	var n int
	if err := handle.QueryRow(`SELECT COUNT(*) FROM cart_actions`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count actions", err)
	}
	return n, nil
}

// Stats returns pending action counts broken down by kind, for UI badges.
func (s *Store) Stats() (map[string]int, error) {
	handle, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := handle.Query(`SELECT kind, COUNT(*) FROM cart_actions GROUP BY kind`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query queue stats", err)
	}
	defer rows.Close()

	stats := map[string]int{
		"total": 0,
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan stats row", err)
		}
		stats[kind] = n
		stats["total"] += n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate stats rows", err)
	}

	return stats, nil
}

// Clear removes all queued actions.
func (s *Store) Clear() error {
	handle, err := s.handle()
	if err != nil {
		return err
	}

	if _, err := handle.Exec(`DELETE FROM cart_actions`); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear queue", err)
	}

	logging.Info("Queue cleared")
	return nil
}
