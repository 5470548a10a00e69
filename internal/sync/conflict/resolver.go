package conflict

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/models"
	"github.com/craftbiz/cartsync/internal/remote"
)

// Strategy defines how a detected conflict is converged.
type Strategy string

const (
	// StrategySkip abandons the queued action; server state wins silently.
	StrategySkip Strategy = "skip"
	// StrategyServer is identical to skip for the queue: remote state is
	// already authoritative, nothing to write.
	StrategyServer Strategy = "server"
	// StrategyLocal applies the local payload regardless of divergence.
	StrategyLocal Strategy = "local"
	// StrategyMerge combines additive numeric fields (quantities); falls
	// back to local behavior for non-mergeable kinds.
	StrategyMerge Strategy = "merge"
)

// Valid reports whether s is a known resolution strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySkip, StrategyServer, StrategyLocal, StrategyMerge:
		return true
	}
	return false
}

// AutoResolve picks a resolution strategy for a conflict when no human is
// present to choose. Deletions on the server are authoritative unless the
// local intent was itself a creation; modifications prefer the most recent
// local intent except additive cases, which merge rather than clobber.
func AutoResolve(c *models.ConflictInfo) Strategy {
	switch c.Class {
	case models.ConflictDeleted:
		if c.Kind == models.ActionAddToCart {
			// Nothing to lose by recreating.
			return StrategyLocal
		}
		return StrategySkip
	case models.ConflictModified:
		if c.Kind == models.ActionAddToCart {
			return StrategyMerge
		}
		// Last writer wins.
		return StrategyLocal
	default:
		return StrategyLocal
	}
}

// Resolver converges local and remote state to one outcome and applies it
// remotely.
type Resolver struct {
	remote remote.CartStore
}

// NewResolver creates a Resolver backed by the given remote store.
func NewResolver(store remote.CartStore) *Resolver {
	return &Resolver{remote: store}
}

// Resolve applies the chosen strategy for the conflict. A nil error means
// the queued action is handled and may be removed from the queue.
func (r *Resolver) Resolve(ctx context.Context, c *models.ConflictInfo, strategy Strategy) error {
	if c.LocalData == nil {
		return apperrors.New(apperrors.ErrInvalid, "conflict has no local data")
	}

	logging.Info("Resolving conflict", map[string]interface{}{
		"action_id": c.ActionID,
		"kind":      c.Kind,
		"class":     c.Class,
		"strategy":  strategy,
	})

	switch strategy {
	case StrategySkip, StrategyServer:
		// Deliberately abandoned; no remote mutation.
		return nil
	case StrategyLocal:
		return r.applyLocal(ctx, c)
	case StrategyMerge:
		return r.applyMerge(ctx, c)
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown strategy: %s", strategy))
	}
}

// applyLocal applies the local payload's mutation with overwrite semantics.
func (r *Resolver) applyLocal(ctx context.Context, c *models.ConflictInfo) error {
	local := c.LocalData

	if c.Kind == models.ActionRemoveFromCart {
		return r.remote.DeleteItem(ctx, local.ItemID)
	}

	item := &models.CartItem{
		UserID:    r.remote.UserID(),
		ItemID:    local.ItemID,
		Quantity:  local.Quantity,
		Favorite:  local.Favorite,
		Note:      local.Note,
		UpdatedAt: time.Now().Unix(),
	}
	return r.remote.UpsertItem(ctx, item)
}

// applyMerge sums the local and remote quantities. Only add-style actions
// are mergeable; anything else falls back to local behavior. Existence is
// re-validated immediately before the merge write so a record deleted by
// another session is not resurrected with a stale remote quantity.
func (r *Resolver) applyMerge(ctx context.Context, c *models.ConflictInfo) error {
	if c.Kind != models.ActionAddToCart {
		return r.applyLocal(ctx, c)
	}

	local := c.LocalData

	current, err := r.remote.GetItem(ctx, local.ItemID)
	if err != nil {
		if remote.IsNotFound(err) {
			// Record vanished since detection; the addition applies as-is.
			logging.Debug("Merge target gone, applying local payload", map[string]interface{}{
				"action_id": c.ActionID,
				"item_id":   local.ItemID,
			})
			return r.applyLocal(ctx, c)
		}
		return err
	}

	merged := &models.CartItem{
		UserID:    r.remote.UserID(),
		ItemID:    local.ItemID,
		Quantity:  current.Quantity + local.Quantity,
		Favorite:  current.Favorite || local.Favorite,
		Note:      current.Note,
		UpdatedAt: time.Now().Unix(),
	}
	if merged.Note == "" {
		merged.Note = local.Note
	}

	if err := r.remote.UpsertItem(ctx, merged); err != nil {
		return err
	}

	logging.Info("Merged quantities", map[string]interface{}{
		"action_id": c.ActionID,
		"item_id":   local.ItemID,
		"local":     local.Quantity,
		"remote":    current.Quantity,
		"merged":    merged.Quantity,
	})
	return nil
}
