// Package conflict provides conflict detection and resolution for replaying
// deferred cart actions against the authoritative remote store.
package conflict

import (
	"context"
	"time"

	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/models"
	"github.com/craftbiz/cartsync/internal/remote"
)

// Detector classifies whether replaying a queued action against current
// remote state is safe. Detection is read-only: it never mutates remote or
// local state.
type Detector struct {
	remote remote.CartStore
}

// NewDetector creates a Detector backed by the given remote store.
func NewDetector(store remote.CartStore) *Detector {
	return &Detector{remote: store}
}

// Detect inspects the remote record the action targets and returns a
// ConflictInfo with the divergence class. A network or auth failure during
// detection is returned as an error, not a conflict; the orchestrator
// treats it as a transient replay failure.
func (d *Detector) Detect(ctx context.Context, action *models.CartAction) (*models.ConflictInfo, error) {
	local, err := action.DecodePayload()
	if err != nil {
		return nil, err
	}

	info := &models.ConflictInfo{
		ActionID:   action.ID,
		Kind:       action.Kind,
		LocalData:  local,
		Class:      models.ConflictNone,
		DetectedAt: time.Now().Unix(),
	}

	if action.Kind.Addressed() {
		return d.detectAddressed(ctx, info, local)
	}
	return d.detectAdd(ctx, info, local)
}

// detectAddressed handles update/remove/toggle actions that target a
// specific remote record.
func (d *Detector) detectAddressed(ctx context.Context, info *models.ConflictInfo, local *models.CartPayload) (*models.ConflictInfo, error) {
	item, err := d.remote.GetItem(ctx, local.ItemID)
	if err != nil {
		if remote.IsNotFound(err) {
			info.Class = models.ConflictDeleted
			d.logDetected(info)
			return info, nil
		}
		return nil, err
	}

	info.ServerData = item

	// The monitored field is quantity: BaseQuantity carries what the client
	// observed when the action was queued.
	if local.BaseQuantity != nil && item.Quantity != *local.BaseQuantity {
		info.Class = models.ConflictModified
		d.logDetected(info)
	}

	return info, nil
}

// detectAdd handles add-style actions keyed by the user+item uniqueness
// constraint: an existing record conflicts with an addition.
func (d *Detector) detectAdd(ctx context.Context, info *models.ConflictInfo, local *models.CartPayload) (*models.ConflictInfo, error) {
	item, err := d.remote.GetItem(ctx, local.ItemID)
	if err != nil {
		if remote.IsNotFound(err) {
			return info, nil
		}
		return nil, err
	}

	info.ServerData = item
	info.Class = models.ConflictModified
	d.logDetected(info)
	return info, nil
}

func (d *Detector) logDetected(info *models.ConflictInfo) {
	logging.Warn("Replay conflict detected", map[string]interface{}{
		"action_id": info.ActionID,
		"kind":      info.Kind,
		"class":     info.Class,
		"item_id":   info.LocalData.ItemID,
	})
}
