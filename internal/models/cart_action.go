// Package models provides data model definitions for the CraftBiz cart sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// ActionKind identifies the type of deferred cart mutation.
// The set is closed per deployment.
type ActionKind string

const (
	ActionAddToCart      ActionKind = "add_to_cart"
	ActionUpdateCart     ActionKind = "update_cart"
	ActionRemoveFromCart ActionKind = "remove_from_cart"
	ActionToggleFavorite ActionKind = "toggle_favorite"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAddToCart, ActionUpdateCart, ActionRemoveFromCart, ActionToggleFavorite:
		return true
	}
	return false
}

// Addressed reports whether the action targets a specific existing remote
// record (as opposed to an add-style action keyed by a uniqueness constraint).
func (k ActionKind) Addressed() bool {
	switch k {
	case ActionUpdateCart, ActionRemoveFromCart, ActionToggleFavorite:
		return true
	}
	return false
}

// CartAction is a unit of deferred work recorded while the remote store was
// unreachable. Seq is the insertion tiebreaker for actions sharing a
// CreatedAt timestamp.
type CartAction struct {
	Seq        int64           `db:"seq" json:"-"`
	ID         UUID            `db:"id" json:"id"`
	Kind       ActionKind      `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for CartAction.
func (CartAction) TableName() string {
	return "cart_actions"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (a *CartAction) CreatedAtTime() time.Time {
	return time.Unix(0, a.CreatedAt)
}

// CartPayload is the decoded parameter set of a CartAction. BaseQuantity
// carries the remote quantity the client observed when the action was queued;
// it is the monitored field for conflict detection on addressed kinds.
type CartPayload struct {
	ItemID       string `json:"item_id"`
	Quantity     int    `json:"quantity,omitempty"`
	Favorite     bool   `json:"favorite,omitempty"`
	Note         string `json:"note,omitempty"`
	BaseQuantity *int   `json:"base_quantity,omitempty"`
}

// DecodePayload unmarshals the action payload into its typed form.
func (a *CartAction) DecodePayload() (*CartPayload, error) {
	var p CartPayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload for action %s: %w", a.ID, err)
	}
	if p.ItemID == "" {
		return nil, fmt.Errorf("payload for action %s has no item_id", a.ID)
	}
	return &p, nil
}
