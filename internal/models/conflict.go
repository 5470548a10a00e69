package models

import "time"

// ConflictClass classifies the divergence between the state a queued action
// assumed and the remote store's actual state at replay time.
type ConflictClass string

const (
	// ConflictNone means the action can be replayed as-is.
	ConflictNone ConflictClass = "none"
	// ConflictModified means the remote record changed since the action was queued.
	ConflictModified ConflictClass = "modified"
	// ConflictDeleted means the remote record no longer exists.
	ConflictDeleted ConflictClass = "deleted"
)

// ConflictInfo is the result of conflict detection for one queued action.
// It is created fresh on every detection pass and discarded once resolved
// or dismissed; ActionID is a lookup key, not an ownership relation.
type ConflictInfo struct {
	ActionID   UUID          `json:"action_id"`
	Kind       ActionKind    `json:"kind"`
	LocalData  *CartPayload  `json:"local_data"`
	ServerData *CartItem     `json:"server_data,omitempty"`
	Class      ConflictClass `json:"class"`
	DetectedAt int64         `json:"detected_at"`
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictInfo) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
