package models

import "time"

// CartItem is the authoritative remote cart record, scoped to the
// authenticated user. One record exists per user+item key.
type CartItem struct {
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	Favorite  bool   `json:"favorite"`
	Note      string `json:"note,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (c *CartItem) UpdatedAtTime() time.Time {
	return time.Unix(c.UpdatedAt, 0)
}
