// Package remote provides the client for the authoritative cart store.
package remote

import (
	"context"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/models"
)

// CartStore defines the operations the sync core needs from the remote
// cart backend. All record operations are scoped to the authenticated
// user's identity; identity itself is configured, not managed here.
type CartStore interface {
	// GetItem fetches the cart record for itemID. Returns an error with
	// code REMOTE_NOT_FOUND when no record exists.
	GetItem(ctx context.Context, itemID string) (*models.CartItem, error)

	// UpsertItem creates or overwrites the cart record for item.ItemID.
	UpsertItem(ctx context.Context, item *models.CartItem) error

	// DeleteItem removes the cart record for itemID. Deleting an absent
	// record is not an error.
	DeleteItem(ctx context.Context, itemID string) error

	// ItemExists reports whether a cart record exists for itemID.
	ItemExists(ctx context.Context, itemID string) (bool, error)

	// Ping checks reachability of the remote backend.
	Ping(ctx context.Context) error

	// UserID returns the authenticated user identity, or "" when no
	// identity is available.
	UserID() string
}

// IsNotFound reports whether err means the remote record does not exist,
// as opposed to a transient remote fault.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrRemoteNotFound)
}
