// Package conflict provides unit tests for resolution strategies and the
// auto-resolution decision table.
package conflict

import (
	"context"
	"testing"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/models"
)

func conflictInfo(class models.ConflictClass, kind models.ActionKind, local *models.CartPayload, server *models.CartItem) *models.ConflictInfo {
	return &models.ConflictInfo{
		ActionID:   models.UUID("action-1"),
		Kind:       kind,
		LocalData:  local,
		ServerData: server,
		Class:      class,
	}
}

// TestAutoResolveTable tests every (class, kind) pair against the decision
// table. This is a pure function with no I/O.
func TestAutoResolveTable(t *testing.T) {
	cases := []struct {
		class models.ConflictClass
		kind  models.ActionKind
		want  Strategy
	}{
		{models.ConflictDeleted, models.ActionRemoveFromCart, StrategySkip},
		{models.ConflictDeleted, models.ActionUpdateCart, StrategySkip},
		{models.ConflictDeleted, models.ActionToggleFavorite, StrategySkip},
		{models.ConflictDeleted, models.ActionAddToCart, StrategyLocal},
		{models.ConflictModified, models.ActionAddToCart, StrategyMerge},
		{models.ConflictModified, models.ActionUpdateCart, StrategyLocal},
		{models.ConflictModified, models.ActionRemoveFromCart, StrategyLocal},
		{models.ConflictModified, models.ActionToggleFavorite, StrategyLocal},
		{models.ConflictNone, models.ActionAddToCart, StrategyLocal},
		{models.ConflictNone, models.ActionUpdateCart, StrategyLocal},
		{models.ConflictNone, models.ActionRemoveFromCart, StrategyLocal},
		{models.ConflictNone, models.ActionToggleFavorite, StrategyLocal},
	}

	for _, c := range cases {
		info := conflictInfo(c.class, c.kind, &models.CartPayload{ItemID: "x"}, nil)
		if got := AutoResolve(info); got != c.want {
			t.Errorf("AutoResolve(%s, %s) = %s, want %s", c.class, c.kind, got, c.want)
		}
	}
}

// TestResolveSkip tests that skip and server strategies touch nothing.
func TestResolveSkip(t *testing.T) {
	for _, strategy := range []Strategy{StrategySkip, StrategyServer} {
		store := newFakeCartStore()
		store.items["X"] = &models.CartItem{ItemID: "X", Quantity: 3}
		r := NewResolver(store)

		info := conflictInfo(models.ConflictModified, models.ActionUpdateCart,
			&models.CartPayload{ItemID: "X", Quantity: 9}, store.items["X"])

		if err := r.Resolve(context.Background(), info, strategy); err != nil {
			t.Fatalf("Resolve(%s) failed: %v", strategy, err)
		}
		if store.upsertCalls != 0 || store.deleteCalls != 0 {
			t.Errorf("Resolve(%s) mutated remote state", strategy)
		}
		if store.items["X"].Quantity != 3 {
			t.Errorf("Resolve(%s) changed remote quantity to %d", strategy, store.items["X"].Quantity)
		}
	}
}

// TestResolveLocalUpsert tests overwrite semantics for update actions.
func TestResolveLocalUpsert(t *testing.T) {
	store := newFakeCartStore()
	store.items["X"] = &models.CartItem{ItemID: "X", Quantity: 3}
	r := NewResolver(store)

	info := conflictInfo(models.ConflictModified, models.ActionUpdateCart,
		&models.CartPayload{ItemID: "X", Quantity: 9}, store.items["X"])

	if err := r.Resolve(context.Background(), info, StrategyLocal); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if store.items["X"].Quantity != 9 {
		t.Errorf("Expected remote quantity 9, got %d", store.items["X"].Quantity)
	}
	if store.items["X"].UserID != "user-1" {
		t.Errorf("Expected record scoped to user-1, got %q", store.items["X"].UserID)
	}
}

// TestResolveLocalDelete tests that local strategy for a removal deletes.
func TestResolveLocalDelete(t *testing.T) {
	store := newFakeCartStore()
	store.items["X"] = &models.CartItem{ItemID: "X", Quantity: 3}
	r := NewResolver(store)

	info := conflictInfo(models.ConflictModified, models.ActionRemoveFromCart,
		&models.CartPayload{ItemID: "X"}, store.items["X"])

	if err := r.Resolve(context.Background(), info, StrategyLocal); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := store.items["X"]; ok {
		t.Error("Expected remote record to be deleted")
	}
}

// TestResolveMergeSums tests that merging an addition sums quantities:
// local 2 + remote 3 = 5.
func TestResolveMergeSums(t *testing.T) {
	store := newFakeCartStore()
	store.items["A"] = &models.CartItem{ItemID: "A", Quantity: 3}
	r := NewResolver(store)

	info := conflictInfo(models.ConflictModified, models.ActionAddToCart,
		&models.CartPayload{ItemID: "A", Quantity: 2}, store.items["A"])

	if got := AutoResolve(info); got != StrategyMerge {
		t.Fatalf("AutoResolve = %s, want merge", got)
	}

	if err := r.Resolve(context.Background(), info, StrategyMerge); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if store.items["A"].Quantity != 5 {
		t.Errorf("Expected merged quantity 5, got %d", store.items["A"].Quantity)
	}
}

// TestResolveMergeRecheck tests the pre-write existence re-check: a record
// deleted between detection and merge is not resurrected with a stale sum.
func TestResolveMergeRecheck(t *testing.T) {
	store := newFakeCartStore()
	r := NewResolver(store)

	// Detection saw quantity 3, but the record has since been deleted.
	stale := &models.CartItem{ItemID: "A", Quantity: 3}
	info := conflictInfo(models.ConflictModified, models.ActionAddToCart,
		&models.CartPayload{ItemID: "A", Quantity: 2}, stale)

	if err := r.Resolve(context.Background(), info, StrategyMerge); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if store.items["A"].Quantity != 2 {
		t.Errorf("Expected local quantity 2 after re-check, got %d", store.items["A"].Quantity)
	}
}

// TestResolveMergeFallback tests that non-mergeable kinds fall back to
// local behavior.
func TestResolveMergeFallback(t *testing.T) {
	store := newFakeCartStore()
	store.items["X"] = &models.CartItem{ItemID: "X", Quantity: 3}
	r := NewResolver(store)

	info := conflictInfo(models.ConflictModified, models.ActionUpdateCart,
		&models.CartPayload{ItemID: "X", Quantity: 9}, store.items["X"])

	if err := r.Resolve(context.Background(), info, StrategyMerge); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if store.items["X"].Quantity != 9 {
		t.Errorf("Expected overwrite to 9, got %d", store.items["X"].Quantity)
	}
}

// TestResolveUnknownStrategy tests rejection of unknown strategies.
func TestResolveUnknownStrategy(t *testing.T) {
	r := NewResolver(newFakeCartStore())
	info := conflictInfo(models.ConflictNone, models.ActionAddToCart,
		&models.CartPayload{ItemID: "A"}, nil)

	err := r.Resolve(context.Background(), info, Strategy("coinflip"))
	if err == nil {
		t.Fatal("Expected error for unknown strategy")
	}
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

// TestStrategyValid tests the strategy validity check.
func TestStrategyValid(t *testing.T) {
	for _, s := range []Strategy{StrategySkip, StrategyServer, StrategyLocal, StrategyMerge} {
		if !s.Valid() {
			t.Errorf("Expected %s to be valid", s)
		}
	}
	if Strategy("coinflip").Valid() {
		t.Error("Expected coinflip to be invalid")
	}
}
