// Package remote provides unit tests for the HTTP cart backend client.
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/models"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&Config{
		BaseURL: serverURL,
		APIKey:  "test-key",
		UserID:  "user-1",
	})
}

// TestGetItem tests a successful fetch, including the auth header.
func TestGetItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/cart/user-1/item-1" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected auth header: %q", got)
		}
		json.NewEncoder(w).Encode(&models.CartItem{
			UserID:   "user-1",
			ItemID:   "item-1",
			Quantity: 4,
		})
	}))
	defer server.Close()

	item, err := newTestClient(server.URL).GetItem(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.ItemID != "item-1" || item.Quantity != 4 {
		t.Errorf("Unexpected item: %+v", item)
	}
}

// TestGetItemNotFound tests the 404 mapping used by conflict detection.
func TestGetItemNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetItem(context.Background(), "gone")
	if !IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

// TestStatusMapping tests how backend statuses classify into error codes.
func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   apperrors.ErrorCode
	}{
		{http.StatusInternalServerError, apperrors.ErrRemoteUnavailable},
		{http.StatusBadGateway, apperrors.ErrRemoteUnavailable},
		{http.StatusTooManyRequests, apperrors.ErrRemoteUnavailable},
		{http.StatusUnauthorized, apperrors.ErrSyncUnauthorized},
		{http.StatusForbidden, apperrors.ErrSyncUnauthorized},
		{http.StatusBadRequest, apperrors.ErrRemoteRejected},
		{http.StatusUnprocessableEntity, apperrors.ErrRemoteRejected},
	}

	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		err := newTestClient(server.URL).UpsertItem(context.Background(), &models.CartItem{ItemID: "x"})
		if !apperrors.Is(err, c.code) {
			t.Errorf("Status %d: expected %s, got %v", c.status, c.code, err)
		}
		server.Close()
	}
}

// TestUpsertItem tests that the payload goes out as JSON with the user set.
func TestUpsertItem(t *testing.T) {
	var received models.CartItem
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestClient(server.URL).UpsertItem(context.Background(), &models.CartItem{
		ItemID:   "item-1",
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	if received.UserID != "user-1" {
		t.Errorf("Expected user scoping on outgoing item, got %q", received.UserID)
	}
	if received.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", received.Quantity)
	}
}

// TestDeleteItemIdempotent tests that a 404 on delete is success.
func TestDeleteItemIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).DeleteItem(context.Background(), "gone"); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}

// TestItemExists tests the HEAD probe in both directions.
func TestItemExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD, got %s", r.Method)
		}
		if r.URL.Path == "/v1/cart/user-1/present" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ok, err := client.ItemExists(context.Background(), "present")
	if err != nil || !ok {
		t.Errorf("Expected present item, got ok=%v err=%v", ok, err)
	}
	ok, err = client.ItemExists(context.Background(), "absent")
	if err != nil || ok {
		t.Errorf("Expected absent item, got ok=%v err=%v", ok, err)
	}
}

// TestPing tests health probing against a live and a dead endpoint.
func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	client := newTestClient(server.URL)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	// A closed server is a transient failure, not a rejection.
	server.Close()
	err := client.Ping(context.Background())
	if !apperrors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Errorf("Expected REMOTE_UNAVAILABLE for dead endpoint, got %v", err)
	}
}
