package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/models"
)

// Config holds remote cart backend connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// Client implements CartStore against the CraftBiz REST backend.
// Timeouts are left to the transport; the sync core treats "no response"
// as a transient failure.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// UserID returns the configured user identity.
func (c *Client) UserID() string {
	return c.config.UserID
}

// itemURL builds the record URL for itemID scoped to the configured user.
func (c *Client) itemURL(itemID string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	return fmt.Sprintf("%s/v1/cart/%s/%s", base, url.PathEscape(c.config.UserID), url.PathEscape(itemID))
}

// do executes a request with auth headers and maps transport failures to
// a transient remote fault.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "remote request failed", err)
	}
	return resp, nil
}

// statusError maps an unexpected HTTP status to an application error.
// Server-side failures stay retryable; client-side rejections do not.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("remote returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.ErrSyncUnauthorized, msg)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrRemoteUnavailable, msg)
	default:
		return apperrors.New(apperrors.ErrRemoteRejected, msg)
	}
}

// GetItem fetches the cart record for itemID.
func (c *Client) GetItem(ctx context.Context, itemID string) (*models.CartItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemURL(itemID), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.New(apperrors.ErrRemoteNotFound, fmt.Sprintf("cart item not found: %s", itemID))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var item models.CartItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "failed to decode cart item", err)
	}
	return &item, nil
}

// UpsertItem creates or overwrites the cart record for item.ItemID.
func (c *Client) UpsertItem(ctx context.Context, item *models.CartItem) error {
	if item.UserID == "" {
		item.UserID = c.config.UserID
	}

	data, err := json.Marshal(item)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode cart item", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.itemURL(item.ItemID), bytes.NewReader(data))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return statusError(resp)
	}
}

// DeleteItem removes the cart record for itemID. A 404 from the backend is
// treated as success so deletes stay idempotent.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.itemURL(itemID), nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError(resp)
	}
}

// ItemExists reports whether a cart record exists for itemID.
func (c *Client) ItemExists(ctx context.Context, itemID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.itemURL(itemID), nil)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError(resp)
	}
}

// Ping checks reachability of the remote backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	base := strings.TrimRight(c.config.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/health", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}
