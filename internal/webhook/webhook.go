package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sendrec/chaptersync/internal/cart"
	"github.com/sendrec/chaptersync/internal/database"
)

const (
	maxResponseBodyBytes = 1024

	EventOrderSubmitted = "order.submitted"
)

// Event represents a webhook event to dispatch.
type Event struct {
	Name      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Client dispatches order events to one configured endpoint with retries.
// Attempts are logged to order_webhook_deliveries when a database is set.
type Client struct {
	db          database.DBTX
	http        *http.Client
	url         string
	secret      string
	retryDelays []time.Duration
}

// New creates a webhook client. db may be nil.
func New(db database.DBTX, url, secret string) *Client {
	return &Client{
		db:          db,
		http:        &http.Client{Timeout: 10 * time.Second},
		url:         url,
		secret:      secret,
		retryDelays: []time.Duration{1 * time.Second, 4 * time.Second},
	}
}

// SignPayload computes HMAC-SHA256 of the payload using the secret.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// OrderSubmitted sends the order.submitted event for order.
func (c *Client) OrderSubmitted(ctx context.Context, order cart.Order) error {
	return c.Dispatch(ctx, order.ID, Event{
		Name:      EventOrderSubmitted,
		Timestamp: order.Timestamp,
		Data: map[string]any{
			"orderId": order.ID,
			"name":    order.Name,
			"address": order.Address,
			"items":   order.Items,
		},
	})
}

// Dispatch sends an event with up to 3 attempts.
func (c *Client) Dispatch(ctx context.Context, orderID string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	signature := SignPayload(c.secret, body)
	maxAttempts := 1 + len(c.retryDelays)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, respBody, err := c.doPost(ctx, c.url, body, signature)
		c.logDelivery(ctx, orderID, event.Name, body, statusCode, respBody, attempt)

		if err == nil && statusCode != nil && *statusCode >= 200 && *statusCode < 300 {
			return nil
		}

		if err != nil {
			lastErr = err
		} else if statusCode != nil {
			lastErr = fmt.Errorf("webhook returned status %d", *statusCode)
		}

		if attempt < maxAttempts {
			select {
			case <-time.After(c.retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

func (c *Client) doPost(ctx context.Context, url string, body []byte, signature string) (*int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err.Error(), err
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, int64(maxResponseBodyBytes)+1))
	respBody := string(respBytes)
	if len(respBody) > maxResponseBodyBytes {
		respBody = respBody[:maxResponseBodyBytes]
	}

	return &resp.StatusCode, respBody, nil
}

func (c *Client) logDelivery(ctx context.Context, orderID, event string, payload []byte, statusCode *int, responseBody string, attempt int) {
	if c.db == nil {
		return
	}
	if _, err := c.db.Exec(ctx,
		`INSERT INTO order_webhook_deliveries (order_id, event, payload, status_code, response_body, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, event, payload, statusCode, responseBody, attempt,
	); err != nil {
		slog.Error("webhook: failed to log delivery", "order_id", orderID, "error", err)
	}
}
