package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sendrec/chaptersync/internal/cart"
)

// Config points at a Listmonk instance. To is the inbox that receives order
// notices.
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	TemplateID int
	To         string
}

type Client struct {
	config Config
	http   *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type txRequest struct {
	SubscriberEmail string            `json:"subscriber_email"`
	TemplateID      int               `json:"template_id"`
	Data            map[string]string `json:"data"`
	ContentType     string            `json:"content_type"`
}

// OrderSubmitted sends a transactional mail describing order to the shop inbox.
func (c *Client) OrderSubmitted(ctx context.Context, order cart.Order) error {
	if c.config.BaseURL == "" || c.config.To == "" {
		slog.Info("email: not configured, skipping order notice", "order_id", order.ID)
		return nil
	}
	if c.config.TemplateID == 0 {
		slog.Warn("email: order template id is 0, Listmonk will reject the request", "order_id", order.ID)
	}

	body := txRequest{
		SubscriberEmail: c.config.To,
		TemplateID:      c.config.TemplateID,
		Data: map[string]string{
			"orderId":   order.ID,
			"name":      order.Name,
			"address":   order.Address,
			"items":     strings.Join(order.Items, ", "),
			"itemCount": strconv.Itoa(len(order.Items)),
			"timestamp": order.Timestamp.UTC().Format(time.RFC3339),
		},
		ContentType: "html",
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/api/tx", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send order notice: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listmonk returned status %d", resp.StatusCode)
	}

	return nil
}
