package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendrec/chaptersync/internal/cart"
)

// Client posts order notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	http       *http.Client
}

// New creates a Slack webhook client for webhookURL.
func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type payload struct {
	Blocks []block `json:"blocks"`
}

func (c *Client) postMessage(ctx context.Context, webhookURL string, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

func orderPayload(order cart.Order) payload {
	itemWord := "items"
	if len(order.Items) == 1 {
		itemWord = "item"
	}

	return payload{
		Blocks: []block{
			{
				Type: "section",
				Text: &text{
					Type: "mrkdwn",
					Text: fmt.Sprintf(":package: *New order from %s*\n%d %s: %s", order.Name, len(order.Items), itemWord, strings.Join(order.Items, ", ")),
				},
			},
			{
				Type: "section",
				Text: &text{
					Type: "mrkdwn",
					Text: "*Ship to:*\n> " + strings.ReplaceAll(order.Address, "\n", "\n> "),
				},
			},
			{
				Type: "context",
				Elements: []text{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("Order %s · %s", order.ID, order.Timestamp.UTC().Format(time.RFC3339)),
					},
				},
			},
		},
	}
}

// OrderSubmitted posts a summary of order to the channel.
func (c *Client) OrderSubmitted(ctx context.Context, order cart.Order) error {
	if err := c.postMessage(ctx, c.webhookURL, orderPayload(order)); err != nil {
		return fmt.Errorf("slack order notification: %w", err)
	}
	return nil
}
