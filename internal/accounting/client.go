package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
)

// Client re-posts failed downstream operations to the accounting sync
// endpoint. It is the retry action the drain worker runs claimed tasks
// through.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type syncRequest struct {
	ShopID      string       `json:"shop_id"`
	EntityType  string       `json:"entity_type"`
	BusinessKey string       `json:"business_key"`
	Payload     models.JSONB `json:"payload,omitempty"`
}

// Execute posts the task to the accounting endpoint. Any non-2xx response
// is a failure; the retry queue decides whether to reschedule.
func (c *Client) Execute(ctx context.Context, task models.RetryTask) error {
	businessKey := ""
	if task.BusinessKey != nil {
		businessKey = *task.BusinessKey
	}
	body, err := json.Marshal(syncRequest{
		ShopID:      task.ShopID,
		EntityType:  task.EntityType,
		BusinessKey: businessKey,
		Payload:     task.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("accounting sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("accounting sync returned status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
