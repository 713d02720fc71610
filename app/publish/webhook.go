package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookClient delivers rendered content to a webhook endpoint.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

func NewWebhookClient(url string, timeout time.Duration) (*WebhookClient, error) {
	if url == "" {
		return nil, fmt.Errorf("missing webhook URL")
	}
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Send posts the content as a JSON message. A 2xx response is success;
// upstream 5xx-class responses carry the transient signature.
func (c *WebhookClient) Send(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return markTransient(fmt.Errorf("webhook send failed: %w", err))
	}
	defer resp.Body.Close()

	if transientStatus(resp.StatusCode) {
		return markTransient(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
