package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JPShag/ComitSwapBot/internal/swap"
)

// Webhook POSTs swap events as JSON to a single endpoint. Register one
// Webhook per configured URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook notifier for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name identifies the sink in logs.
func (w *Webhook) Name() string { return "webhook" }

// webhookPayload is the JSON body sent to the endpoint.
type webhookPayload struct {
	EventID string           `json:"event_id"`
	Event   string           `json:"event"`
	Message string           `json:"message"`
	Swap    *swap.AtomicSwap `json:"swap"`
}

// Notify POSTs the event and returns its correlation id.
func (w *Webhook) Notify(ctx context.Context, s *swap.AtomicSwap) (string, error) {
	payload := webhookPayload{
		EventID: uuid.NewString(),
		Event:   "swap." + string(s.CurrentState),
		Message: FormatSwapMessage(s),
		Swap:    s,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return payload.EventID, nil
}
