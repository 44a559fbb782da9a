// Webhook bridge for pubsub: forwards every Intent matching a subscribed
// action to an HTTP endpoint, signing the body with HMAC-SHA256 when a
// secret is configured — the same POST-and-sign shape used by this
// codebase's webhook delivery, adapted from polling a queue to forwarding a
// live subscription.
package pubsub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// webhookPayload is the JSON body POSTed to a webhook subscriber.
type webhookPayload struct {
	Action string         `json:"action"`
	What   int32          `json:"what"`
	Extras map[string]any `json:"extras,omitempty"`
}

// WebhookSubscription describes one HTTP delivery target.
type WebhookSubscription struct {
	URL     string
	Secret  string // optional; when set, requests carry an X-Loopd-Signature header
	Actions []string
}

// WebhookBridge forwards Intents to a set of HTTP endpoints, delivered
// serially through the Registry's WorkerThread the same way every other
// subscription is.
type WebhookBridge struct {
	client *http.Client
}

// NewWebhookBridge returns a WebhookBridge posting with the given timeout.
func NewWebhookBridge(timeout time.Duration) *WebhookBridge {
	return &WebhookBridge{client: &http.Client{Timeout: timeout}}
}

// Register subscribes sub.URL to sub.Actions on reg; delivery failures are
// logged, not retried — callers needing retry should wrap reg.Publish with
// their own backoff.
func (b *WebhookBridge) Register(reg *Registry, sub WebhookSubscription) (string, error) {
	return reg.Subscribe(func(in *Intent) {
		if err := b.deliver(context.Background(), sub, in); err != nil {
			slog.Warn("pubsub: webhook delivery failed", "url", sub.URL, "action", in.Action, "err", err)
		}
	}, sub.Actions...)
}

func (b *WebhookBridge) deliver(ctx context.Context, sub WebhookSubscription, in *Intent) error {
	payload := webhookPayload{Action: in.Action, What: in.What, Extras: in.Extras}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pubsub: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if sub.Secret != "" {
		mac := hmac.New(sha256.New, []byte(sub.Secret))
		mac.Write(body)
		req.Header.Set("X-Loopd-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("pubsub: POST to %s: %w", sub.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pubsub: endpoint %s returned %d", sub.URL, resp.StatusCode)
	}
	return nil
}
