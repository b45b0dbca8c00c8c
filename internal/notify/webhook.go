package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mergeflow/internal/config"
	"mergeflow/internal/httputil"
)

const maxErrorBodyBytes = 1024

// deliveryPolicy retries a notification once. Senders run under the
// notifier's per-channel timeout, so waits stay short.
var deliveryPolicy = httputil.Policy{
	MaxAttempts:   2,
	BaseDelay:     200 * time.Millisecond,
	MaxDelay:      time.Second,
	JitterFactor:  0.2,
	MaxRetryAfter: 2 * time.Second,
}

// WebhookSender posts the Payload as JSON to a generic endpoint. The event
// and run ID are repeated in X-Mergeflow-Event and X-Mergeflow-Run so
// receivers can route without decoding the body.
type WebhookSender struct {
	url    string
	client *httputil.Client
}

func NewWebhookSender(webhookURL string, client *http.Client) *WebhookSender {
	return &WebhookSender{
		url:    strings.TrimSpace(webhookURL),
		client: httputil.NewClient(client, deliveryPolicy),
	}
}

func (s *WebhookSender) Name() string {
	return "webhook"
}

func (s *WebhookSender) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	header := http.Header{}
	header.Set("X-Mergeflow-Event", payload.Event)
	if payload.RunID != "" {
		header.Set("X-Mergeflow-Run", payload.RunID)
	}
	return postJSON(ctx, s.client, s.url, body, s.Name(), header)
}

func postJSON(ctx context.Context, client *httputil.Client, endpoint string, body []byte, channel string, header http.Header) error {
	if endpoint == "" {
		return fmt.Errorf("%s endpoint is empty", channel)
	}

	resp, err := client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "mergeflow/"+config.Version)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send %s request: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s request failed with status %d: %s", channel, resp.StatusCode, msg)
	}
	return nil
}
