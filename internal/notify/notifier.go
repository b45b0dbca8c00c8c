package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mergeflow/internal/config"
)

const defaultSendTimeout = 5 * time.Second

// Notifier delivers run events to the configured channels. Delivery is best
// effort: failures are logged and never surface to the caller.
type Notifier struct {
	senders  []Sender
	triggers map[string]struct{}
	timeout  time.Duration
	now      func() time.Time
}

// New builds a Notifier from the notifications section of the config.
func New(cfg config.NotificationsConfig, client *http.Client) *Notifier {
	return NewWithSenders(BuildSenders(cfg, client), cfg.Triggers)
}

func NewWithSenders(senders []Sender, triggers []string) *Notifier {
	return &Notifier{
		senders:  senders,
		triggers: TriggerSet(triggers),
		timeout:  defaultSendTimeout,
		now:      time.Now,
	}
}

// Enabled reports whether the event would be delivered anywhere.
func (n *Notifier) Enabled(event string) bool {
	if n == nil || len(n.senders) == 0 {
		return false
	}
	_, ok := n.triggers[event]
	return ok
}

// Notify sends the payload to every channel if its event is enabled and
// returns the per-channel results.
func (n *Notifier) Notify(ctx context.Context, payload Payload) []ChannelResult {
	if !n.Enabled(payload.Event) {
		return nil
	}
	if payload.Timestamp == "" {
		payload.Timestamp = n.now().UTC().Format(time.RFC3339)
	}
	results := SendAll(ctx, n.senders, payload, n.timeout)
	if summary := summarizeFailures(results); summary != "" {
		slog.Warn("notify: delivery failed", "event", payload.Event, "run", payload.RunID, "err", summary)
	} else {
		slog.Debug("notify: delivered", "event", payload.Event, "run", payload.RunID, "channels", successCount(results))
	}
	return results
}

func successCount(results []ChannelResult) int {
	count := 0
	for _, result := range results {
		if result.Success {
			count++
		}
	}
	return count
}
