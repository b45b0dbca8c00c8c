package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mergeflow/internal/config"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'` + "`" + `]+`)

// BuildSenders returns a sender for every configured channel.
func BuildSenders(cfg config.NotificationsConfig, client *http.Client) []Sender {
	var senders []Sender
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		senders = append(senders, NewWebhookSender(cfg.WebhookURL, client))
	}
	if strings.TrimSpace(cfg.SlackWebhook) != "" {
		senders = append(senders, NewSlackSender(cfg.SlackWebhook, client))
	}
	return senders
}

// SendAll delivers payload to every sender at once, each under its own
// timeout. Results keep the order of senders; nil senders are skipped.
func SendAll(ctx context.Context, senders []Sender, payload Payload, timeout time.Duration) []ChannelResult {
	active := lo.Compact(senders)
	results := make([]ChannelResult, len(active))

	var g errgroup.Group
	for i, sender := range active {
		i, sender := i, sender
		g.Go(func() error {
			sendCtx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				sendCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()
			results[i] = ChannelResult{Channel: sender.Name(), Success: true}
			if err := sender.Send(sendCtx, payload); err != nil {
				results[i].Success = false
				results[i].Error = sanitizeChannelError(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func summarizeFailures(results []ChannelResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		if result.Success {
			continue
		}
		if result.Error == "" {
			parts = append(parts, fmt.Sprintf("%s failed", result.Channel))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", result.Channel, result.Error))
	}
	return strings.Join(parts, "; ")
}

func sanitizeChannelError(err error) string {
	if err == nil {
		return ""
	}
	msg := redactURLs(strings.TrimSpace(err.Error()))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func redactURLs(msg string) string {
	return urlPattern.ReplaceAllStringFunc(msg, func(match string) string {
		parsed, err := url.Parse(match)
		if err != nil || parsed.Host == "" {
			return "[redacted-url]"
		}
		return parsed.Scheme + "://" + parsed.Host + "/REDACTED"
	})
}
