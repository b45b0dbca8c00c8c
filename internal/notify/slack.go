package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mergeflow/internal/httputil"
)

// SlackSender posts to a Slack incoming webhook. Messages carry Block Kit
// blocks and a plain text fallback for clients that cannot render them.
type SlackSender struct {
	url    string
	client *httputil.Client
}

func NewSlackSender(webhookURL string, client *http.Client) *SlackSender {
	return &SlackSender{
		url:    strings.TrimSpace(webhookURL),
		client: httputil.NewClient(client, deliveryPolicy),
	}
}

func (s *SlackSender) Name() string {
	return "slack"
}

func (s *SlackSender) Send(ctx context.Context, payload Payload) error {
	encoded, err := json.Marshal(slackMessageFor(payload))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, encoded, s.Name(), nil)
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(text string) slackText { return slackText{Type: "mrkdwn", Text: text} }

func slackMessageFor(payload Payload) slackMessage {
	fields := []slackText{
		mrkdwn("*Files*\n" + strings.Join(payload.Files, "\n")),
		mrkdwn(fmt.Sprintf("*Conflicts*\n%d", payload.ConflictCount)),
	}
	if payload.Event != TriggerConflictsDetected {
		fields = append(fields, mrkdwn(fmt.Sprintf("*Resolved*\n%d of %d, %d failed", payload.ResolvedCount, payload.ConflictCount, payload.FailedCount)))
	}
	if payload.RunID != "" {
		fields = append(fields, mrkdwn("*Run*\n`"+payload.RunID+"`"))
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "mergeflow: " + EventLabel(payload.Event)}},
		{Type: "section", Fields: fields},
	}
	if len(payload.Errors) > 0 {
		lines := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			lines = append(lines, "• "+e)
		}
		blocks = append(blocks, slackBlock{Type: "context", Elements: []slackText{mrkdwn(strings.Join(lines, "\n"))}})
	}
	return slackMessage{Text: SlackText(payload), Blocks: blocks}
}

// SlackText is the plain text rendering of payload.
func SlackText(payload Payload) string {
	text := fmt.Sprintf("mergeflow: %s\nFiles: %s\nConflicts: %d", EventLabel(payload.Event), strings.Join(payload.Files, ", "), payload.ConflictCount)
	if payload.RunID != "" {
		text += "\nRun: " + payload.RunID
	}
	if payload.Event != TriggerConflictsDetected {
		text += fmt.Sprintf("\nResolved: %d, failed: %d", payload.ResolvedCount, payload.FailedCount)
	}
	if payload.ElapsedMS > 0 {
		text += fmt.Sprintf("\nElapsed: %s", time.Duration(payload.ElapsedMS)*time.Millisecond)
	}
	for _, e := range payload.Errors {
		text += "\n- " + e
	}
	return text
}
