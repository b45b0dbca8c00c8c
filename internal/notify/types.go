package notify

import (
	"context"
	"strings"
	"time"

	"mergeflow/internal/config"
)

const (
	TriggerConflictsDetected = config.TriggerConflictsDetected
	TriggerResolutionFailed  = config.TriggerResolutionFailed
	TriggerResolved          = config.TriggerResolved
)

var AllTriggers = []string{
	TriggerConflictsDetected,
	TriggerResolutionFailed,
	TriggerResolved,
}

// Payload is the JSON body sent to generic webhooks.
type Payload struct {
	Event         string   `json:"event"`
	RunID         string   `json:"run_id,omitempty"`
	Files         []string `json:"files"`
	ConflictCount int      `json:"conflict_count"`
	ResolvedCount int      `json:"resolved_count"`
	FailedCount   int      `json:"failed_count"`
	Errors        []string `json:"errors,omitempty"`
	ElapsedMS     int64    `json:"elapsed_ms,omitempty"`
	Timestamp     string   `json:"timestamp"`
}

type Sender interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func IsValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerConflictsDetected, TriggerResolutionFailed, TriggerResolved:
		return true
	default:
		return false
	}
}

func TriggerSet(triggers []string) map[string]struct{} {
	if triggers == nil {
		triggers = AllTriggers
	}
	out := make(map[string]struct{}, len(triggers))
	for _, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if IsValidTrigger(normalized) {
			out[normalized] = struct{}{}
		}
	}
	return out
}

func EventLabel(event string) string {
	switch event {
	case TriggerConflictsDetected:
		return "Conflicts Detected"
	case TriggerResolved:
		return "Conflicts Resolved"
	default:
		return "Resolution Failed"
	}
}

func TestPayload() Payload {
	return Payload{
		Event:         TriggerResolved,
		RunID:         "mf-run-test",
		Files:         []string{"base.py", "local.py", "remote.py"},
		ConflictCount: 2,
		ResolvedCount: 2,
		ElapsedMS:     1200,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}
