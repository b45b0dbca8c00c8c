// Package resolve sends conflicting regions to an external resolution
// service and splices the answers back into the merged document.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mergeflow/internal/diff3"
	"mergeflow/internal/httputil"
)

const (
	// NoCodePlaceholder replaces a response that carries no resolved code.
	NoCodePlaceholder = "[No resolved code returned]"

	maxResponseBytes  = 4 << 20
	maxErrorBodyBytes = 1024
)

// Request is the JSON body posted for one conflicting region.
type Request struct {
	Base   string `json:"base"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// NewRequest joins the three slices of c into a Request.
func NewRequest(c diff3.Conflict) Request {
	return Request{
		Base:   diff3.JoinLines(c.Base),
		Local:  diff3.JoinLines(c.Local),
		Remote: diff3.JoinLines(c.Remote),
	}
}

type response struct {
	ConflictType string  `json:"conflict_type"`
	ResolvedCode *string `json:"resolved_code"`
	Error        string  `json:"error"`
}

// Resolution is the service's answer for one region.
type Resolution struct {
	Label    Label    `json:"label"`
	RawLabel string   `json:"raw_label"`
	Lines    []string `json:"lines"`
}

// Resolver resolves a single conflicting region.
type Resolver interface {
	Resolve(ctx context.Context, c diff3.Conflict) (Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, c diff3.Conflict) (Resolution, error)

func (f ResolverFunc) Resolve(ctx context.Context, c diff3.Conflict) (Resolution, error) {
	return f(ctx, c)
}

// ServiceError is a non-success answer from the resolution service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("resolver returned status %d: %s", e.Status, e.Message)
}

// ErrNoEndpoint is returned when no resolver endpoint is configured.
var ErrNoEndpoint = errors.New("resolver endpoint is not configured")

// HTTPResolver posts each region to the resolution service as JSON.
type HTTPResolver struct {
	endpoint string
	token    string
	client   *httputil.Client
}

func NewHTTPResolver(endpoint, token string, client *httputil.Client) *HTTPResolver {
	if client == nil {
		client = httputil.NewClient(nil, httputil.DefaultPolicy())
	}
	return &HTTPResolver{
		endpoint: strings.TrimSpace(endpoint),
		token:    strings.TrimSpace(token),
		client:   client,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, c diff3.Conflict) (Resolution, error) {
	if r.endpoint == "" {
		return Resolution{}, ErrNoEndpoint
	}

	body, err := json.Marshal(NewRequest(c))
	if err != nil {
		return Resolution{}, fmt.Errorf("marshal resolve request: %w", err)
	}

	resp, err := r.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		return req, nil
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("send resolve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Resolution{}, serviceError(resp)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return Resolution{}, fmt.Errorf("decode resolve response: %w", err)
	}
	return newResolution(out), nil
}

func newResolution(out response) Resolution {
	res := Resolution{
		Label:    ParseLabel(out.ConflictType),
		RawLabel: out.ConflictType,
	}
	if out.ResolvedCode == nil || *out.ResolvedCode == "" {
		res.Lines = []string{NoCodePlaceholder}
	} else {
		res.Lines = diff3.SplitLines(*out.ResolvedCode)
	}
	return res
}

// serviceError prefers the service's {"error": ...} message, then the raw
// body, then the status text.
func serviceError(resp *http.Response) *ServiceError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := ""
	var out response
	if json.Unmarshal(raw, &out) == nil {
		msg = strings.TrimSpace(out.Error)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ServiceError{Status: resp.StatusCode, Message: msg}
}
