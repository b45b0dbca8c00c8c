package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergeflow/internal/diff3"
	"mergeflow/internal/httputil"
)

func testClient(srv *httptest.Server) *httputil.Client {
	return httputil.NewClient(srv.Client(), httputil.Policy{
		MaxAttempts: 2,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	})
}

var sampleConflict = diff3.Conflict{
	Local:  []string{"    x = 1", "    y = 2"},
	Base:   []string{"    x = 0"},
	Remote: []string{"    x = 3"},
}

func TestHTTPResolverSendsRegion(t *testing.T) {
	t.Parallel()

	type captured struct {
		req         Request
		auth        string
		contentType string
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.auth = r.Header.Get("Authorization")
		c.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&c.req)
		seen <- c
		_, _ = w.Write([]byte(`{"conflict_type":"B","resolved_code":"x = 3\ny = 2"}`))
	}))
	defer srv.Close()

	res, err := NewHTTPResolver(srv.URL, "secret", testClient(srv)).Resolve(context.Background(), sampleConflict)
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, Request{Base: "    x = 0", Local: "    x = 1\n    y = 2", Remote: "    x = 3"}, got.req)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, LabelRemote, res.Label)
	assert.Equal(t, "B", res.RawLabel)
	assert.Equal(t, []string{"x = 3", "y = 2"}, res.Lines)
}

func TestHTTPResolverNoToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"conflict_type":"A","resolved_code":"x"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL, "", testClient(srv)).Resolve(context.Background(), sampleConflict)
	require.NoError(t, err)
}

func TestHTTPResolverMissingCode(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"conflict_type":"Kompleks"}`,
		`{"conflict_type":"Kompleks","resolved_code":null}`,
		`{"conflict_type":"Kompleks","resolved_code":""}`,
	} {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		res, err := NewHTTPResolver(srv.URL, "", testClient(srv)).Resolve(context.Background(), sampleConflict)
		srv.Close()

		require.NoError(t, err, body)
		assert.Equal(t, LabelComplex, res.Label, body)
		assert.Equal(t, []string{NoCodePlaceholder}, res.Lines, body)
	}
}

func TestHTTPResolverServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusBadRequest, `{"error":"base is required"}`, "base is required"},
		{"plain body", http.StatusBadRequest, "bad input", "bad input"},
		{"empty body", http.StatusForbidden, "", "Forbidden"},
		{"server error after retries", http.StatusInternalServerError, `{"error":"model crashed"}`, "model crashed"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPResolver(srv.URL, "", testClient(srv)).Resolve(context.Background(), sampleConflict)
			var se *ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.status, se.Status)
			assert.Equal(t, tc.wantMsg, se.Message)
		})
	}
}

func TestHTTPResolverRetriesUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"conflict_type":"A","resolved_code":"ok"}`))
	}))
	defer srv.Close()

	res, err := NewHTTPResolver(srv.URL, "", testClient(srv)).Resolve(context.Background(), sampleConflict)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"ok"}, res.Lines)
}

func TestHTTPResolverBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL, "", testClient(srv)).Resolve(context.Background(), sampleConflict)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode resolve response")
}

func TestHTTPResolverNoEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPResolver("  ", "", nil).Resolve(context.Background(), sampleConflict)
	assert.True(t, errors.Is(err, ErrNoEndpoint))
}
