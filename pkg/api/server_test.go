package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/linkgate/pkg/gateway"
	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/links/mem"
)

func newTestServer(t *testing.T, reader LinkReader, writer LinkWriter) http.Handler {
	t.Helper()
	s, err := NewServer(reader, writer, Options{
		Playground: true,
		Version:    "test",
		Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s.Handler()
}

func newMemServer(t *testing.T, opts ...mem.Option) http.Handler {
	gw := gateway.New[LinkID](mem.New[LinkID](opts...))
	return newTestServer(t, gw.Query, gw.Mutation)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// MockGateway returns a fixed error from both resolvers.
type MockGateway struct {
	err error
}

func (m *MockGateway) Links(ctx context.Context) ([]gateway.Link[LinkID], error) {
	return nil, m.err
}

func (m *MockGateway) InsertLinks(ctx context.Context, objects []gateway.InputLink[LinkID]) ([]gateway.Link[LinkID], error) {
	return nil, m.err
}

func TestSecureHeaders(t *testing.T) {
	// Create a handler that just returns 200 OK
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
		"X-XSS-Protection":          "1; mode=block",
	}

	for key, expected := range expectedHeaders {
		got := w.Header().Get(key)
		if got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestHealth(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestTraceIDIsPropagated(t *testing.T) {
	h := newMemServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get("X-Trace-ID"))
}

func TestRESTLinks_EmptyStore(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodGet, "/v1/links", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRESTLinks_InsertScenario(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2},{"from_id":2,"to_id":3},{"from_id":1,"to_id":2}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":1,"from_id":1,"to_id":2},{"id":2,"from_id":2,"to_id":3},{"id":1,"from_id":1,"to_id":2}]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/links", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"from_id":1,"to_id":2},{"id":2,"from_id":2,"to_id":3}]`, w.Body.String())
}

func TestRESTLinks_MaxIdentifier(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":18446744073709551615,"to_id":0}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":1,"from_id":18446744073709551615,"to_id":0}]`, w.Body.String())
}

func TestRESTLinks_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative id", `{"objects":[{"from_id":-1,"to_id":2}]}`},
		{"fractional id", `{"objects":[{"from_id":1.5,"to_id":2}]}`},
		{"out of range id", `{"objects":[{"from_id":18446744073709551616,"to_id":2}]}`},
		{"string id", `{"objects":[{"from_id":"1","to_id":2}]}`},
		{"missing to_id", `{"objects":[{"from_id":1}]}`},
		{"missing objects", `{}`},
		{"unknown field", `{"objects":[],"limit":10}`},
		{"not json", `objects`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMemServer(t)
			w := do(t, h, http.MethodPost, "/v1/links", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid_request")

			// Nothing reached the store.
			w = do(t, h, http.MethodGet, "/v1/links", "")
			assert.JSONEq(t, `[]`, w.Body.String())
		})
	}
}

func TestRESTLinks_CapacityExceeded(t *testing.T) {
	h := newMemServer(t, mem.WithCapacity(1))

	w := do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2},{"from_id":2,"to_id":3}]}`)
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Contains(t, w.Body.String(), "store_capacity_exceeded")

	w = do(t, h, http.MethodGet, "/v1/links", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRESTLinks_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"overflow", links.ErrIDOverflow, http.StatusInsufficientStorage},
		{"invalid id", links.ErrInvalidID, http.StatusBadRequest},
		{"lock wait cancelled", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"engine failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockGateway{err: tt.err}
			h := newTestServer(t, m, m)

			w := do(t, h, http.MethodGet, "/v1/links", "")
			assert.Equal(t, tt.status, w.Code)
			w = do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2}]}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRESTLinks_MethodNotAllowed(t *testing.T) {
	h := newMemServer(t)
	w := do(t, h, http.MethodDelete, "/v1/links", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPlayground(t *testing.T) {
	h := newMemServer(t)
	w := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "linkgate playground")

	gw := gateway.New[LinkID](mem.New[LinkID]())
	s, err := NewServer(gw.Query, gw.Mutation, Options{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))})
	require.NoError(t, err)
	w = do(t, s.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownPath(t *testing.T) {
	h := newMemServer(t)
	w := do(t, h, http.MethodGet, "/v2/links", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecovery(t *testing.T) {
	s := &Server{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
	h := s.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestLogLine(t *testing.T) {
	var buf bytes.Buffer
	gw := gateway.New[LinkID](mem.New[LinkID]())
	s, err := NewServer(gw.Query, gw.Mutation, Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	require.NoError(t, err)

	do(t, s.Handler(), http.MethodGet, "/v1/links", "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "http_request", line["msg"])
	assert.Equal(t, "/v1/links", line["path"])
	assert.EqualValues(t, 200, line["status"])
	assert.NotEmpty(t, line["trace_id"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "linkgate_operations_total")
	assert.Contains(t, body, "linkgate_lock_wait_seconds")
	assert.Contains(t, body, "linkgate_batch_size")
}

// blockingEngine holds the first GetOrCreate call until released.
type blockingEngine struct {
	*mem.Links[LinkID]
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEngine) GetOrCreate(ctx context.Context, source, target LinkID) (LinkID, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Links.GetOrCreate(ctx, source, target)
}

func TestLockWaitTimeout(t *testing.T) {
	engine := &blockingEngine{
		Links:   mem.New[LinkID](),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	// Hide Atomically so the batch reaches the blocking GetOrCreate.
	gw := gateway.New[LinkID](struct{ links.Engine[LinkID] }{engine})
	s, err := NewServer(gw.Query, gw.Mutation, Options{
		LockTimeout: 50 * time.Millisecond,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h := s.Handler()

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2}]}`)
	}()
	<-engine.entered

	w := do(t, h, http.MethodGet, "/v1/links", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"service_unavailable"}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/", `{"query":"{ links { id } }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")

	close(engine.release)
	w = <-first
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":1,"from_id":1,"to_id":2}]`, w.Body.String())
}

func TestRequestBodyLimit(t *testing.T) {
	gw := gateway.New[LinkID](mem.New[LinkID]())
	s, err := NewServer(gw.Query, gw.Mutation, Options{
		MaxBodyBytes: 64,
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h := s.Handler()

	big := `{"objects":[` + strings.Repeat(`{"from_id":1,"to_id":2},`, 10) + `{"from_id":1,"to_id":2}]}`
	w := do(t, h, http.MethodPost, "/v1/links", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "request_too_large")

	w = do(t, h, http.MethodPost, "/", `{"query":"mutation { insert_links(objects: [{from_id: 1, to_id: 2}, {from_id: 2, to_id: 3}]) { id } }"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, http.MethodPost, "/v1/links", `{"objects":[{"from_id":1,"to_id":2}]}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/links", "")
	assert.JSONEq(t, `[{"id":1,"from_id":1,"to_id":2}]`, w.Body.String())
}
