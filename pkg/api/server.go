package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/linkgate/pkg/gateway"
	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/logging"
	"github.com/rmax-ai/linkgate/web"
)

// Interfaces for dependencies to enable mocking

type LinkReader interface {
	Links(ctx context.Context) ([]gateway.Link[LinkID], error)
}

type LinkWriter interface {
	InsertLinks(ctx context.Context, objects []gateway.InputLink[LinkID]) ([]gateway.Link[LinkID], error)
}

const (
	// DefaultLockTimeout bounds how long a request waits for the store lock.
	DefaultLockTimeout = 5 * time.Second
	// DefaultMaxBodyBytes bounds request bodies on /v1/links and GraphQL.
	DefaultMaxBodyBytes = 1 << 20

	// writeMargin is the time left to run and encode a batch after the lock wait.
	writeMargin = 25 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr         string
	Playground   bool
	Version      string
	Logger       *slog.Logger
	LockTimeout  time.Duration
	MaxBodyBytes int64
}

// Server routes HTTP requests to the query and mutation resolvers.
type Server struct {
	reader  LinkReader
	writer  LinkWriter
	schema  graphql.Schema
	server  *http.Server
	logger  *slog.Logger
	version string

	lockTimeout  time.Duration
	maxBodyBytes int64

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance
func NewServer(reader LinkReader, writer LinkWriter, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		reader:       reader,
		writer:       writer,
		logger:       logger,
		version:      opts.Version,
		lockTimeout:  lockTimeout,
		maxBodyBytes: maxBodyBytes,
	}

	schema, err := newSchema(reader, writer)
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	s.schema = schema

	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/links", s.handleLinks)
	mux.HandleFunc("/", s.handleRoot(opts.Playground))

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	addr := opts.Addr
	if addr == "" {
		addr = ":1410"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: lockTimeout + writeMargin,
		IdleTimeout:  15 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	} else {
		s.logger.Info("server_starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleLinks serves GET (list all) and POST (insert) on /v1/links.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listLinks(w, r)
	case http.MethodPost:
		s.insertLinks(w, r)
	default:
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
	}
}

// resolverContext bounds the wait for the store lock. Resolvers ignore the
// deadline once the lock is held.
func (s *Server) resolverContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.lockTimeout)
}

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.resolverContext(r)
	defer cancel()

	ls, err := s.reader.Links(ctx)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ls)
}

func (s *Server) insertLinks(w http.ResponseWriter, r *http.Request) {
	var req InsertLinksRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		// Negative, fractional and out of range identifiers fail here.
		writeDecodeError(w, err)
		return
	}
	if req.Objects == nil {
		http.Error(w, `{"error":"invalid_request","reason":"missing_objects"}`, http.StatusBadRequest)
		return
	}

	objects := make([]gateway.InputLink[LinkID], 0, len(req.Objects))
	for i, o := range req.Objects {
		if o.FromID == nil || o.ToID == nil {
			http.Error(w, fmt.Sprintf(`{"error":"invalid_request","reason":"missing_from_id_or_to_id","index":%d}`, i), http.StatusBadRequest)
			return
		}
		objects = append(objects, gateway.InputLink[LinkID]{FromID: *o.FromID, ToID: *o.ToID})
	}

	ctx, cancel := s.resolverContext(r)
	defer cancel()

	ls, err := s.writer.InsertLinks(ctx, objects)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ls)
}

// handleRoot serves GraphQL on POST / and the playground on GET /.
func (s *Server) handleRoot(playground bool) http.HandlerFunc {
	page := web.Playground()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodPost:
			s.handleGraphQL(w, r)
		case http.MethodGet:
			if !playground {
				http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write(page)
		default:
			http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		}
	}
}

// handleHealth returns simple status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("failed_to_encode_response", "error", err)
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf(`{"error":"request_too_large","limit":%d}`, tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, `{"error":"invalid_request","reason":"invalid_json_body"}`, http.StatusBadRequest)
}

// writeGatewayError maps resolver failures onto HTTP statuses.
func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, links.ErrCapacityExceeded), errors.Is(err, links.ErrIDOverflow):
		http.Error(w, `{"error":"store_capacity_exceeded"}`, http.StatusInsufficientStorage)
	case errors.Is(err, links.ErrInvalidID):
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, `{"error":"service_unavailable"}`, http.StatusServiceUnavailable)
	default:
		logging.FromContext(r.Context()).Error("gateway_operation_failed", "error", err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
	}
}
