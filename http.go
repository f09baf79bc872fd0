package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	mcpPath        = "/mcp"
	healthPath     = "/health"
	metricsPath    = "/metrics"
	shutdownGrace  = 5 * time.Second
	transportLabel = "http-streamable"
)

// ===== infra helpers =====

type MiddlewareFunc func(http.Handler) http.Handler

func chainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

func newAuthMiddleware(tokens []string) MiddlewareFunc {
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			tokenSet[token] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokenSet) != 0 && r.Method != http.MethodOptions {
				token := r.Header.Get("Authorization")
				token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
				if token == "" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				if _, ok := tokenSet[token]; !ok {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggerMiddleware(logger *zap.Logger) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String(fieldSession, r.Header.Get(server.HeaderKeySessionID)),
				durationField(time.Since(started)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic while handling request", zap.String("path", r.URL.Path), zap.Any("panic", err))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(rpcError(nil, mcp.INTERNAL_ERROR, "Internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(origins []string) MiddlewareFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			h.Set("Access-Control-Expose-Headers", server.HeaderKeySessionID)
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, mcp-session-id, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

func rpcError(id any, code int, msg string) jsonrpcResponse {
	return jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg},
	}
}

// ===== sessions =====

var errUnknownSession = errors.New("unknown session id")

const (
	sessionIdleTimeout    = 30 * time.Minute
	maxTerminatedSessions = 1024
)

// sessionTracker issues uuid session ids and remembers which are live so
// /health can report a count. Sessions idle past idleTimeout are reaped as
// terminated; at most maxTerminated terminated ids are remembered.
type sessionTracker struct {
	mu            sync.Mutex
	active        map[string]time.Time
	terminated    map[string]time.Time
	idleTimeout   time.Duration
	maxTerminated int
	now           func() time.Time
	logger        *zap.Logger
}

func newSessionTracker(logger *zap.Logger) *sessionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionTracker{
		active:        make(map[string]time.Time),
		terminated:    make(map[string]time.Time),
		idleTimeout:   sessionIdleTimeout,
		maxTerminated: maxTerminatedSessions,
		now:           time.Now,
		logger:        logger,
	}
}

func (t *sessionTracker) Generate() string {
	id := uuid.NewString()
	t.mu.Lock()
	now := t.now()
	t.reapLocked(now)
	t.active[id] = now
	t.mu.Unlock()
	t.logger.Debug("session initialized", zap.String(fieldSession, id))
	return id
}

func (t *sessionTracker) Validate(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.reapLocked(now)
	if _, ok := t.terminated[id]; ok {
		return true, nil
	}
	if _, ok := t.active[id]; !ok {
		return false, fmt.Errorf("%w: %q", errUnknownSession, id)
	}
	t.active[id] = now
	return false, nil
}

func (t *sessionTracker) Terminate(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		if _, gone := t.terminated[id]; gone {
			return false, nil
		}
		return false, fmt.Errorf("%w: %q", errUnknownSession, id)
	}
	t.terminateLocked(id, t.now())
	t.logger.Debug("cleaning up session", zap.String(fieldSession, id))
	return false, nil
}

func (t *sessionTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reapLocked(t.now())
	return len(t.active)
}

func (t *sessionTracker) terminateLocked(id string, now time.Time) {
	delete(t.active, id)
	t.terminated[id] = now
	for len(t.terminated) > t.maxTerminated {
		oldest, oldestAt := "", now
		for tid, at := range t.terminated {
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = tid, at
			}
		}
		delete(t.terminated, oldest)
	}
}

func (t *sessionTracker) reapLocked(now time.Time) {
	if t.idleTimeout <= 0 {
		return
	}
	for id, seen := range t.active {
		if now.Sub(seen) > t.idleTimeout {
			t.terminateLocked(id, now)
			t.logger.Debug("reaped idle session", zap.String(fieldSession, id))
		}
	}
	for id, at := range t.terminated {
		if now.Sub(at) > t.idleTimeout {
			delete(t.terminated, id)
		}
	}
}

// ===== handlers =====

type healthResponse struct {
	Status      string   `json:"status"`
	Transport   string   `json:"transport"`
	IDEEndpoint *string  `json:"ideEndpoint"`
	Sessions    int      `json:"sessions"`
	Tools       []string `json:"tools"`
}

func healthHandler(state *endpointState, sessions *sessionTracker, registry *toolRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := healthResponse{Status: "ok", Transport: transportLabel, Sessions: sessions.Count(), Tools: []string{}}
		for _, t := range registry.Tools() {
			resp.Tools = append(resp.Tools, t.Tool.Name)
		}
		if ep, ok := state.Endpoint(); ok {
			s := ep.String()
			resp.IDEEndpoint = &s
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type httpOptions struct {
	AuthTokens     []string
	AllowedOrigins []string
}

// newHTTPHandler mounts /mcp, /health and /metrics behind the middleware
// chain.
func newHTTPHandler(srv *server.MCPServer, registry *toolRegistry, state *endpointState, metrics *proxyMetrics, opts httpOptions, logger *zap.Logger) (http.Handler, *sessionTracker) {
	sessions := newSessionTracker(logger.Named("sessions"))
	streamable := server.NewStreamableHTTPServer(srv,
		server.WithEndpointPath(mcpPath),
		server.WithSessionIdManager(sessions),
		server.WithLogger(logger.Named("streamable").Sugar()),
	)

	mux := http.NewServeMux()
	mux.Handle(mcpPath, newAuthMiddleware(opts.AuthTokens)(streamable))
	mux.Handle(healthPath, healthHandler(state, sessions, registry))
	mux.Handle(metricsPath, newAuthMiddleware(opts.AuthTokens)(metrics.handler()))

	handler := chainMiddleware(mux,
		corsMiddleware(opts.AllowedOrigins),
		loggerMiddleware(logger),
		recoverMiddleware(logger),
	)
	return handler, sessions
}

// runHTTP serves until ctx ends, then drains for up to shutdownGrace.
func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return serveHTTP(ctx, ln, handler, logger)
}

func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxy MCP server listening",
			zap.String(fieldTransport, transportLabel),
			zap.String("addr", ln.Addr().String()),
			zap.String("mcp", mcpPath),
			zap.String("health", healthPath),
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
