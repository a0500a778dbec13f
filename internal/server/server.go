package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
	"github.com/boriskellerman/gimli-sub008/internal/model"
	"github.com/boriskellerman/gimli-sub008/internal/orchestrator"
	"github.com/boriskellerman/gimli-sub008/internal/ratelimit"
	"github.com/boriskellerman/gimli-sub008/internal/rpc"
	"github.com/boriskellerman/gimli-sub008/internal/runstore"
)

// Server is the control-plane HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and settings for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type Config struct {
	JWTMgr      *auth.JWTManager
	Credentials *auth.Credentials
	Dispatcher  *rpc.Dispatcher
	Registry    *orchestrator.Registry
	Runs        *runstore.Store
	Logger      *slog.Logger

	Limiter   *ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates the HTTP server with all routes configured.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{
		jwtMgr:      cfg.JWTMgr,
		credentials: cfg.Credentials,
		dispatcher:  cfg.Dispatcher,
		registry:    cfg.Registry,
		runs:        cfg.Runs,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
		version:     cfg.Version,
		maxBody:     cfg.MaxRequestBodyBytes,
		started:     time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", h.handleAuthToken)
	mux.HandleFunc("POST /rpc", h.handleRPC)
	mux.HandleFunc("GET /health", h.handleHealth)

	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Every inbound connection passes the limiter before dispatch; the
	// connection is tracked for the request's lifetime. Key: authenticated
	// client id, else client IP. Health is exempt.
	keyFunc := func(r *http.Request) string {
		if r.URL.Path == "/health" {
			return ""
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			return claims.ClientID
		}
		return ratelimit.IPKeyFunc(r)
	}
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	rateLimit := ratelimit.Middleware(cfg.Limiter, keyFunc, reqIDFunc)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → rate limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = rateLimit(handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

type handlers struct {
	jwtMgr      *auth.JWTManager
	credentials *auth.Credentials
	dispatcher  *rpc.Dispatcher
	registry    *orchestrator.Registry
	runs        *runstore.Store
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	version     string
	maxBody     int64
	started     time.Time
}

// handleAuthToken exchanges client credentials for a signed JWT.
// A successful re-authentication clears any rate-limit backoff the caller
// accumulated while locked out.
func (h *handlers) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(h.limitBody(w, r), &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "malformed request body")
		return
	}
	if req.ClientID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "client_id and api_key are required")
		return
	}

	role, ok := h.credentials.Verify(req.ClientID, req.APIKey)
	if !ok {
		h.logger.Warn("auth failed", "client_id", req.ClientID,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.ClientID, role)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "token issuance failed")
		return
	}

	if h.limiter != nil {
		h.limiter.ResetViolations(req.ClientID)
		h.limiter.ResetViolations(ratelimit.IPKeyFunc(r))
	}

	writeJSON(w, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// handleRPC decodes the {method, params} envelope, dispatches it as the
// authenticated caller, and writes the response envelope with an HTTP status
// derived from the error code.
func (h *handlers) handleRPC(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	var req model.RPCRequest
	if err := decodeJSON(h.limitBody(w, r), &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "malformed request body")
		return
	}
	if req.Method == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "method is required")
		return
	}

	caller := rpc.Caller{ClientID: claims.ClientID, Role: claims.Role}
	resp := h.dispatcher.Dispatch(r.Context(), caller, req)
	resp.Meta.RequestID = RequestIDFromContext(r.Context())

	writeJSON(w, statusForResponse(resp), resp)
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:        "ok",
		Version:       h.version,
		Orchestrators: h.registry.Len(),
		Runs:          h.runs.Len(),
		Uptime:        int64(time.Since(h.started).Seconds()),
	})
}

func (h *handlers) limitBody(w http.ResponseWriter, r *http.Request) *http.Request {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	return r
}

// statusForResponse maps RPC error codes onto HTTP statuses. Success is 200;
// capacity and rate-limit denials are 429 so generic clients back off.
func statusForResponse(resp model.RPCResponse) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeCapacityExceeded, model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
