package model

import "time"

// RPCRequest is the request shape for every control-plane operation:
// a method name plus a bag of parameters validated against the method's
// declared schema before any handler runs.
type RPCRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// RPCResponse is the response envelope. Exactly one of Result or Error is
// populated; OK mirrors which.
type RPCResponse struct {
	OK     bool         `json:"ok"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
	Meta   ResponseMeta `json:"meta"`
}

// APIError is the error envelope used outside RPC dispatch (auth, transport,
// rate limiting) so every denial has the same shape.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes a structured error: a stable machine-readable code
// plus a human-readable reason. Details carries schema-violation lists and
// retry-after hints.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes returned across the RPC boundary.
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeCapacityExceeded = "CAPACITY_EXCEEDED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalError    = "INTERNAL"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListRunsResult is the payload for the run.list method.
type ListRunsResult struct {
	Runs    []Run `json:"runs"`
	Total   int   `json:"total"`
	HasMore bool  `json:"has_more"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
}

// TriggerResult is the payload for the workflow.trigger method.
type TriggerResult struct {
	RunID string `json:"run_id"`
}

// ShutdownResult is the payload for the orchestrator.shutdown method.
// Existed is false when the id was already gone; that is a reported
// failure, not an error.
type ShutdownResult struct {
	Existed bool `json:"existed"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Orchestrators int    `json:"orchestrators"`
	Runs          int    `json:"runs"`
	Uptime        int64  `json:"uptime_seconds"`
}
