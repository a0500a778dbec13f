package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
	"github.com/boriskellerman/gimli-sub008/internal/model"
)

// Caller identifies the authenticated client a request runs as.
type Caller struct {
	ClientID string
	Role     auth.Role
}

// HandlerFunc executes one validated operation. Handlers read typed
// parameters, call into the registry or run store, and produce either a
// success payload or a structured error. They never write to the transport.
type HandlerFunc func(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail)

type method struct {
	schema  Schema
	minRole auth.Role
	handler HandlerFunc
}

// Dispatcher validates inbound requests against declared schemas and routes
// them to handlers. Safe for concurrent use after registration.
type Dispatcher struct {
	methods map[string]method
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		methods: make(map[string]method),
		logger:  logger,
	}
}

// register declares a method. Called during construction, before dispatching.
func (d *Dispatcher) register(name string, minRole auth.Role, schema Schema, h HandlerFunc) {
	d.methods[name] = method{schema: schema, minRole: minRole, handler: h}
}

// Methods returns the declared method names, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates and routes one request. It never panics and never
// returns a malformed response: any failure inside a handler becomes a
// structured error so the caller's connection survives.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, req model.RPCRequest) model.RPCResponse {
	m, ok := d.methods[req.Method]
	if !ok {
		return errorResponse(&model.ErrorDetail{
			Code:    model.ErrCodeInvalidRequest,
			Message: fmt.Sprintf("unknown method %q", req.Method),
		})
	}

	if !auth.RoleAtLeast(caller.Role, m.minRole) {
		return errorResponse(&model.ErrorDetail{
			Code:    model.ErrCodeForbidden,
			Message: fmt.Sprintf("method %s requires role %s", req.Method, m.minRole),
		})
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	if violations := m.schema.Validate(params); len(violations) > 0 {
		return errorResponse(&model.ErrorDetail{
			Code:    model.ErrCodeInvalidRequest,
			Message: "request parameters failed validation",
			Details: violations,
		})
	}

	result, errDetail := d.invoke(ctx, m.handler, caller, req.Method, params)
	if errDetail != nil {
		return errorResponse(errDetail)
	}
	return model.RPCResponse{
		OK:     true,
		Result: result,
		Meta:   model.ResponseMeta{Timestamp: time.Now().UTC()},
	}
}

// invoke runs a handler with panic recovery. A panic is converted to an
// internal-error response with a non-sensitive message; the raw value is
// only logged.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, caller Caller, methodName string, params map[string]any) (result any, errDetail *model.ErrorDetail) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("rpc handler panicked", "method", methodName, "panic", r)
			result = nil
			errDetail = &model.ErrorDetail{
				Code:    model.ErrCodeInternalError,
				Message: "internal error",
			}
		}
	}()
	return h(ctx, caller, params)
}

func errorResponse(detail *model.ErrorDetail) model.RPCResponse {
	return model.RPCResponse{
		OK:    false,
		Error: detail,
		Meta:  model.ResponseMeta{Timestamp: time.Now().UTC()},
	}
}
