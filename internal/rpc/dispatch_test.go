package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
	"github.com/boriskellerman/gimli-sub008/internal/model"
)

func testDispatcher() *Dispatcher {
	d := NewDispatcher(nil)
	d.register("echo", auth.RoleReader, Schema{
		"value": {Type: TypeString, Required: true},
	}, func(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
		return map[string]any{"value": params["value"]}, nil
	})
	d.register("admin.only", auth.RoleAdmin, Schema{},
		func(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
			return "ok", nil
		})
	d.register("boom", auth.RoleReader, Schema{},
		func(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
			panic("handler exploded: secret internals")
		})
	d.register("fails", auth.RoleReader, Schema{},
		func(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
			return nil, &model.ErrorDetail{Code: model.ErrCodeNotFound, Message: "nothing here"}
		})
	return d
}

func reader() Caller { return Caller{ClientID: "c1", Role: auth.RoleReader} }

func TestDispatchSuccess(t *testing.T) {
	d := testDispatcher()

	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{
		Method: "echo",
		Params: map[string]any{"value": "hi"},
	})

	assert.True(t, resp.OK)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"value": "hi"}, resp.Result)
	assert.False(t, resp.Meta.Timestamp.IsZero())
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := testDispatcher()

	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{Method: "nope"})

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeInvalidRequest, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unknown method")
}

func TestDispatchRoleEnforcement(t *testing.T) {
	d := testDispatcher()

	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{Method: "admin.only"})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeForbidden, resp.Error.Code)

	resp = d.Dispatch(context.Background(), Caller{ClientID: "root", Role: auth.RoleAdmin},
		model.RPCRequest{Method: "admin.only"})
	assert.True(t, resp.OK)
}

func TestDispatchValidationFailure(t *testing.T) {
	d := testDispatcher()

	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{
		Method: "echo",
		Params: map[string]any{"wrong": true},
	})

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, []string{
		"value: required parameter missing",
		"wrong: unknown parameter",
	}, resp.Error.Details)
}

func TestDispatchNilParams(t *testing.T) {
	d := testDispatcher()

	// Nil params must behave as an empty bag, not panic.
	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{Method: "fails"})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeNotFound, resp.Error.Code)
}

func TestDispatchHandlerPanic(t *testing.T) {
	d := testDispatcher()

	resp := d.Dispatch(context.Background(), reader(), model.RPCRequest{Method: "boom"})

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeInternalError, resp.Error.Code)
	// The panic value never leaks to the caller.
	assert.Equal(t, "internal error", resp.Error.Message)
	assert.Nil(t, resp.Result)
}

func TestMethodsSorted(t *testing.T) {
	d := testDispatcher()
	assert.Equal(t, []string{"admin.only", "boom", "echo", "fails"}, d.Methods())
}
