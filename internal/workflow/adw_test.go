package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriskellerman/gimli-sub008/internal/retry"
	"github.com/boriskellerman/gimli-sub008/internal/workflow"
)

func TestTriggerSuccess(t *testing.T) {
	var gotAuth, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deploy", body["workflow_id"])

		_ = json.NewEncoder(w).Encode(workflow.TriggerResult{Success: true, RunID: "remote-9"})
	}))
	defer ts.Close()

	c := workflow.NewADWClient(ts.URL, "tok-1", time.Second)
	result, err := c.Trigger(context.Background(), "deploy", map[string]any{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, "remote-9", result.RunID)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/v1/workflows/trigger", gotPath)
}

func TestTriggerRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(workflow.TriggerResult{Success: false})
	}))
	defer ts.Close()

	c := workflow.NewADWClient(ts.URL, "", time.Second)
	_, err := c.Trigger(context.Background(), "deploy", nil)
	require.Error(t, err)

	var oe *retry.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "TRIGGER_REJECTED", oe.Code)
}

func TestHTTPErrorNormalized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := workflow.NewADWClient(ts.URL, "", time.Second)
	_, err := c.Trigger(context.Background(), "deploy", nil)
	require.Error(t, err)

	var oe *retry.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "ADW_HTTP_ERROR", oe.Code)
	assert.Equal(t, http.StatusServiceUnavailable, oe.Status)
	assert.Contains(t, oe.Message, "backend down")

	// Classifiable by numeric status.
	assert.True(t, retry.Classify(err, []string{"503"}, nil))
}

func TestTransportErrorNormalized(t *testing.T) {
	// A closed server guarantees a connection failure.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := workflow.NewADWClient(ts.URL, "", time.Second)
	_, err := c.Trigger(context.Background(), "deploy", nil)
	require.Error(t, err)

	var oe *retry.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "ADW_UNREACHABLE", oe.Code)
	assert.Equal(t, "ConnectionError", oe.Name)
}

func TestStatusAndCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/runs/remote-9":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "running"})
		case "/v1/runs/remote-9/cancel":
			assert.Equal(t, http.MethodPost, r.Method)
			_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := workflow.NewADWClient(ts.URL, "", time.Second)

	status, err := c.Status(context.Background(), "remote-9")
	require.NoError(t, err)
	assert.Equal(t, "running", status)

	cancelled, err := c.Cancel(context.Background(), "remote-9")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestListAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workflows", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"workflows": []workflow.Info{
			{ID: "deploy", Name: "Deploy", Type: "pipeline", Enabled: true},
		}})
	}))
	defer ts.Close()

	c := workflow.NewADWClient(ts.URL, "", time.Second)
	infos, err := c.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "deploy", infos[0].ID)
}
