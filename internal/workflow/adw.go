package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/boriskellerman/gimli-sub008/internal/retry"
)

// ADWClient is the HTTP implementation of Connector against an ADW service.
//
// Failures are normalized to *retry.OpError at this boundary so the retry
// engine classifies one closed error shape instead of inspecting transport
// errors ad hoc.
type ADWClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewADWClient creates a client for the ADW service at baseURL.
// token, when non-empty, is sent as a bearer credential.
func NewADWClient(baseURL, token string, timeout time.Duration) *ADWClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ADWClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Trigger implements Connector.
func (c *ADWClient) Trigger(ctx context.Context, workflowID string, params map[string]any) (TriggerResult, error) {
	var result TriggerResult
	body := map[string]any{"workflow_id": workflowID, "params": params}
	if err := c.do(ctx, http.MethodPost, "/v1/workflows/trigger", body, &result); err != nil {
		return TriggerResult{}, err
	}
	if !result.Success {
		return result, &retry.OpError{
			Code:    "TRIGGER_REJECTED",
			Name:    "TriggerError",
			Message: fmt.Sprintf("workflow %s rejected by ADW service", workflowID),
		}
	}
	return result, nil
}

// Status implements Connector.
func (c *ADWClient) Status(ctx context.Context, runID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := "/v1/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// ListAvailable implements Connector.
func (c *ADWClient) ListAvailable(ctx context.Context) ([]Info, error) {
	var resp struct {
		Workflows []Info `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/workflows", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// Cancel implements Connector.
func (c *ADWClient) Cancel(ctx context.Context, runID string) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	path := "/v1/runs/" + url.PathEscape(runID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

func (c *ADWClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("workflow: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("workflow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport-level failure: no status to report; the message carries
		// enough for substring classification (timeouts, refused connections).
		return &retry.OpError{
			Code:    "ADW_UNREACHABLE",
			Name:    "ConnectionError",
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.OpError{
			Code:    "ADW_HTTP_ERROR",
			Status:  resp.StatusCode,
			Name:    http.StatusText(resp.StatusCode),
			Message: fmt.Sprintf("adw service returned %d: %s", resp.StatusCode, snippet),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("workflow: decode response: %w", err)
		}
	}
	return nil
}
