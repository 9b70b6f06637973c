// Package engine provides an HTTP client for the external automation engine
// that runs compiled workflow graphs.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "pitchwire/1.0"
)

// TriggerError describes a failed engine call. Retryable reports whether the
// caller may retry the request: server errors and transport failures are
// retryable, client errors indicate a configuration problem and are not.
type TriggerError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *TriggerError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("engine trigger failed with HTTP %d: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("engine trigger failed: %s", e.Message)
}

// TriggerResult carries the engine's acknowledgement of a trigger request.
type TriggerResult struct {
	StatusCode  int
	ExecutionID string
	Body        map[string]any
}

// EngineExecution is the engine's view of one workflow run, as returned by
// its executions listing API. The poller reconciles these against local
// execution records.
type EngineExecution struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflowId"`
	StartedAt    time.Time  `json:"startedAt"`
	StoppedAt    *time.Time `json:"stoppedAt,omitempty"`
	Finished     bool       `json:"finished"`
	Status       string     `json:"status"`
	LastNode     string     `json:"lastNode,omitempty"`
	ErrorNode    string     `json:"errorNode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type executionsResponse struct {
	Data []EngineExecution `json:"data"`
}

// Client talks to the automation engine over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an engine client. baseURL is only required for
// ListExecutions; Trigger takes a full webhook URL per call.
func NewClient(logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.With("module", "engine"),
	}
}

// Trigger POSTs payload to the workflow's webhook URL and returns the
// engine's acknowledgement. traceID is propagated as a correlation header so
// the engine's callbacks can be stitched back to the originating request.
func (c *Client) Trigger(ctx context.Context, webhookURL, traceID string, payload map[string]any) (*TriggerResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Trace-Id", traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TriggerError{Message: err.Error(), Retryable: true}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TriggerError{Code: resp.StatusCode, Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		return nil, &TriggerError{
			Code:      resp.StatusCode,
			Message:   truncate(string(respBody), 512),
			Retryable: resp.StatusCode >= 500,
		}
	}

	result := &TriggerResult{StatusCode: resp.StatusCode}

	if len(respBody) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			result.Body = decoded

			// Some engines answer 200 with an in-body failure flag.
			if success, ok := decoded["success"].(bool); ok && !success {
				return nil, &TriggerError{
					Code:    resp.StatusCode,
					Message: truncate(string(respBody), 512),
				}
			}

			if id, ok := decoded["executionId"].(string); ok {
				result.ExecutionID = id
			}
		}
	}

	c.logger.DebugContext(ctx, "Engine trigger accepted",
		"url", webhookURL,
		"status_code", resp.StatusCode,
		"execution_id", result.ExecutionID)

	return result, nil
}

// ListExecutions fetches the engine's most recent executions for a workflow,
// newest first.
func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]EngineExecution, error) {
	if c.baseURL == "" {
		return nil, errors.New("engine base URL not configured")
	}

	endpoint := fmt.Sprintf("%s/api/v1/executions?workflowId=%s&limit=%d",
		c.baseURL, url.QueryEscape(workflowID), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create executions request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executions request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read executions response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &TriggerError{
			Code:      resp.StatusCode,
			Message:   truncate(string(respBody), 512),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var parsed executionsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Some engine versions return a bare array instead of a data envelope.
		var bare []EngineExecution
		if err2 := json.Unmarshal(respBody, &bare); err2 != nil {
			return nil, fmt.Errorf("failed to decode executions response: %w", err)
		}

		return bare, nil
	}

	return parsed.Data, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit]
}
