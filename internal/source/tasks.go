package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"timesaver/internal/config"
	"timesaver/internal/types"
)

// TaskFetcher is the part of the task service the refresh pipeline depends on.
type TaskFetcher interface {
	FetchTasks(ctx context.Context) ([]types.TaskRecord, error)
}

// TaskClient fetches task executions from the external task service over its
// v2 HTTP API.
type TaskClient struct {
	http    *resilientClient
	baseURL string
	token   types.SecretString
}

// NewTaskClient creates a TaskClient from the source configuration.
func NewTaskClient(cfg config.SourceConfig) *TaskClient {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &TaskClient{
		http:    newResilientClient(httpClient, DefaultRetryPolicy(), cfg.UserAgent),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

// taskListResponse mirrors the task service's list payload. The error field
// lets us tell an upstream-reported failure apart from a genuinely empty list.
type taskListResponse struct {
	Tasks *[]types.TaskRecord `json:"tasks"`
	Error *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchTasks retrieves every task execution the service currently knows
// about. An empty list is a valid result; a payload carrying an error, or
// one missing the tasks key entirely, is not.
func (c *TaskClient) FetchTasks(ctx context.Context) ([]types.TaskRecord, error) {
	url := c.baseURL + "/v2/tasks"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build task list request", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.token.Unmask(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamTaskSource,
			fmt.Sprintf("task source returned status %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamTaskSource, "failed to read task list response", err)
	}

	var payload taskListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "task list response is not valid JSON", err)
	}

	if payload.Error != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamTaskSource,
			fmt.Sprintf("task source reported an error: %s", payload.Error.Message),
			nil,
		)
	}

	if payload.Tasks == nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMalformed,
			"task list response is missing the tasks field",
			nil,
		)
	}

	return *payload.Tasks, nil
}
