package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-client/internal/interfaces"
	"story-client/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.StoryAPIClient = (*StoryAPIClient)(nil)

// StoryAPIClient is the HTTP implementation of the story REST API wrapper.
// It owns request/response shape translation and error normalization and
// never mutates local state: callers decide how to merge what it returns.
type StoryAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewStoryAPIClient creates a new client for the story API.
func NewStoryAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*StoryAPIClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for story API: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoryAPIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("StoryAPIClient"),
	}, nil
}

// generateRequest - структура тела запроса /stories/generate
type generateRequest struct {
	Credential string `json:"credential"`
	Prompt     string `json:"prompt"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	StoryID string `json:"story_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Generate submits a prompt for asynchronous story generation and returns
// the server-assigned job id.
func (c *StoryAPIClient) Generate(ctx context.Context, credential, prompt string) (interfaces.GenerateResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return interfaces.GenerateResult{}, models.ErrEmptyPrompt
	}

	var resp generateResponse
	err := c.doRequest(ctx, http.MethodPost, "/stories/generate",
		generateRequest{Credential: credential, Prompt: prompt}, credential, &resp)
	if err != nil {
		return interfaces.GenerateResult{}, err
	}
	if !resp.Success || resp.StoryID == "" {
		c.logger.Warn("Generate returned unusable payload", zap.String("message", resp.Message))
		return interfaces.GenerateResult{}, fmt.Errorf("%w: generate response without story id", models.ErrServer)
	}

	status := models.JobStatus(resp.Status)
	if status == "" {
		status = models.StatusPending
	}
	c.logger.Debug("Generation job accepted",
		zap.String("storyID", resp.StoryID), zap.String("status", string(status)))
	return interfaces.GenerateResult{JobID: resp.StoryID, Status: status}, nil
}

type fetchResponse struct {
	Success bool                `json:"success"`
	Story   *models.StoryRecord `json:"story,omitempty"`
	Status  string              `json:"status,omitempty"`
	Message string              `json:"message,omitempty"`
}

// FetchStatus retrieves the current state of a generation job. The returned
// Record is nil unless the server sent the full story payload; callers must
// not assume scenes are present for non-terminal statuses.
func (c *StoryAPIClient) FetchStatus(ctx context.Context, credential, storyID string) (interfaces.FetchResult, error) {
	if storyID == "" {
		return interfaces.FetchResult{}, fmt.Errorf("%w: story id must not be empty", models.ErrInvalidInput)
	}

	var resp fetchResponse
	err := c.doRequest(ctx, http.MethodGet, "/stories/fetch/"+url.PathEscape(storyID), nil, credential, &resp)
	if err != nil {
		return interfaces.FetchResult{}, err
	}

	// Сервер отдает либо полную историю, либо только статус
	if resp.Story != nil {
		status := resp.Story.Status
		if status == "" {
			status = models.StatusCompleted
		}
		resp.Story.Status = status
		return interfaces.FetchResult{Status: status, Record: resp.Story}, nil
	}
	if resp.Status == "" {
		c.logger.Warn("Fetch response without story or status", zap.String("storyID", storyID))
		return interfaces.FetchResult{}, fmt.Errorf("%w: fetch response without status", models.ErrServer)
	}
	return interfaces.FetchResult{Status: models.JobStatus(resp.Status)}, nil
}

type listResponse struct {
	Success    bool                 `json:"success"`
	Stories    []models.StoryRecord `json:"stories"`
	HasMore    bool                 `json:"has_more"`
	TotalCount int                  `json:"total_count"`
}

// ListForUser returns one offset-based page of the user's stories. The
// caller is responsible for accumulating pages while HasMore is true.
func (c *StoryAPIClient) ListForUser(ctx context.Context, credential string, limit, offset int) (interfaces.StoryPage, error) {
	path := fmt.Sprintf("/stories/user/%s?limit=%d&offset=%d", url.PathEscape(credential), limit, offset)

	var resp listResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, credential, &resp); err != nil {
		return interfaces.StoryPage{}, err
	}
	c.logger.Debug("Fetched story list page",
		zap.Int("count", len(resp.Stories)), zap.Int("offset", offset), zap.Bool("hasMore", resp.HasMore))
	return interfaces.StoryPage{
		Records:    resp.Stories,
		HasMore:    resp.HasMore,
		TotalCount: resp.TotalCount,
	}, nil
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DeleteStory removes a story server-side.
func (c *StoryAPIClient) DeleteStory(ctx context.Context, credential, storyID string) error {
	if storyID == "" {
		return fmt.Errorf("%w: story id must not be empty", models.ErrInvalidInput)
	}
	path := fmt.Sprintf("/stories/user/%s/story/%s", url.PathEscape(credential), url.PathEscape(storyID))

	var resp deleteResponse
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, credential, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: delete rejected: %s", models.ErrServer, resp.Message)
	}
	return nil
}

// doRequest is the single low-level helper shared by all API methods:
// serialize the body, attach JSON headers and the bearer credential, execute,
// translate non-2xx statuses into the error taxonomy and decode the response.
func (c *StoryAPIClient) doRequest(ctx context.Context, method, path string, body interface{}, credential string, out interface{}) error {
	requestURL := c.baseURL + path
	log := c.logger.With(zap.String("method", method), zap.String("url", requestURL))

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal request body", zap.Error(err))
			return fmt.Errorf("internal error marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		log.Error("Failed to create HTTP request", zap.Error(err))
		return fmt.Errorf("internal error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Отмену контекста не маскируем под сетевую ошибку
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("HTTP request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("Failed to read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return fmt.Errorf("%w: failed to read response body: %v", models.ErrNetwork, err)
	}

	if err := translateStatus(resp.StatusCode, respBody); err != nil {
		log.Warn("Story API returned error status",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", truncate(respBody, 512)))
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			log.Error("Failed to decode response body", zap.Error(err))
			return fmt.Errorf("%w: malformed response body: %v", models.ErrServer, err)
		}
	}
	return nil
}

// translateStatus maps HTTP statuses onto the sentinel error taxonomy.
func translateStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", models.ErrUnauthorized, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", models.ErrStoryNotFound, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", models.ErrInvalidInput, status, strings.TrimSpace(string(truncate(body, 256))))
	default:
		return fmt.Errorf("%w: status %d", models.ErrServer, status)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// IsRetryable reports whether an API error is transient and worth retrying
// within the poll loop's attempt budget.
func IsRetryable(err error) bool {
	return errors.Is(err, models.ErrNetwork) || errors.Is(err, models.ErrServer)
}
