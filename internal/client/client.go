// Package client is an HTTP client for the evaluation service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/medeval/internal/domain"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// Client calls the v1 API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. timeout bounds each request and should exceed the
// server's model timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartSession creates or resumes the session for subjectID.
func (c *Client) StartSession(ctx context.Context, subjectID string) (*domain.StartSessionResponse, error) {
	var resp domain.StartSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", domain.StartSessionRequest{SubjectID: subjectID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenSession returns the caller's open session for subjectID, or nil.
func (c *Client) OpenSession(ctx context.Context, subjectID string) (*string, error) {
	var resp domain.OpenSessionResponse
	path := "/v1/sessions/open?subject_id=" + url.QueryEscape(subjectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.SessionID, nil
}

// Transcript returns the ordered messages of a session.
func (c *Client) Transcript(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var resp domain.TranscriptResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SubmitTurn sends one message and returns the assistant reply.
func (c *Client) SubmitTurn(ctx context.Context, sessionID, message string) (string, error) {
	var resp domain.TurnResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/turns", domain.TurnRequest{Message: message}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// RetryTurn re-asks the unanswered last message.
func (c *Client) RetryTurn(ctx context.Context, sessionID string) (string, error) {
	var resp domain.TurnResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/turns/retry", nil, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Finalize closes the session and returns its summary.
func (c *Client) Finalize(ctx context.Context, sessionID string) (*domain.FinalizeResponse, error) {
	var resp domain.FinalizeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/finalize", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp domain.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
