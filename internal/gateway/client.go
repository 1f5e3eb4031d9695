// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the chat-completion client for personachat.
//
// Requests go to a completion proxy endpoint that holds the upstream
// credential; the client itself carries no API key. Failures map onto a
// small taxonomy the UI can present directly:
//
//   - ConnectivityError: the endpoint never answered
//   - UpstreamError: the endpoint answered with an error status
//   - MalformedResponseError: the endpoint answered 200 with an unusable body
//
// RELIABILITY: One bounded retry on connectivity failures and 5xx answers.
// Client errors (4xx) are never retried - the request will not get better.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/personachat/internal/model"
	"github.com/jeranaias/personachat/internal/storage"
)

const (
	// DefaultTimeout bounds a single completion request end to end.
	DefaultTimeout = 60 * time.Second

	// retryDelay is the pause before the single retry attempt.
	retryDelay = 500 * time.Millisecond

	// maxAttempts is the total attempt budget: the request plus one retry.
	maxAttempts = 2

	// maxResponseSize caps the response body read.
	// SECURITY: Response size limit prevents memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024 // 10MB
)

// chatMessage is one turn on the wire.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse is the success body for the chat completions endpoint.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client sends chat-completion requests through the proxy endpoint and
// assembles per-persona prompts from the conversation store.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	store         *storage.ConversationStore
	modelOverride string
}

// New creates a completion client for the given proxy endpoint.
func New(baseURL string, store *storage.ConversationStore) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		store: store,
	}
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithModelOverride sets the model used when a persona does not configure
// its own. An empty value keeps the built-in default.
func (c *Client) WithModelOverride(m string) *Client {
	c.modelOverride = m
	return c
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Reply runs one conversational turn for a persona. The wire exchange is
// exactly two messages: the persona's system prompt and the new user text.
// The persisted log is display/export state, not request context.
//
// Reply does not touch the log - persisting the turn is the caller's
// decision, so failed turns are never recorded.
func (c *Client) Reply(ctx context.Context, personaID, text string) (string, error) {
	cfg := c.store.PersonaConfig(personaID)

	messages := []chatMessage{
		{Role: model.RoleSystem, Content: cfg.SystemPrompt},
		{Role: model.RoleUser, Content: text},
	}

	m := cfg.Model
	if m == "" {
		m = c.modelOverride
	}
	if m == "" {
		m = model.DefaultModel
	}
	return c.Complete(ctx, m, messages)
}

// Complete sends one chat-completion request, retrying once on
// connectivity failures and 5xx answers.
func (c *Client) Complete(ctx context.Context, modelID string, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: modelID, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &ConnectivityError{Err: ctx.Err()}
			case <-time.After(retryDelay):
			}
			log.Printf("gateway: retrying completion request after: %v", lastErr)
		}

		reply, err := c.doRequest(ctx, body)
		if err == nil {
			return reply, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// doRequest performs a single completion request against the endpoint.
func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "personachat/0.1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()
	log.Printf("gateway: POST /chat/completions -> %d (%v)", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	respBody, err := readResponse(resp)

	// A status arrived, so the status classifies the failure even when the
	// body could not be read.
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			Status:  resp.StatusCode,
			Message: parseErrorMessage(respBody),
		}
	}
	if err != nil {
		return "", &MalformedResponseError{Reason: err.Error()}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &MalformedResponseError{Reason: "body is not valid JSON"}
	}
	if len(chatResp.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices in response"}
	}
	content := chatResp.Choices[0].Message.Content
	if content == "" {
		return "", &MalformedResponseError{Reason: "empty completion content"}
	}
	return content, nil
}

// readResponse reads the body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == maxResponseSize {
		return nil, fmt.Errorf("response exceeded %d bytes", maxResponseSize)
	}
	return body, nil
}

// parseErrorMessage extracts the endpoint's error text from an error body.
// Both shapes in the wild are accepted: {"error":"text"} and
// {"error":{"message":"text"}}. An unparseable body yields "".
func parseErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(envelope.Error, &plain); err == nil {
		return plain
	}
	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &structured); err == nil {
		return structured.Message
	}
	return ""
}

// isRetryable reports whether one more attempt is worth making: transport
// failures and server-side errors only.
func isRetryable(err error) bool {
	switch e := err.(type) {
	case *ConnectivityError:
		// Context cancellation is the caller's decision, not a transient fault.
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	case *UpstreamError:
		return e.Status >= 500 && e.Status < 600
	default:
		return false
	}
}
