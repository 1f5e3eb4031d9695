// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the admin login flow for personachat.
//
// Login exchanges a passcode for a bearer token at the remote auth
// endpoint; the token and its expiry are persisted through the
// ConversationStore, while the authenticated flag lives only for this
// process. Protected calls go through Do, which attaches the token and
// enforces the status contract:
//
//   - 401 clears the local token and returns AuthExpiredError
//   - 403 keeps the token and returns PermissionError
//
// Transport-level failures reuse the gateway error taxonomy so the UI
// handles one set of error kinds for every remote call.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/personachat/internal/gateway"
	"github.com/jeranaias/personachat/internal/storage"
)

// DefaultTimeout bounds a single auth request.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps the response body read.
const maxResponseSize = 1 * 1024 * 1024 // 1MB

// loginRequest is the request body for the login endpoint.
type loginRequest struct {
	Code string `json:"code"`
}

// loginResponse is the success body for the login endpoint.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client performs admin login and authenticated calls against the auth
// endpoint. Token state is owned by the ConversationStore; the client
// never caches it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *storage.ConversationStore
}

// New creates an auth client for the given endpoint.
func New(baseURL string, store *storage.ConversationStore) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		store:      store,
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Login exchanges a passcode for a bearer token. On success the token and
// expiry are persisted and the process-scoped authenticated flag is set.
// An empty passcode never reaches the network.
func (c *Client) Login(ctx context.Context, passcode string) error {
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return &ValidationError{Reason: "passcode must not be empty"}
	}

	body, err := json.Marshal(loginRequest{Code: passcode})
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/login", bytes.NewReader(body))
	if err != nil {
		return &gateway.ConnectivityError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &gateway.ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &gateway.MalformedResponseError{Reason: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		// SECURITY: Never echo the passcode in errors or logs.
		log.Printf("auth: login rejected with status %d", resp.StatusCode)
		return &gateway.UpstreamError{Status: resp.StatusCode, Message: "login rejected"}
	}

	var login loginResponse
	if err := json.Unmarshal(respBody, &login); err != nil {
		return &gateway.MalformedResponseError{Reason: "login body is not valid JSON"}
	}
	if login.Token == "" {
		return &gateway.MalformedResponseError{Reason: "login body carries no token"}
	}

	c.store.SetAdminToken(login.Token, login.ExpiresAt)
	c.store.SetAdminAuthenticated(true)
	return nil
}

// Logout discards the local token and drops the authenticated flag. No
// request is made: bearer tokens are not server-revocable here.
func (c *Client) Logout() {
	c.store.ClearAdminToken()
	c.store.SetAdminAuthenticated(false)
}

// Do performs a protected request with the stored bearer token attached.
// The token's local expiry is checked first; an expired or missing token
// short-circuits without a network call.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.store.IsAdminTokenExpired() {
		c.store.ClearAdminToken()
		return nil, &AuthExpiredError{Reason: "no valid token held"}
	}
	token, _ := c.store.AdminToken()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &gateway.ConnectivityError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &gateway.ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &gateway.MalformedResponseError{Reason: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Token invalid or expired server-side: clear it before surfacing.
		c.store.ClearAdminToken()
		c.store.SetAdminAuthenticated(false)
		return nil, &AuthExpiredError{Reason: "endpoint rejected the token"}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &PermissionError{Operation: method + " " + path}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &gateway.UpstreamError{Status: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}
