// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "fmt"

// ConnectivityError indicates the proxy endpoint could not be reached at
// all: DNS failure, refused connection, or a timeout before any HTTP
// status arrived.
type ConnectivityError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("completion endpoint unreachable: %v", e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// UpstreamError indicates the endpoint answered with a non-success HTTP
// status. Message carries the endpoint's own error text when the body
// could be parsed, otherwise a generic description.
type UpstreamError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("completion endpoint error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("completion endpoint error (HTTP %d)", e.Status)
}

// MalformedResponseError indicates the endpoint answered 200 but the body
// did not contain a usable completion.
type MalformedResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed completion response: %s", e.Reason)
}
