// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import "fmt"

// ValidationError indicates the caller supplied unusable input, such as an
// empty passcode. Nothing was sent to the endpoint.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// AuthExpiredError indicates a protected call was answered with 401, or the
// stored token was already expired before the call. By the time this error
// is returned the local token has been cleared: the user must log in again.
type AuthExpiredError struct {
	Reason string
}

// Error implements the error interface.
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("admin session expired: %s", e.Reason)
}

// PermissionError indicates a protected call was answered with 403: the
// token is valid but does not grant this operation. The token is kept.
type PermissionError struct {
	Operation string
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions for %s", e.Operation)
}
