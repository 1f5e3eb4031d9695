// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// AdminSession is the combined view of the two admin-state lifetimes:
// Authenticated lives only for the current process (local UI gating),
// while Token/TokenExpiry are persisted across runs.
//
// The two can disagree - a stale Authenticated flag never by itself grants
// access to protected operations. Token expiry is authoritative for remote
// calls; the flag is authoritative only for local gating.
type AdminSession struct {
	Authenticated bool
	Token         string
	TokenExpiry   time.Time
}

// TokenExpired reports whether the session's token must be treated as
// expired: true when no token is held, no expiry was recorded, or the
// expiry is not in the future.
func (s AdminSession) TokenExpired() bool {
	if s.Token == "" || s.TokenExpiry.IsZero() {
		return true
	}
	return !s.TokenExpiry.After(time.Now())
}
