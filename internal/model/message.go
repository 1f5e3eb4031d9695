// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the shared data types for personachat: chat
// messages, persona configuration, and the admin session state.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. The store only ever persists user and assistant turns;
// the system prompt is injected per-request by the gateway and never logged.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a persona's conversation log.
// Messages are immutable once created: they are appended to the log and
// only ever removed by a bulk clear.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(text string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(text string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewMessageID creates a unique message ID.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}
