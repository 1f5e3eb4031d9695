// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/personachat/internal/model"
)

// Snapshot is the export/import aggregate: every persona's log and
// effective config, stamped with the export time. The admin token and
// current-persona selection are deliberately excluded - a snapshot moved
// between machines must never carry credentials.
type Snapshot struct {
	Conversations map[string][]model.Message     `json:"conversations"`
	Personas      map[string]model.PersonaConfig `json:"personas"`
	ExportDate    time.Time                      `json:"exportDate"`
}

// ValidationError reports a snapshot that could not be imported. The store
// guarantees no partial write: state is unchanged when this is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot: %s", e.Reason)
}

// ExportSnapshot collects the current state into a Snapshot. Every known
// persona appears with its effective config even if it was never customized,
// so a restore onto an older build keeps behaving the same way.
func (s *ConversationStore) ExportSnapshot() Snapshot {
	snap := Snapshot{
		Conversations: s.readConversations(),
		Personas:      s.readPersonas(),
		ExportDate:    time.Now(),
	}
	for _, id := range model.KnownPersonaIDs() {
		if _, ok := snap.Personas[id]; !ok {
			snap.Personas[id] = model.PresetConfig(id)
		}
	}
	return snap
}

// ImportSnapshot merges a previously exported snapshot into the store.
// Personas present in the snapshot overwrite the stored entry for that key;
// personas absent from the snapshot are preserved. A malformed snapshot
// returns a *ValidationError and leaves all state untouched.
func (s *ConversationStore) ImportSnapshot(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if snap.Conversations == nil && snap.Personas == nil {
		return &ValidationError{Reason: "no conversations or personas present"}
	}
	for id, msgs := range snap.Conversations {
		if id == "" {
			return &ValidationError{Reason: "conversation entry with empty persona id"}
		}
		for _, m := range msgs {
			if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
				return &ValidationError{Reason: fmt.Sprintf("persona %s: message with role %q", id, m.Role)}
			}
		}
	}

	// Validation passed: build both merged blobs in memory, then write.
	logs := s.readConversations()
	for id, msgs := range snap.Conversations {
		logs[id] = msgs
	}
	personas := s.readPersonas()
	for id, cfg := range snap.Personas {
		cfg.ID = id
		personas[id] = cfg
	}

	if !s.writeJSON(nsConversations, logs) || !s.writeJSON(nsPersonas, personas) {
		return fmt.Errorf("failed to persist imported snapshot")
	}
	return nil
}
