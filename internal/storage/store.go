// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jeranaias/personachat/internal/kvstore"
	"github.com/jeranaias/personachat/internal/model"
)

// Namespace blobs in the substrate. Each is one whole JSON document.
const (
	nsConversations  = "conversations"   // map[personaID][]model.Message
	nsPersonas       = "personas"        // map[personaID]model.PersonaConfig
	nsCurrentPersona = "current_persona" // quoted persona id string
	nsAdminToken     = "admin_token"     // adminTokenBlob
)

// adminTokenBlob is the persisted shape of the admin bearer token.
type adminTokenBlob struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// ConversationStore is the single owner of persistent conversation state.
// All operations absorb substrate failures: writes report success as a bool,
// reads fall back to built-in defaults. See the package doc for the policy.
type ConversationStore struct {
	kv kvstore.Store

	// adminAuthenticated lives only for this process. It gates local UI
	// surfaces; the persisted token is authoritative for remote calls.
	adminAuthenticated bool
}

// New creates a ConversationStore over the given substrate.
func New(kv kvstore.Store) *ConversationStore {
	return &ConversationStore{kv: kv}
}

// =============================================================================
// CONVERSATION LOGS
// =============================================================================

// Log returns the conversation log for a persona, oldest first.
// A missing or corrupt blob reads as an empty log.
func (s *ConversationStore) Log(personaID string) []model.Message {
	logs := s.readConversations()
	msgs := logs[personaID]
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

// AppendMessage appends one message to a persona's log. A zero ID or
// timestamp is filled in before persisting. Returns false if the write
// did not reach the substrate.
func (s *ConversationStore) AppendMessage(personaID string, msg model.Message) bool {
	if msg.ID == "" {
		msg.ID = model.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	logs := s.readConversations()
	logs[personaID] = append(logs[personaID], msg)
	return s.writeJSON(nsConversations, logs)
}

// ClearLog removes one persona's log, leaving all other personas untouched.
func (s *ConversationStore) ClearLog(personaID string) bool {
	logs := s.readConversations()
	if _, ok := logs[personaID]; !ok {
		return true
	}
	delete(logs, personaID)
	return s.writeJSON(nsConversations, logs)
}

// ClearAllLogs removes every persona's log. Persona configs and the admin
// token are not affected.
func (s *ConversationStore) ClearAllLogs() bool {
	if err := s.kv.Delete(nsConversations); err != nil {
		log.Printf("storage: failed to clear conversation logs: %v", err)
		return false
	}
	return true
}

// readConversations loads the full conversations blob, treating absence and
// corruption alike as an empty map.
func (s *ConversationStore) readConversations() map[string][]model.Message {
	logs := make(map[string][]model.Message)
	s.readJSON(nsConversations, &logs)
	if logs == nil {
		logs = make(map[string][]model.Message)
	}
	return logs
}

// =============================================================================
// PERSONA CONFIGURATION
// =============================================================================

// PersonaConfig returns the effective config for a persona: the stored
// config when one exists, otherwise the built-in preset (or the generic
// fallback for unknown ids). This never fails.
func (s *ConversationStore) PersonaConfig(personaID string) model.PersonaConfig {
	stored := s.readPersonas()
	if cfg, ok := stored[personaID]; ok {
		return cfg
	}
	return model.PresetConfig(personaID)
}

// SavePersonaConfig overwrites the stored config for a persona wholesale.
func (s *ConversationStore) SavePersonaConfig(personaID string, cfg model.PersonaConfig) bool {
	cfg.ID = personaID
	stored := s.readPersonas()
	stored[personaID] = cfg
	return s.writeJSON(nsPersonas, stored)
}

// readPersonas loads the stored persona configs, empty on absence or corruption.
func (s *ConversationStore) readPersonas() map[string]model.PersonaConfig {
	stored := make(map[string]model.PersonaConfig)
	s.readJSON(nsPersonas, &stored)
	if stored == nil {
		stored = make(map[string]model.PersonaConfig)
	}
	return stored
}

// =============================================================================
// CURRENT PERSONA
// =============================================================================

// CurrentPersonaID returns the last-selected persona id, or the default
// when none has been stored.
func (s *ConversationStore) CurrentPersonaID() string {
	var id string
	if !s.readJSON(nsCurrentPersona, &id) || id == "" {
		return model.DefaultPersonaID
	}
	return id
}

// SetCurrentPersonaID records the persona id to restore on the next run.
func (s *ConversationStore) SetCurrentPersonaID(personaID string) bool {
	return s.writeJSON(nsCurrentPersona, personaID)
}

// =============================================================================
// ADMIN TOKEN
// =============================================================================

// AdminToken returns the stored admin bearer token and its expiry.
// Both are zero when no token is stored or the blob is unreadable.
func (s *ConversationStore) AdminToken() (string, time.Time) {
	var blob adminTokenBlob
	if !s.readJSON(nsAdminToken, &blob) {
		return "", time.Time{}
	}
	return blob.Token, blob.Expiry
}

// SetAdminToken persists the admin bearer token with its expiry.
func (s *ConversationStore) SetAdminToken(token string, expiry time.Time) bool {
	return s.writeJSON(nsAdminToken, adminTokenBlob{Token: token, Expiry: expiry})
}

// ClearAdminToken discards the stored admin token.
func (s *ConversationStore) ClearAdminToken() bool {
	if err := s.kv.Delete(nsAdminToken); err != nil {
		log.Printf("storage: failed to clear admin token: %v", err)
		return false
	}
	return true
}

// IsAdminTokenExpired reports whether the stored token must be treated as
// expired: no token, no expiry recorded, or expiry not in the future.
func (s *ConversationStore) IsAdminTokenExpired() bool {
	token, expiry := s.AdminToken()
	return model.AdminSession{Token: token, TokenExpiry: expiry}.TokenExpired()
}

// SetAdminAuthenticated records the process-scoped authenticated flag.
// It is never persisted; a new process always starts unauthenticated.
func (s *ConversationStore) SetAdminAuthenticated(authenticated bool) {
	s.adminAuthenticated = authenticated
}

// AdminSession returns the combined admin state: the ephemeral flag plus
// the persisted token and expiry.
func (s *ConversationStore) AdminSession() model.AdminSession {
	token, expiry := s.AdminToken()
	return model.AdminSession{
		Authenticated: s.adminAuthenticated,
		Token:         token,
		TokenExpiry:   expiry,
	}
}

// =============================================================================
// WIPE
// =============================================================================

// ClearEverything removes all state: logs, persona configs, the current
// persona selection, the admin token, and the process-scoped flag.
func (s *ConversationStore) ClearEverything() bool {
	s.adminAuthenticated = false
	if err := s.kv.Clear(); err != nil {
		log.Printf("storage: failed to clear all state: %v", err)
		return false
	}
	return true
}

// =============================================================================
// SUBSTRATE BOUNDARY
// =============================================================================

// readJSON unmarshals a namespace blob into v. Returns false on absence,
// I/O failure, or corrupt JSON; failures (not absence) are logged. On a
// false return v is left untouched, so callers keep their defaults.
func (s *ConversationStore) readJSON(namespace string, v any) bool {
	data, err := s.kv.Read(namespace)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Printf("storage: failed to read namespace %s: %v", namespace, err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("storage: corrupt blob in namespace %s, treating as empty: %v", namespace, err)
		return false
	}
	return true
}

// writeJSON marshals v and replaces the namespace blob. Failures are logged
// and reported as false.
func (s *ConversationStore) writeJSON(namespace string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("storage: failed to encode namespace %s: %v", namespace, err)
		return false
	}
	if err := s.kv.Write(namespace, data); err != nil {
		log.Printf("storage: failed to write namespace %s: %v", namespace, err)
		return false
	}
	return true
}
