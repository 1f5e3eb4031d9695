// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func TestPresetConfig_KnownIDs(t *testing.T) {
	for _, id := range KnownPersonaIDs() {
		cfg := PresetConfig(id)
		if cfg.ID != id {
			t.Errorf("PresetConfig(%q).ID = %q, want %q", id, cfg.ID, id)
		}
		if cfg.DisplayName == "" {
			t.Errorf("PresetConfig(%q) has empty DisplayName", id)
		}
		if cfg.SystemPrompt == "" {
			t.Errorf("PresetConfig(%q) has empty SystemPrompt", id)
		}
		if cfg.Tone < 1 || cfg.Tone > 10 {
			t.Errorf("PresetConfig(%q).Tone = %d, want 1-10", id, cfg.Tone)
		}
		if cfg.Model == "" {
			t.Errorf("PresetConfig(%q) has empty Model", id)
		}
	}
}

func TestPresetConfig_UnknownIDFallback(t *testing.T) {
	cfg := PresetConfig("pirate")

	if cfg.ID != "pirate" {
		t.Errorf("ID = %q, want %q", cfg.ID, "pirate")
	}
	if cfg.DisplayName != "Pirate" {
		t.Errorf("DisplayName = %q, want capitalized id", cfg.DisplayName)
	}
	if cfg.SystemPrompt != PresetConfig(DefaultPersonaID).SystemPrompt {
		t.Error("unknown persona should fall back to the default persona's prompt")
	}
	if cfg.Tone != defaultTone {
		t.Errorf("Tone = %d, want %d", cfg.Tone, defaultTone)
	}
}

func TestPresetConfig_UnknownIDLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	PresetConfig("pirate")
	if !strings.Contains(buf.String(), "pirate") {
		t.Error("resolving an unknown persona id should log a warning naming it")
	}

	buf.Reset()
	PresetConfig(PersonaCode)
	if buf.Len() != 0 {
		t.Errorf("known persona ids should resolve silently, logged: %s", buf.String())
	}
}

func TestIsKnownPersona(t *testing.T) {
	if !IsKnownPersona(PersonaCode) {
		t.Error("code should be a known persona")
	}
	if IsKnownPersona("pirate") {
		t.Error("pirate should not be a known persona")
	}
}

func TestNewMessages(t *testing.T) {
	before := time.Now()
	u := NewUserMessage("hello")
	a := NewAssistantMessage("hi")

	if u.Role != RoleUser || a.Role != RoleAssistant {
		t.Errorf("roles = %q/%q, want user/assistant", u.Role, a.Role)
	}
	if !strings.HasPrefix(u.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", u.ID)
	}
	if u.ID == a.ID {
		t.Error("message IDs should be unique")
	}
	if u.Timestamp.Before(before) {
		t.Error("timestamp should be stamped with the current time")
	}
}

func TestAdminSession_TokenExpired(t *testing.T) {
	tests := []struct {
		name    string
		session AdminSession
		want    bool
	}{
		{"no token", AdminSession{}, true},
		{"no expiry", AdminSession{Token: "tok"}, true},
		{"past expiry", AdminSession{Token: "tok", TokenExpiry: time.Now().Add(-time.Hour)}, true},
		{"future expiry", AdminSession{Token: "tok", TokenExpiry: time.Now().Add(time.Hour)}, false},
	}

	for _, tc := range tests {
		if got := tc.session.TokenExpired(); got != tc.want {
			t.Errorf("%s: TokenExpired() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
