// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/personachat/internal/model"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.DefaultPersona != model.DefaultPersonaID {
		t.Errorf("DefaultPersona = %q, want %q", cfg.DefaultPersona, model.DefaultPersonaID)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_persona = "code"

[endpoints]
completion_url = "https://proxy.example.com/v1"

[chat]
request_timeout_secs = 30

[ui]
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.DefaultPersona != "code" {
		t.Errorf("DefaultPersona = %q, want code", cfg.DefaultPersona)
	}
	if cfg.Endpoints.CompletionURL != "https://proxy.example.com/v1" {
		t.Errorf("CompletionURL = %q", cfg.Endpoints.CompletionURL)
	}
	if cfg.Chat.RequestTimeoutSecs != 30 {
		t.Errorf("RequestTimeoutSecs = %d, want 30", cfg.Chat.RequestTimeoutSecs)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
	// Unset fields keep their defaults
	if cfg.Endpoints.AuthURL != Default().Endpoints.AuthURL {
		t.Error("unset auth_url should keep the default")
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"chat": {"request_timeout_secs": 10}, "ui": {"theme": "auto"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Chat.RequestTimeoutSecs != 10 {
		t.Errorf("RequestTimeoutSecs = %d, want 10", cfg.Chat.RequestTimeoutSecs)
	}
	if cfg.UI.Theme != "auto" {
		t.Errorf("Theme = %q, want auto", cfg.UI.Theme)
	}
}

func TestLoadFromPath_FixesInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`default_persona = "study"`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %o, want 0600 after load", info.Mode().Perm())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PERSONACHAT_COMPLETION_URL", "https://override.example.com/v1")
	t.Setenv("PERSONACHAT_PERSONA", "study")
	t.Setenv("PERSONACHAT_TIMEOUT_SECS", "15")
	t.Setenv("PERSONACHAT_EPHEMERAL", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Endpoints.CompletionURL != "https://override.example.com/v1" {
		t.Errorf("CompletionURL = %q", cfg.Endpoints.CompletionURL)
	}
	if cfg.DefaultPersona != "study" {
		t.Errorf("DefaultPersona = %q, want study", cfg.DefaultPersona)
	}
	if cfg.Chat.RequestTimeoutSecs != 15 {
		t.Errorf("RequestTimeoutSecs = %d, want 15", cfg.Chat.RequestTimeoutSecs)
	}
	if !cfg.Storage.Ephemeral {
		t.Error("Ephemeral should be true")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad completion url", func(c *Config) { c.Endpoints.CompletionURL = "not a url" }, "endpoints.completion_url"},
		{"timeout too small", func(c *Config) { c.Chat.RequestTimeoutSecs = 0 }, "chat.request_timeout_secs"},
		{"timeout too large", func(c *Config) { c.Chat.RequestTimeoutSecs = 3600 }, "chat.request_timeout_secs"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q should name field %s", err, tc.field)
			}
		})
	}
}

func TestGetSet_DotNotation(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("ui.theme", "light"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := cfg.Get("ui.theme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "light" {
		t.Errorf("ui.theme = %v, want light", got)
	}

	// String values convert to the field's type
	if err := cfg.Set("chat.request_timeout_secs", "25"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Chat.RequestTimeoutSecs != 25 {
		t.Errorf("RequestTimeoutSecs = %d, want 25", cfg.Chat.RequestTimeoutSecs)
	}

	if _, err := cfg.Get("no.such.key"); err == nil {
		t.Error("Get of unknown key should fail")
	}
	if err := cfg.Set("chat.nonsense", "x"); err == nil {
		t.Error("Set of unknown key should fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	base := Default()
	edited := base.Clone()
	edited.UI.Theme = "light"

	if base.UI.Theme == "light" {
		t.Error("editing a clone must not change the original")
	}
}

func TestSetGlobal(t *testing.T) {
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)
	Global() // burn the initial lazy load

	edited := Default()
	edited.UI.Theme = "light"
	SetGlobal(edited)

	if Global().UI.Theme != "light" {
		t.Error("SetGlobal should replace the instance Global returns")
	}
}

func TestGetAllKeys_Resolvable(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) failed: %v", key, err)
		}
	}
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.DefaultPersona = "code"
	cfg.Chat.Model = "custom/model"

	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.DefaultPersona != "code" || loaded.Chat.Model != "custom/model" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
