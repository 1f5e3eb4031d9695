// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"log"

	"github.com/jeranaias/personachat/internal/util"
)

// =============================================================================
// PERSONA CONFIGURATION
// =============================================================================

// PersonaConfig bundles everything that selects the assistant's behavior
// for one persona: display identity, the system prompt sent with every
// completion request, and the model the request is routed to.
//
// Configs are overwritten wholesale on save; there is no partial merge at
// the storage layer.
type PersonaConfig struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Personality  string `json:"personality"`
	Tone         int    `json:"tone"` // 1 (formal) .. 10 (casual)
	SystemPrompt string `json:"systemPrompt"`
	Model        string `json:"model"`
}

// Persona ids known at build time. Every id referenced by the UI has a
// preset here, so config reads never fail with "not found".
const (
	PersonaCompanion = "companion"
	PersonaCode      = "code"
	PersonaStudy     = "study"

	// DefaultPersonaID is the persona selected when nothing is stored and
	// the fallback target for unknown persona ids.
	DefaultPersonaID = PersonaCompanion
)

// DefaultModel is the chat-completion model used when a persona does not
// configure its own.
const DefaultModel = "openrouter/auto"

// defaultTone is the midpoint of the 1-10 tone scale.
const defaultTone = 5

// presets holds the built-in configuration for the known persona ids.
var presets = map[string]PersonaConfig{
	PersonaCompanion: {
		ID:          PersonaCompanion,
		DisplayName: "Companion",
		Personality: "Warm, curious, and encouraging. Keeps the conversation going and remembers what matters to you.",
		Tone:        7,
		SystemPrompt: "You are a friendly companion. Be warm, conversational, and genuinely " +
			"interested in the user. Keep replies concise unless asked to elaborate.",
		Model: DefaultModel,
	},
	PersonaCode: {
		ID:          PersonaCode,
		DisplayName: "Code Assistant",
		Personality: "Precise and pragmatic. Answers with working code first, explanation second.",
		Tone:        3,
		SystemPrompt: "You are an expert programming assistant. Prefer complete, runnable code " +
			"examples. Point out bugs and edge cases. Be direct and concise.",
		Model: DefaultModel,
	},
	PersonaStudy: {
		ID:          PersonaStudy,
		DisplayName: "Study Tutor",
		Personality: "Patient and methodical. Explains step by step and checks understanding.",
		Tone:        5,
		SystemPrompt: "You are a patient tutor. Break problems into steps, explain the reasoning " +
			"behind each one, and ask a short follow-up question to check understanding.",
		Model: DefaultModel,
	},
}

// KnownPersonaIDs returns the fixed set of built-in persona ids in a
// stable order.
func KnownPersonaIDs() []string {
	return []string{PersonaCompanion, PersonaCode, PersonaStudy}
}

// IsKnownPersona reports whether id has a built-in preset.
func IsKnownPersona(id string) bool {
	_, ok := presets[id]
	return ok
}

// PresetConfig returns the built-in config for a known persona id.
// For unknown ids it returns a generic fallback: capitalized id as the
// display name, generic personality, midpoint tone, and the default
// persona's system prompt and model.
func PresetConfig(id string) PersonaConfig {
	if cfg, ok := presets[id]; ok {
		return cfg
	}
	log.Printf("model: unknown persona id %q, using generic fallback", id)
	return PersonaConfig{
		ID:           id,
		DisplayName:  util.Capitalize(id),
		Personality:  "A helpful assistant.",
		Tone:         defaultTone,
		SystemPrompt: presets[DefaultPersonaID].SystemPrompt,
		Model:        DefaultModel,
	}
}
