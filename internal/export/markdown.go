// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/personachat/internal/model"
	"github.com/jeranaias/personachat/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports snapshots to Markdown format: one section per
// persona with its configuration and full conversation.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a snapshot to Markdown.
func (e *MarkdownExporter) Export(snap storage.Snapshot) ([]byte, error) {
	exportDate := snap.ExportDate
	if exportDate.IsZero() {
		exportDate = time.Now()
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString("title: personachat export\n")
	sb.WriteString(fmt.Sprintf("exported: %s\n", exportDate.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("personas: %d\n", len(snap.Personas)))
	sb.WriteString("generator: personachat\n")
	sb.WriteString("---\n\n")

	sb.WriteString("# Conversations\n\n")

	for _, id := range sortedPersonaIDs(snap) {
		cfg, ok := snap.Personas[id]
		if !ok {
			cfg = model.PresetConfig(id)
		}

		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdown(cfg.DisplayName)))
		sb.WriteString(fmt.Sprintf("- **Persona**: %s\n", id))
		sb.WriteString(fmt.Sprintf("- **Personality**: %s\n", cfg.Personality))
		sb.WriteString(fmt.Sprintf("- **Tone**: %d/10\n", cfg.Tone))
		if cfg.Model != "" {
			sb.WriteString(fmt.Sprintf("- **Model**: %s\n", cfg.Model))
		}
		sb.WriteString("\n")

		msgs := snap.Conversations[id]
		if len(msgs) == 0 {
			sb.WriteString("_No messages._\n\n")
			continue
		}

		for i, msg := range msgs {
			label := roleLabel(msg.Role)
			if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
				sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp)))
			} else {
				sb.WriteString(fmt.Sprintf("### %s\n\n", label))
			}
			sb.WriteString(msg.Text)
			sb.WriteString("\n\n")
			if i < len(msgs)-1 {
				sb.WriteString("---\n\n")
			}
		}
	}

	sb.WriteString(fmt.Sprintf("\n_Exported %s by personachat._\n", formatTimestamp(exportDate)))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// sortedPersonaIDs returns every persona id in the snapshot in a stable
// order: known presets first, then the rest alphabetically.
func sortedPersonaIDs(snap storage.Snapshot) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range model.KnownPersonaIDs() {
		if _, ok := snap.Personas[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		} else if _, ok := snap.Conversations[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	var rest []string
	for id := range snap.Personas {
		if !seen[id] {
			rest = append(rest, id)
			seen[id] = true
		}
	}
	for id := range snap.Conversations {
		if !seen[id] {
			rest = append(rest, id)
			seen[id] = true
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// roleLabel maps a message role to its display label.
func roleLabel(role string) string {
	switch role {
	case model.RoleUser:
		return "You"
	case model.RoleAssistant:
		return "Assistant"
	default:
		return role
	}
}

// escapeMarkdown escapes characters that would change heading structure.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"#", "\\#",
		"[", "\\[",
		"]", "\\]",
	)
	return replacer.Replace(s)
}
