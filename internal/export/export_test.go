// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/personachat/internal/kvstore"
	"github.com/jeranaias/personachat/internal/model"
	"github.com/jeranaias/personachat/internal/storage"
)

func testSnapshot(t *testing.T) storage.Snapshot {
	t.Helper()
	store := storage.New(kvstore.NewMemoryStore())
	store.AppendMessage(model.PersonaCode, model.NewUserMessage("how do I sort a slice?"))
	store.AppendMessage(model.PersonaCode, model.NewAssistantMessage("use sort.Slice"))
	return store.ExportSnapshot()
}

func TestJSONExporter_IsReimportable(t *testing.T) {
	snap := testSnapshot(t)

	data, err := NewJSONExporter(nil).Export(snap)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := storage.New(kvstore.NewMemoryStore())
	if err := dst.ImportSnapshot(data); err != nil {
		t.Fatalf("exported JSON should import cleanly: %v", err)
	}
	if got := dst.Log(model.PersonaCode); len(got) != 2 {
		t.Errorf("imported log has %d messages, want 2", len(got))
	}
}

func TestJSONExporter_CarriesAllKnownPersonas(t *testing.T) {
	data, err := NewJSONExporter(nil).Export(testSnapshot(t))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, id := range model.KnownPersonaIDs() {
		if _, ok := snap.Personas[id]; !ok {
			t.Errorf("export missing persona %q", id)
		}
	}
}

func TestMarkdownExporter(t *testing.T) {
	snap := testSnapshot(t)

	data, err := NewMarkdownExporter(nil).Export(snap)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "## Code Assistant") {
		t.Error("output should have a section per persona display name")
	}
	if !strings.Contains(out, "how do I sort a slice?") || !strings.Contains(out, "use sort.Slice") {
		t.Error("output should carry the message texts")
	}
	if !strings.Contains(out, "### You") || !strings.Contains(out, "### Assistant") {
		t.Error("output should label roles")
	}
	// Personas without messages still appear
	if !strings.Contains(out, "## Companion") {
		t.Error("empty personas should still get a section")
	}
	if !strings.Contains(out, "_No messages._") {
		t.Error("empty personas should be marked as such")
	}
}

func TestMarkdownExporter_TimestampsOptional(t *testing.T) {
	snap := testSnapshot(t)

	opts := &Options{OutputDir: ".", IncludeTimestamps: false}
	data, err := NewMarkdownExporter(opts).Export(snap)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(string(data), "<sub>") {
		t.Error("timestamps should be omitted when disabled")
	}
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	snap := testSnapshot(t)
	snap.ExportDate = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	path, err := ExportJSON(snap, &Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	if filepath.Dir(path) != dir {
		t.Errorf("output written to %q, want %q", filepath.Dir(path), dir)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("extension = %q, want .json", filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}
