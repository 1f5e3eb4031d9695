// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/personachat/internal/kvstore"
	"github.com/jeranaias/personachat/internal/model"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	return New(kvstore.NewMemoryStore())
}

// =============================================================================
// CONVERSATION LOGS
// =============================================================================

func TestLog_EmptyByDefault(t *testing.T) {
	s := newTestStore(t)

	got := s.Log(model.PersonaCompanion)
	if got == nil || len(got) != 0 {
		t.Errorf("Log of fresh store = %v, want empty non-nil slice", got)
	}
}

func TestAppendMessage_PreservesOrder(t *testing.T) {
	s := newTestStore(t)

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		if !s.AppendMessage(model.PersonaCode, model.NewUserMessage(text)) {
			t.Fatalf("AppendMessage(%q) failed", text)
		}
	}

	got := s.Log(model.PersonaCode)
	if len(got) != len(texts) {
		t.Fatalf("Log length = %d, want %d", len(got), len(texts))
	}
	for i, text := range texts {
		if got[i].Text != text {
			t.Errorf("Log[%d].Text = %q, want %q", i, got[i].Text, text)
		}
	}
}

func TestAppendMessage_FillsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)

	s.AppendMessage(model.PersonaStudy, model.Message{Role: model.RoleUser, Text: "hi"})

	got := s.Log(model.PersonaStudy)
	if len(got) != 1 {
		t.Fatalf("Log length = %d, want 1", len(got))
	}
	if got[0].ID == "" {
		t.Error("appended message should get an ID")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("appended message should get a timestamp")
	}
}

func TestLogs_ArePersonaScoped(t *testing.T) {
	s := newTestStore(t)

	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("for companion"))
	s.AppendMessage(model.PersonaCode, model.NewUserMessage("for code"))

	if len(s.Log(model.PersonaCompanion)) != 1 || len(s.Log(model.PersonaCode)) != 1 {
		t.Fatal("each persona should see exactly its own messages")
	}
	if s.Log(model.PersonaCompanion)[0].Text != "for companion" {
		t.Error("companion log holds the wrong message")
	}
}

func TestClearLog_LeavesOtherPersonasIntact(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("keep"))
	s.AppendMessage(model.PersonaCode, model.NewUserMessage("drop"))

	if !s.ClearLog(model.PersonaCode) {
		t.Fatal("ClearLog failed")
	}

	if len(s.Log(model.PersonaCode)) != 0 {
		t.Error("cleared persona should have an empty log")
	}
	if len(s.Log(model.PersonaCompanion)) != 1 {
		t.Error("other persona's log should be untouched")
	}
}

func TestClearAllLogs_KeepsConfigsAndToken(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("gone"))
	cfg := model.PresetConfig(model.PersonaCompanion)
	cfg.DisplayName = "Custom"
	s.SavePersonaConfig(model.PersonaCompanion, cfg)
	s.SetAdminToken("tok", time.Now().Add(time.Hour))

	if !s.ClearAllLogs() {
		t.Fatal("ClearAllLogs failed")
	}

	if len(s.Log(model.PersonaCompanion)) != 0 {
		t.Error("all logs should be empty")
	}
	if s.PersonaConfig(model.PersonaCompanion).DisplayName != "Custom" {
		t.Error("persona configs should survive a log clear")
	}
	if tok, _ := s.AdminToken(); tok != "tok" {
		t.Error("admin token should survive a log clear")
	}
}

func TestLog_CorruptBlobReadsAsEmpty(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	kv.Write("conversations", []byte(`{not json`))
	s := New(kv)

	if got := s.Log(model.PersonaCompanion); len(got) != 0 {
		t.Errorf("corrupt blob should read as empty log, got %v", got)
	}
}

// =============================================================================
// PERSONA CONFIGURATION
// =============================================================================

func TestPersonaConfig_PresetWhenUnstored(t *testing.T) {
	s := newTestStore(t)

	for _, id := range model.KnownPersonaIDs() {
		got := s.PersonaConfig(id)
		want := model.PresetConfig(id)
		if got != want {
			t.Errorf("PersonaConfig(%q) = %+v, want preset %+v", id, got, want)
		}
	}
}

func TestSavePersonaConfig_OverwritesWholesale(t *testing.T) {
	s := newTestStore(t)

	cfg := model.PresetConfig(model.PersonaCode)
	cfg.Tone = 9
	cfg.SystemPrompt = "You speak only in haiku."
	if !s.SavePersonaConfig(model.PersonaCode, cfg) {
		t.Fatal("SavePersonaConfig failed")
	}

	got := s.PersonaConfig(model.PersonaCode)
	if got.Tone != 9 || got.SystemPrompt != "You speak only in haiku." {
		t.Errorf("stored config not returned: %+v", got)
	}

	// Saving again replaces the previous stored config entirely.
	s.SavePersonaConfig(model.PersonaCode, model.PresetConfig(model.PersonaCode))
	if s.PersonaConfig(model.PersonaCode).Tone == 9 {
		t.Error("second save should overwrite the first wholesale")
	}
}

func TestSavePersonaConfig_PinsID(t *testing.T) {
	s := newTestStore(t)

	cfg := model.PresetConfig(model.PersonaStudy)
	cfg.ID = "mismatched"
	s.SavePersonaConfig(model.PersonaStudy, cfg)

	if got := s.PersonaConfig(model.PersonaStudy).ID; got != model.PersonaStudy {
		t.Errorf("stored config ID = %q, want the save key %q", got, model.PersonaStudy)
	}
}

// =============================================================================
// CURRENT PERSONA
// =============================================================================

func TestCurrentPersonaID(t *testing.T) {
	s := newTestStore(t)

	if got := s.CurrentPersonaID(); got != model.DefaultPersonaID {
		t.Errorf("fresh store CurrentPersonaID = %q, want default %q", got, model.DefaultPersonaID)
	}

	if !s.SetCurrentPersonaID(model.PersonaStudy) {
		t.Fatal("SetCurrentPersonaID failed")
	}
	if got := s.CurrentPersonaID(); got != model.PersonaStudy {
		t.Errorf("CurrentPersonaID = %q, want %q", got, model.PersonaStudy)
	}
}

// =============================================================================
// ADMIN TOKEN
// =============================================================================

func TestAdminToken_RoundTripAndClear(t *testing.T) {
	s := newTestStore(t)

	if tok, exp := s.AdminToken(); tok != "" || !exp.IsZero() {
		t.Error("fresh store should hold no admin token")
	}

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if !s.SetAdminToken("bearer-abc", expiry) {
		t.Fatal("SetAdminToken failed")
	}
	tok, exp := s.AdminToken()
	if tok != "bearer-abc" || !exp.Equal(expiry) {
		t.Errorf("AdminToken = (%q, %v), want (%q, %v)", tok, exp, "bearer-abc", expiry)
	}

	if !s.ClearAdminToken() {
		t.Fatal("ClearAdminToken failed")
	}
	if tok, _ := s.AdminToken(); tok != "" {
		t.Error("token should be gone after clear")
	}
}

func TestIsAdminTokenExpired(t *testing.T) {
	s := newTestStore(t)

	if !s.IsAdminTokenExpired() {
		t.Error("no token should read as expired")
	}

	s.SetAdminToken("tok", time.Now().Add(-time.Minute))
	if !s.IsAdminTokenExpired() {
		t.Error("past expiry should read as expired")
	}

	s.SetAdminToken("tok", time.Now().Add(time.Hour))
	if s.IsAdminTokenExpired() {
		t.Error("future expiry should not read as expired")
	}
}

func TestAdminSession_FlagIsProcessScoped(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := New(kv)
	s.SetAdminAuthenticated(true)
	s.SetAdminToken("tok", time.Now().Add(time.Hour))

	sess := s.AdminSession()
	if !sess.Authenticated || sess.Token != "tok" {
		t.Errorf("AdminSession = %+v, want flag and token set", sess)
	}

	// A new store over the same substrate keeps the token, not the flag.
	fresh := New(kv)
	sess = fresh.AdminSession()
	if sess.Authenticated {
		t.Error("authenticated flag should not survive a new process")
	}
	if sess.Token != "tok" {
		t.Error("token should survive a new process")
	}
}

func TestClearEverything_WipesFlagAndDurableState(t *testing.T) {
	s := newTestStore(t)
	s.SetAdminAuthenticated(true)
	s.SetAdminToken("tok", time.Now().Add(time.Hour))
	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("bye"))

	if !s.ClearEverything() {
		t.Fatal("ClearEverything failed")
	}

	sess := s.AdminSession()
	if sess.Authenticated || sess.Token != "" {
		t.Errorf("AdminSession after wipe = %+v, want zero", sess)
	}
	if len(s.Log(model.PersonaCompanion)) != 0 {
		t.Error("logs should be gone after wipe")
	}
}

// =============================================================================
// SNAPSHOT EXPORT / IMPORT
// =============================================================================

func TestExportSnapshot_IncludesAllKnownPersonas(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("hello"))

	snap := s.ExportSnapshot()

	for _, id := range model.KnownPersonaIDs() {
		if _, ok := snap.Personas[id]; !ok {
			t.Errorf("snapshot missing known persona %q", id)
		}
	}
	if len(snap.Conversations[model.PersonaCompanion]) != 1 {
		t.Error("snapshot missing the companion log")
	}
	if snap.ExportDate.IsZero() {
		t.Error("snapshot should carry an export date")
	}
}

func TestImportSnapshot_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	src.AppendMessage(model.PersonaCode, model.NewUserMessage("write a test"))
	src.AppendMessage(model.PersonaCode, model.NewAssistantMessage("done"))
	cfg := model.PresetConfig(model.PersonaCode)
	cfg.Tone = 2
	src.SavePersonaConfig(model.PersonaCode, cfg)

	data := mustMarshalSnapshot(t, src.ExportSnapshot())

	dst := newTestStore(t)
	if err := dst.ImportSnapshot(data); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	got := dst.Log(model.PersonaCode)
	if len(got) != 2 || got[0].Text != "write a test" || got[1].Text != "done" {
		t.Errorf("imported log = %v, want the exported turns in order", got)
	}
	if dst.PersonaConfig(model.PersonaCode).Tone != 2 {
		t.Error("imported persona config should win over the preset")
	}
}

func TestImportSnapshot_MergesByKey(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(model.PersonaStudy, model.NewUserMessage("preexisting"))

	// Snapshot only touches the code persona.
	data := []byte(`{
		"conversations": {"code": [{"id":"msg_1","role":"user","text":"imported","timestamp":"2026-01-02T03:04:05Z"}]},
		"personas": {},
		"exportDate": "2026-01-02T03:04:05Z"
	}`)
	if err := s.ImportSnapshot(data); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	if len(s.Log(model.PersonaStudy)) != 1 {
		t.Error("personas absent from the snapshot should be preserved")
	}
	if got := s.Log(model.PersonaCode); len(got) != 1 || got[0].Text != "imported" {
		t.Errorf("code log = %v, want the imported message", got)
	}
}

func TestImportSnapshot_MalformedLeavesStateUnchanged(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("survivor"))

	malformed := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"unrelated": true}`),
		[]byte(`{"conversations":{"companion":[{"role":"wizard","text":"x"}]},"personas":{}}`),
	}
	for _, data := range malformed {
		err := s.ImportSnapshot(data)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ImportSnapshot(%.30q) = %v, want *ValidationError", data, err)
		}
	}

	got := s.Log(model.PersonaCompanion)
	if len(got) != 1 || got[0].Text != "survivor" {
		t.Errorf("state changed after failed imports: %v", got)
	}
}

// =============================================================================
// NEVER-THROW POLICY
// =============================================================================

// failingStore rejects every substrate operation.
type failingStore struct{}

var errSubstrate = errors.New("disk on fire")

func (failingStore) Read(string) ([]byte, error) { return nil, errSubstrate }
func (failingStore) Write(string, []byte) error  { return errSubstrate }
func (failingStore) Delete(string) error         { return errSubstrate }
func (failingStore) Clear() error                { return errSubstrate }

func TestSubstrateFailuresAreAbsorbed(t *testing.T) {
	s := New(failingStore{})

	if got := s.Log(model.PersonaCompanion); len(got) != 0 {
		t.Error("Log should read as empty when the substrate fails")
	}
	if s.AppendMessage(model.PersonaCompanion, model.NewUserMessage("x")) {
		t.Error("AppendMessage should report false when the substrate fails")
	}
	if got := s.PersonaConfig(model.PersonaCode); got != model.PresetConfig(model.PersonaCode) {
		t.Error("PersonaConfig should fall back to the preset when the substrate fails")
	}
	if got := s.CurrentPersonaID(); got != model.DefaultPersonaID {
		t.Error("CurrentPersonaID should fall back to the default when the substrate fails")
	}
	if tok, _ := s.AdminToken(); tok != "" {
		t.Error("AdminToken should read as absent when the substrate fails")
	}
	if s.ClearAllLogs() || s.ClearAdminToken() || s.ClearEverything() {
		t.Error("clears should report false when the substrate fails")
	}
}

func mustMarshalSnapshot(t *testing.T, snap Snapshot) []byte {
	t.Helper()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return data
}
