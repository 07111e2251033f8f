package state

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duet-cli/duet/internal/provider"
)

func testNow(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2026-02-27T23:11:00Z")
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestLoadStateMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())
	now := testNow(t)

	st := store.LoadState(now)
	if st == nil {
		t.Fatal("LoadState must never return nil")
	}
	if !st.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %s, want %s", st.CreatedAt, now)
	}
	if st.TurnCount != 0 || st.LastProvider != "" {
		t.Errorf("fresh state not zeroed: %+v", st)
	}
}

func TestLoadStateCorruptFile(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := store.LoadState(testNow(t))
	if st == nil || st.TurnCount != 0 {
		t.Errorf("corrupt state must load as a fresh default, got %+v", st)
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	now := testNow(t)

	st := NewRepoState(now)
	st.LastProvider = provider.IDCodex
	st.TurnCount = 7
	st.Claude.SessionID = "s-claude"
	st.Claude.ConsecutiveErrors = 2
	until := now.Add(time.Hour)
	st.Codex.ApplyCooldown(until, now, "quota_default", "quota-exhausted:default-cooldown", "quota hit")

	if err := store.SaveState(st, now); err != nil {
		t.Fatal(err)
	}

	got := store.LoadState(now.Add(time.Minute))
	if got.LastProvider != provider.IDCodex {
		t.Errorf("LastProvider = %s", got.LastProvider)
	}
	if got.TurnCount != 7 {
		t.Errorf("TurnCount = %d", got.TurnCount)
	}
	if got.Claude.SessionID != "s-claude" || got.Claude.ConsecutiveErrors != 2 {
		t.Errorf("claude state = %+v", got.Claude)
	}
	if got.Codex.CooldownUntil == nil || !got.Codex.CooldownUntil.Equal(until) {
		t.Errorf("CooldownUntil = %v, want %s", got.Codex.CooldownUntil, until)
	}
	if got.Codex.CooldownSource != "quota_default" {
		t.Errorf("CooldownSource = %q", got.Codex.CooldownSource)
	}
	if !got.UpdatedAt.Equal(now.UTC()) {
		t.Errorf("UpdatedAt = %s, want stamped with save time", got.UpdatedAt)
	}
}

func TestLoadStateIgnoresUnknownFields(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	raw := `{"turn_count": 3, "future_field": {"nested": true}}`
	if err := os.WriteFile(filepath.Join(store.Dir(), "state.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	st := store.LoadState(testNow(t))
	if st.TurnCount != 3 {
		t.Errorf("TurnCount = %d, want unknown fields skipped and known ones kept", st.TurnCount)
	}
}

func TestHandoffRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	if got := store.LoadHandoff(); got != "" {
		t.Errorf("missing handoff should load empty, got %q", got)
	}

	content := "# Duet Handoff\n\n## Current Goal\nShip it.\n"
	if err := store.SaveHandoff(content); err != nil {
		t.Fatal(err)
	}
	if got := store.LoadHandoff(); got != content {
		t.Errorf("handoff = %q, want %q", got, content)
	}
}

func TestAppendTranscriptIsAppendOnly(t *testing.T) {
	store := NewStore(t.TempDir())
	now := testNow(t)

	first := TranscriptRecord{Timestamp: now, Provider: provider.IDClaude, UserPrompt: "one", AssistantText: "a"}
	second := TranscriptRecord{
		Timestamp:  now.Add(time.Minute),
		Provider:   provider.IDCodex,
		UserPrompt: "two",
		Error:      "QUOTA_EXHAUSTED: usage limit reached",
		SwitchFrom: "claude",
		SwitchTo:   "codex",
	}

	if err := store.AppendTranscript(first); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTranscript(second); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(store.Dir(), "transcript.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []TranscriptRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec TranscriptRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %q is not a single JSON object: %v", line, err)
		}
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].UserPrompt != "one" || records[1].UserPrompt != "two" {
		t.Errorf("records out of order: %+v", records)
	}
	if records[1].Error != "QUOTA_EXHAUSTED: usage limit reached" {
		t.Errorf("Error = %q", records[1].Error)
	}
	if records[1].SwitchFrom != "claude" || records[1].SwitchTo != "codex" {
		t.Errorf("switch fields = %q -> %q", records[1].SwitchFrom, records[1].SwitchTo)
	}
}

func TestActiveRunLifecycle(t *testing.T) {
	store := NewStore(t.TempDir())
	now := testNow(t)

	if _, ok := store.LoadActiveRun(); ok {
		t.Fatal("no marker expected before save")
	}

	run := ActiveRun{
		PID:           1234,
		Mode:          "ask",
		StartedAt:     now,
		Provider:      provider.IDClaude,
		PromptExcerpt: "fix the bug",
	}
	if err := store.SaveActiveRun(run); err != nil {
		t.Fatal(err)
	}

	got, ok := store.LoadActiveRun()
	if !ok {
		t.Fatal("marker should be present")
	}
	if got.PID != 1234 || got.Mode != "ask" || got.Provider != provider.IDClaude {
		t.Errorf("marker = %+v", got)
	}

	if err := store.ClearActiveRun(); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.LoadActiveRun(); ok {
		t.Fatal("marker should be gone after clear")
	}

	// Clearing twice is fine.
	if err := store.ClearActiveRun(); err != nil {
		t.Errorf("second clear returned %v", err)
	}
}

func TestWipeAndExists(t *testing.T) {
	store := NewStore(t.TempDir())

	if store.Exists() {
		t.Fatal("directory should not exist before first write")
	}
	if err := store.SaveHandoff("x"); err != nil {
		t.Fatal(err)
	}
	if !store.Exists() {
		t.Fatal("directory should exist after a write")
	}

	if err := store.Wipe(); err != nil {
		t.Fatal(err)
	}
	if store.Exists() {
		t.Error("directory should be gone after wipe")
	}

	// Wiping an absent directory is fine.
	if err := store.Wipe(); err != nil {
		t.Errorf("second wipe returned %v", err)
	}
}
