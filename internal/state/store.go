package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// DirName is the fixed hidden directory holding all per-repo files,
// resolved relative to the directory the process was launched from.
const DirName = ".duet"

// File names inside the state directory.
const (
	stateFile      = "state.json"
	handoffFile    = "handoff.md"
	transcriptFile = "transcript.ndjson"
	activeFile     = "active.json"
)

// Store performs all IO for one repo's .duet/ directory. Read paths
// degrade to defaults; write paths report errors, which the turn driver
// treats as fatal.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at root/.duet.
func NewStore(root string) *Store {
	return &Store{dir: filepath.Join(root, DirName)}
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether the state directory is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("state: creating %s: %w", s.dir, err)
	}
	return nil
}

// LoadState returns the persisted RepoState, or a fresh default created
// at now when the file is missing, corrupt, or schema-incompatible.
// It never fails; unknown fields are ignored and missing fields default.
func (s *Store) LoadState(now time.Time) *RepoState {
	raw, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		return NewRepoState(now)
	}

	st := NewRepoState(now)
	if err := json.Unmarshal(raw, st); err != nil {
		return NewRepoState(now)
	}
	return st
}

// SaveState atomically writes the state after stamping UpdatedAt with
// now in UTC.
func (s *Store) SaveState(st *RepoState, now time.Time) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	st.UpdatedAt = now.UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding state: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, stateFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: writing state: %w", err)
	}
	return nil
}

// LoadHandoff returns the handoff document, or "" when absent.
func (s *Store) LoadHandoff() string {
	raw, err := os.ReadFile(filepath.Join(s.dir, handoffFile))
	if err != nil {
		return ""
	}
	return string(raw)
}

// SaveHandoff overwrites the handoff document in full.
func (s *Store) SaveHandoff(content string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, handoffFile), []byte(content), 0o644); err != nil {
		return fmt.Errorf("state: writing handoff: %w", err)
	}
	return nil
}

// AppendTranscript serializes one record as a single JSON line and
// appends it. Prior content is never rewritten.
func (s *Store) AppendTranscript(rec TranscriptRecord) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("state: encoding transcript record: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.dir, transcriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("state: opening transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("state: appending transcript: %w", err)
	}
	return nil
}

// SaveActiveRun overwrites the active-run marker.
func (s *Store) SaveActiveRun(run ActiveRun) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding active run: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, activeFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: writing active run: %w", err)
	}
	return nil
}

// LoadActiveRun returns the marker and true when present and parseable.
func (s *Store) LoadActiveRun() (ActiveRun, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, activeFile))
	if err != nil {
		return ActiveRun{}, false
	}
	var run ActiveRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return ActiveRun{}, false
	}
	return run, true
}

// ClearActiveRun removes the marker. Removing an absent marker is not
// an error.
func (s *Store) ClearActiveRun() error {
	err := os.Remove(filepath.Join(s.dir, activeFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("state: clearing active run: %w", err)
	}
	return nil
}

// Wipe deletes the whole state directory.
func (s *Store) Wipe() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("state: wiping %s: %w", s.dir, err)
	}
	return nil
}
