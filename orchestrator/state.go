package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// FileStateStore persists unit records as a JSON document guarded by a file
// lock, so concurrent processes on the same host cannot corrupt it. The state
// file is authoritative for what this orchestrator created; divergence from
// live APIs is drift, detected separately.
type FileStateStore struct {
	path string
	flk  *flock.Flock
	log  *slog.Logger

	// mu serializes in-process access; the flock covers cross-process access.
	mu sync.Mutex
}

type stateDocument struct {
	Version int                                           `json:"version"`
	Units   map[interfaces.UnitKey]*interfaces.UnitRecord `json:"units"`
}

// NewFileStateStore creates (or reuses) a state file at path.
func NewFileStateStore(path string, log *slog.Logger) (*FileStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStateStore{
		path: path,
		flk:  flock.New(path + ".lock"),
		log:  log,
	}, nil
}

// Load reads all unit records.
func (s *FileStateStore) Load(ctx context.Context) (map[interfaces.UnitKey]*interfaces.UnitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.flk.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Units, nil
}

// Save upserts one unit record.
func (s *FileStateStore) Save(ctx context.Context, rec *interfaces.UnitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.flk.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Units[rec.Key] = rec
	return s.write(doc)
}

// Delete removes one unit record. Idempotent.
func (s *FileStateStore) Delete(ctx context.Context, key interfaces.UnitKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.flk.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.Units, key)
	return s.write(doc)
}

func (s *FileStateStore) acquire(ctx context.Context) error {
	locked, err := s.flk.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}
	if !locked {
		return fmt.Errorf("state file %s is locked by another process", s.path)
	}
	return nil
}

func (s *FileStateStore) read() (*stateDocument, error) {
	doc := &stateDocument{Version: 1, Units: make(map[interfaces.UnitKey]*interfaces.UnitRecord)}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", s.path, err)
	}
	if doc.Units == nil {
		doc.Units = make(map[interfaces.UnitKey]*interfaces.UnitRecord)
	}
	return doc, nil
}

// write replaces the state file atomically via rename.
func (s *FileStateStore) write(doc *stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.log.Debug("Wrote state file",
		slog.String("path", s.path),
		slog.Int("units", len(doc.Units)))
	return nil
}
