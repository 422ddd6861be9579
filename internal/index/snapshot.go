package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ppiankov/riskpilot/internal/model"
)

// snapshot is the on-disk form of one program's index. It can always be
// rebuilt with Reindex, so it is a cache, not a source of truth.
type snapshot struct {
	ProgramID string          `json:"program_id"`
	Model     string          `json:"model"`
	Segments  []model.Segment `json:"segments"`
}

// snapshotStore writes one JSON file per program. A file lock serializes
// writers across processes (two CLI runs on the same program).
type snapshotStore struct {
	dir string
}

func (s *snapshotStore) path(programID string) string {
	return filepath.Join(s.dir, url.PathEscape(programID)+".json")
}

func (s *snapshotStore) lock(programID string) (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("index: ensure directory %q: %w", s.dir, err)
	}
	fl := flock.New(s.path(programID) + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("index: lock %q: %w", programID, err)
	}
	return fl, nil
}

// load returns nil without error when no snapshot exists
func (s *snapshotStore) load(programID string) (*snapshot, error) {
	path := s.path(programID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	fl, err := s.lock(programID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: read %q: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("index: decode %q: %w", path, err)
	}
	return &snap, nil
}

// save replaces the snapshot atomically (tmp + rename)
func (s *snapshotStore) save(snap snapshot) error {
	fl, err := s.lock(snap.ProgramID)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("index: encode snapshot: %w", err)
	}
	path := s.path(snap.ProgramID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("index: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("index: commit snapshot: %w", err)
	}
	return nil
}

func (s *snapshotStore) remove(programID string) error {
	fl, err := s.lock(programID)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	if err := os.Remove(s.path(programID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("index: remove snapshot: %w", err)
	}
	return nil
}
