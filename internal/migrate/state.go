package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"histsync/internal/history"

	"github.com/google/uuid"
)

// Pagination selects how the controller walks the source.
type Pagination string

const (
	// Keyset pages strictly after the last written key; rows appended
	// behind the cursor cannot shift later pages.
	Keyset Pagination = "keyset"
	// Offset pages by row position.
	Offset Pagination = "offset"
)

func ParsePagination(s string) (Pagination, error) {
	switch p := Pagination(s); p {
	case Keyset, Offset:
		return p, nil
	case "":
		return Keyset, nil
	default:
		return "", fmt.Errorf("invalid pagination %q: want keyset or offset", s)
	}
}

// MigrationState is the progress of a run after its last committed batch.
type MigrationState struct {
	RunID      string        `json:"run_id"` // kept across resumes
	Range      history.Range `json:"range"`
	Mode       history.Mode  `json:"mode"`
	Pagination Pagination    `json:"pagination"`

	Offset       int          `json:"offset"`
	Cursor       *history.Key `json:"cursor,omitempty"`
	TotalWritten int64        `json:"total_written"`
	Batches      int          `json:"batches"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns the state of a run that has not written anything yet.
func NewState(rng history.Range, mode history.Mode, pagination Pagination) MigrationState {
	return MigrationState{RunID: uuid.NewString(), Range: rng, Mode: mode, Pagination: pagination}
}

// advance records a committed batch whose last record has key last.
func (s *MigrationState) advance(batchSize, written int, last history.Key) {
	s.Offset += batchSize
	s.Cursor = &last
	s.TotalWritten += int64(written)
	s.Batches++
	s.UpdatedAt = time.Now().UTC()
}

// Compatible reports whether a restored state may continue a run with the
// given parameters.
func (s MigrationState) Compatible(rng history.Range, mode history.Mode, pagination Pagination) error {
	if s.Range != rng {
		return fmt.Errorf("checkpoint range %s does not match %s", s.Range, rng)
	}
	if s.Mode != mode {
		return fmt.Errorf("checkpoint mode %s does not match %s", s.Mode, mode)
	}
	if s.Pagination != pagination {
		return fmt.Errorf("checkpoint pagination %s does not match %s", s.Pagination, pagination)
	}
	return nil
}

// ErrNoCheckpoint is returned by Load when the file does not exist.
var ErrNoCheckpoint = errors.New("no checkpoint")

// CheckpointStore persists MigrationState as a JSON file.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Path() string { return c.path }

func (c *CheckpointStore) Load() (MigrationState, error) {
	var s MigrationState

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, fmt.Errorf("%s: %w", c.path, ErrNoCheckpoint)
	}
	if err != nil {
		return s, fmt.Errorf("read checkpoint: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return s, nil
}

// Save replaces the checkpoint file atomically.
func (c *CheckpointStore) Save(s MigrationState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
