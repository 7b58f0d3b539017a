package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"histsync/internal/history"
)

// Dumper writes the literal form of every batch statement to a directory,
// one file per batch and destination. Files are never read back.
type Dumper struct {
	dir string
}

func NewDumper(dir string) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Dumper{dir: dir}, nil
}

// Dump writes batch_NNNNNN_<destination>.sql and returns its path.
func (d *Dumper) Dump(batch int, destination string, records []history.Record, mode history.Mode) (string, error) {
	path := filepath.Join(d.dir, fmt.Sprintf("batch_%06d_%s.sql", batch, fileSafe(destination)))
	if err := os.WriteFile(path, []byte(history.RenderInsert(records, mode)), 0644); err != nil {
		return "", fmt.Errorf("dump batch %d: %w", batch, err)
	}
	return path, nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
