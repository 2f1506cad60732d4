package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

// Store keeps rendered PDFs on disk under a single directory. File names are
// generated, never caller supplied, so a download request can be validated
// against a strict pattern before touching the filesystem.
type Store struct {
	dir string
}

var storedName = regexp.MustCompile(`^[a-z]+-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.pdf$`)

// NewStore constructs a Store rooted at dir, creating it when absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes a PDF under a fresh name with the given prefix and returns the
// file name.
func (s *Store) Save(prefix string, pdf []byte) (string, error) {
	name := fmt.Sprintf("%s-%s.pdf", prefix, uuid.NewString())
	if !storedName.MatchString(name) {
		return "", fmt.Errorf("report: invalid report prefix %q", prefix)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), pdf, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", name, err)
	}
	return name, nil
}

// Open returns the stored PDF for a previously issued name.
func (s *Store) Open(name string) ([]byte, error) {
	if !storedName.MatchString(name) {
		return nil, fmt.Errorf("report: invalid report name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", name, err)
	}
	return data, nil
}
