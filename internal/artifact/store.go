// Package artifact persists the pipeline's JSON outputs under the run's
// output directory: paths.json, metadata.json, extract/*.json, and the
// performance report. Writes are atomic (temp file + rename) so a reader
// never observes a partial artifact.
package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/stylescan/stylescan/internal/errs"
)

// Well-known artifact names.
const (
	PathsFile        = "paths.json"
	InitialPathsFile = "paths-initial.json"
	MetadataFile     = "metadata.json"
	ExtractDir       = "extract"
	ExtractManifest  = "extract/manifest.json"
	PerfReportFile   = "performance-report.json"
	CacheRecordFile  = ".cache.json"
)

// Store reads and writes JSON artifacts under a single output directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the output directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.FileSystem, err, "artifact: create output dir").
			WithHint("check permissions on the output directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// Path resolves an artifact name to its absolute path.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named artifact is present on disk.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// WriteJSON writes v to the named artifact atomically. Parent directories
// (e.g. extract/) are created on demand.
func (s *Store) WriteJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.FileSystem, err, "artifact: create dir")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Application, err, "artifact: marshal "+name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.FileSystem, err, "artifact: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.FileSystem, err, "artifact: write "+name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.FileSystem, err, "artifact: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.FileSystem, err, "artifact: rename "+name)
	}
	return nil
}

// ReadJSON loads the named artifact into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return errs.Wrap(errs.FileSystem, err, "artifact: read "+name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.Application, err, "artifact: unmarshal "+name)
	}
	return nil
}
