// Package store implements the persistent byte-blob store: session state
// and per-torrent resume data under a conf directory with fixed subpaths.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/liut/kedge/internal/codec"
)

// DefaultLoadLimit bounds how much of a file load_file will read, guarding
// against a corrupt or hostile resume/session-state file exhausting memory.
const DefaultLoadLimit = 8_000_000

const (
	// ResumeDir is the subdirectory under the conf dir holding per-torrent resume blobs.
	ResumeDir = ".resume"
	// WatchDir is the subdirectory scanned for dropped .torrent files.
	WatchDir = "watching"
	// CertDir is reserved for future TLS material.
	CertDir = "certificates"
	// SessionStateFile is the bencoded session-state blob written at shutdown.
	SessionStateFile = ".ses_state"
)

// Store owns the conf directory layout and the atomic-enough load/save of
// opaque byte blobs within it.
type Store struct {
	confDir string
}

// New returns a Store rooted at confDir. It does not create any directories;
// call PrepareDirs for that.
func New(confDir string) *Store {
	return &Store{confDir: confDir}
}

// ConfDir returns the root conf directory.
func (s *Store) ConfDir() string { return s.confDir }

// PrepareDirs creates <conf>/{,.resume,watching,certificates}. It returns
// false on any unrecoverable error other than "already exists".
func PrepareDirs(confDir string) bool {
	paths := []string{
		confDir,
		filepath.Join(confDir, ResumeDir),
		filepath.Join(confDir, WatchDir),
		filepath.Join(confDir, CertDir),
	}
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o755); err != nil {
			log.Printf("[store] failed to create directory %q: %v", p, err)
			return false
		}
	}
	return true
}

// ResumeFile returns <conf>/.resume/<hex>.resume for the given info-hash.
func (s *Store) ResumeFile(ih codec.InfoHash) string {
	return filepath.Join(s.confDir, ResumeDir, ih.String()+codec.ResumeExt)
}

// ResumeDirPath returns <conf>/.resume.
func (s *Store) ResumeDirPath() string {
	return filepath.Join(s.confDir, ResumeDir)
}

// WatchDirPath returns <conf>/watching.
func (s *Store) WatchDirPath() string {
	return filepath.Join(s.confDir, WatchDir)
}

// SessionStateFilePath returns <conf>/.ses_state.
func (s *Store) SessionStateFilePath() string {
	return filepath.Join(s.confDir, SessionStateFile)
}

// LoadFile reads path, failing when its size exceeds limit (0 means
// DefaultLoadLimit) or on any I/O error, including "not found".
func LoadFile(path string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultLoadLimit
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() > limit {
		return nil, fmt.Errorf("store: %q exceeds load limit (%d > %d)", path, fi.Size(), limit)
	}
	return os.ReadFile(path)
}

// SaveFile truncates and writes data to path via a write-then-rename so a
// crash mid-write either preserves the previous contents or produces the new
// ones, never a half-written file. No other caller should mutate this path
// concurrently.
func SaveFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename %q -> %q: %w", tmpName, path, err)
	}
	return nil
}

// RemoveResumeFile removes the resume blob for ih. A missing file is not an error.
func (s *Store) RemoveResumeFile(ih codec.InfoHash) error {
	err := os.Remove(s.ResumeFile(ih))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
