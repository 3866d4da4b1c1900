// Package watch implements the drop-directory scan: on each orchestrator
// tick where the scan is due, every *.torrent file in the watch directory is
// added to the session, and its source file is removed on success. An
// optional fsnotify watcher collapses the worst-case latency between a file
// landing and the next scan, without taking over ownership of the scan
// schedule itself.
package watch

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liut/kedge/internal/engine"
)

// ScanInterval is the fixed poll period between drop-directory scans, driven
// by the orchestrator's own tick rather than a private goroutine.
const ScanInterval = 2 * time.Second

// Scanner owns the watch directory poll schedule and the fsnotify fast path.
type Scanner struct {
	dir string

	nextScanAt atomic.Int64 // unix nanos
	scanNow    atomic.Bool

	watcher *fsnotify.Watcher
}

// New returns a Scanner rooted at dir. Call Start to begin the optional
// fsnotify fast path; the scanner works correctly (on a 2s cadence) even if
// Start is never called or fails.
func New(dir string) *Scanner {
	s := &Scanner{dir: dir}
	s.nextScanAt.Store(time.Now().UnixNano())
	return s
}

// Start launches the fsnotify watcher. A failure here is logged and
// non-fatal: the scanner still runs on its fixed poll schedule.
func (s *Scanner) Start() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[watch] fsnotify unavailable, falling back to poll-only: %v", err)
		return
	}
	if err := w.Add(s.dir); err != nil {
		log.Printf("[watch] failed to watch %q: %v", s.dir, err)
		w.Close()
		return
	}
	s.watcher = w
	go s.run()
}

func (s *Scanner) run() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(ev.Name, ".torrent") {
				s.scanNow.Store(true)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] fsnotify error: %v", err)
		}
	}
}

// Close stops the fsnotify watcher, if running.
func (s *Scanner) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Due reports whether a scan should run now: either the fixed 2s interval
// has elapsed, or fsnotify flagged a new .torrent file early.
func (s *Scanner) Due(now time.Time) bool {
	if s.scanNow.Swap(false) {
		return true
	}
	return now.UnixNano() >= s.nextScanAt.Load()
}

// Scan lists every *.torrent file in the watch directory, adds each to sess,
// and removes the source file on success. List or add failures are logged
// and do not stop the scan from continuing with the remaining files.
func (s *Scanner) Scan(sess engine.Session) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("[watch] failed to list directory %q: %v", s.dir, err)
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".torrent") {
			continue
		}
		file := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(file)
		if err != nil {
			log.Printf("[watch] failed to read %q: %v", file, err)
			continue
		}
		if _, err := sess.AddTorrentFile(data, "", ""); err != nil {
			log.Printf("[watch] failed to add %q: %v", file, err)
			continue
		}
		if err := os.Remove(file); err != nil {
			log.Printf("[watch] failed to remove torrent file %q: %v", file, err)
		}
	}
}

// MarkScanned advances the fixed poll schedule to now + ScanInterval. Call
// this after Scan runs, whether or not the scan was triggered by the fast
// path — the orchestrator tick, not fsnotify, owns next_scan_at.
func (s *Scanner) MarkScanned(now time.Time) {
	s.nextScanAt.Store(now.Add(ScanInterval).UnixNano())
}
