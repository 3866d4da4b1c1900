// Package registry maintains the live set of known torrents and their most
// recently observed status, keyed by info-hash, with a stable hex-sorted
// snapshot order so downstream JSON diffing sees positionally stable arrays.
package registry

import (
	"sort"
	"sync"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

// Entry pairs a torrent's engine handle with its last-known status.
type Entry struct {
	Handle engine.Handle
	Status engine.TorrentStatus
}

// Registry is the in-memory set of torrents under management. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[codec.InfoHash]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[codec.InfoHash]Entry)}
}

// Upsert records or replaces the handle and status for a torrent.
func (r *Registry) Upsert(h engine.Handle, st engine.TorrentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[st.InfoHash] = Entry{Handle: h, Status: st}
}

// UpdateStatus replaces just the status for an already-registered torrent.
// It is a no-op if ih is not present.
func (r *Registry) UpdateStatus(ih codec.InfoHash, st engine.TorrentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ih]
	if !ok {
		return
	}
	e.Status = st
	r.entries[ih] = e
}

// Remove drops a torrent from the registry.
func (r *Registry) Remove(ih codec.InfoHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, ih)
}

// Get returns the entry for ih, if present.
func (r *Registry) Get(ih codec.InfoHash) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[ih]
	return e, ok
}

// Exists reports whether ih is registered.
func (r *Registry) Exists(ih codec.InfoHash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[ih]
	return ok
}

// Len returns the number of registered torrents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns every entry, ordered by ascending info-hash hex string.
// The fixed order is what makes positional array-diffing in internal/jsondiff
// produce small, stable patches across consecutive ticks instead of
// reshuffling on every broadcast.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status.InfoHash.String() < out[j].Status.InfoHash.String()
	})
	return out
}

// InfoHashes returns every registered info-hash, in the same hex-sorted
// order as Snapshot.
func (r *Registry) InfoHashes() []codec.InfoHash {
	snap := r.Snapshot()
	out := make([]codec.InfoHash, len(snap))
	for i, e := range snap {
		out[i] = e.Status.InfoHash
	}
	return out
}
