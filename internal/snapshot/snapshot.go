// Package snapshot projects internal engine/counter state into the sparse
// JSON shapes served over HTTP and broadcast over the subscriber hub:
// session stats, per-torrent status, and the combined sync_stats document.
package snapshot

import (
	"time"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/registry"
)

// SessionStats projects a counters.SessionStats plus process uptime into the
// sparse JSON object served as sync_stats.stats. Zero-valued numeric/boolean
// fields are omitted except taskCount, which is always present.
func SessionStats(cs counters.SessionStats, startedAt time.Time) map[string]any {
	obj := map[string]any{}

	putIfPositive(obj, "numChecking", cs.NumCheckingTorrents)
	putIfPositive(obj, "numDownloading", cs.NumDownloadingTorrents)
	putIfPositive(obj, "numSeeding", cs.NumSeedingTorrents)
	putIfPositive(obj, "numStopped", cs.NumStoppedTorrents)
	putIfPositive(obj, "numQueued", cs.NumQueuedSeedingTorrents+cs.NumQueuedDownloadTorrents)
	putIfPositive(obj, "numError", cs.NumErrorTorrents)

	putIfPositive(obj, "numPeersConnected", cs.NumPeersConnected)
	putIfPositive(obj, "numPeersHalfOpen", cs.NumPeersHalfOpen)

	putIfPositive(obj, "bytesQueued", cs.DiskQueuedWriteBytes)

	if cs.HasIncomingConns {
		obj["hasIncoming"] = true
	}
	if cs.DownloadRate > 0 {
		obj["rateRecv"] = cs.DownloadRate
	}
	if cs.UploadRate > 0 {
		obj["rateSent"] = cs.UploadRate
	}

	activeCount := cs.NumCheckingTorrents + cs.NumDownloadingTorrents + cs.NumSeedingTorrents
	pausedCount := cs.NumQueuedSeedingTorrents + cs.NumQueuedDownloadTorrents + cs.NumStoppedTorrents
	if activeCount > 0 {
		obj["activeCount"] = activeCount
	}
	if pausedCount > 0 {
		// [sic, preserved]: the underlying engine's own stats struct carries
		// this exact misspelling; it is kept here so wire consumers written
		// against that engine's JSON keep working unmodified.
		obj["puasedCount"] = pausedCount
	}
	obj["taskCount"] = activeCount + pausedCount

	uptime := int64(time.Since(startedAt) / time.Second)
	if uptime > 0 {
		obj["uptime"] = uptime
		obj["uptimeMs"] = int64(time.Since(startedAt) / time.Millisecond)
	}

	return obj
}

func putIfPositive(obj map[string]any, key string, v int64) {
	if v > 0 {
		obj[key] = v
	}
}

// TorrentStatus projects an engine.TorrentStatus into the sparse JSON object
// served per-torrent. added_time, state, save_path, name, info_hash,
// current_tracker, next_announce, active_duration, is_finished, progress,
// and progress_ppm are always present; everything else is a sparse key
// omitted when zero/false/empty.
func TorrentStatus(st engine.TorrentStatus) map[string]any {
	obj := map[string]any{
		"added_time":       st.AddedTime,
		"state":            st.State,
		"save_path":        st.SavePath,
		"name":             st.Name,
		"info_hash":        st.InfoHash.String(),
		"current_tracker":  st.CurrentTracker,
		"next_announce":    int64(time.Until(st.NextAnnounce) / time.Second),
		"active_duration":  int64(st.ActiveDuration / time.Second),
		"is_finished":      st.IsFinished,
		"progress":         st.Progress,
		"progress_ppm":     st.ProgressPPM,
	}

	if st.CompletedTime > 0 {
		obj["completed_time"] = st.CompletedTime
	}
	if st.TotalDone > 0 {
		obj["total_done"] = st.TotalDone
	}
	if st.TotalWanted > 0 {
		obj["total_wanted"] = st.TotalWanted
	}
	if st.DownloadRate > 0 {
		obj["download_rate"] = st.DownloadRate
	}
	if st.UploadRate > 0 {
		obj["upload_rate"] = st.UploadRate
	}
	if st.NumPeers > 0 {
		obj["num_peers"] = st.NumPeers
	}
	if st.NumSeeds > 0 {
		obj["num_seeds"] = st.NumSeeds
	}
	if st.HasMetadata {
		obj["has_metadata"] = st.HasMetadata
	}
	if st.IsPaused {
		obj["is_paused"] = st.IsPaused
	}
	// errc/error_message supplement spec.md's core field list with the
	// original engine's own error-reporting fields on torrent status.
	if st.ErrorCode != 0 {
		obj["errc"] = st.ErrorCode
	}
	if st.ErrorMessage != "" {
		obj["error_message"] = st.ErrorMessage
	}

	return obj
}

// PeerProjection projects a single engine.PeerInfo into the sparse object
// served by GET /api/torrent/{hex}/peers.
func PeerProjection(p engine.PeerInfo) map[string]any {
	obj := map[string]any{
		"client":    p.Client,
		"ip":        p.IP,
		"port":      p.Port,
		"source":    p.Source,
		"progress":  p.Progress,
		"down_speed": p.DownSpeed,
		"up_speed":  p.UpSpeed,
	}
	if p.NumPieces > 0 {
		obj["num_pieces"] = p.NumPieces
	}
	if p.UTP {
		obj["utp"] = true
	}
	return obj
}

// FileProjection projects a single engine.FileInfo into the sparse object
// served by GET /api/torrent/{hex}/files.
func FileProjection(f engine.FileInfo) map[string]any {
	return map[string]any{
		"name":     f.Name,
		"size":     f.Size,
		"progress": f.Progress,
		"complete": f.Complete,
		"priority": f.Priority,
		"state":    f.State,
	}
}

// SyncStats combines a session-stats object and the registry's ordered
// torrent snapshot into the document served as the WebSocket join payload
// and diffed against on every broadcast tick.
type SyncStats struct {
	Stats    map[string]any
	Torrents []any
}

// AsMap renders s as the plain map[string]any / []any shape internal/jsondiff
// operates on.
func (s SyncStats) AsMap() map[string]any {
	return map[string]any{
		"stats":    s.Stats,
		"torrents": s.Torrents,
	}
}

// BuildSyncStats derives a SyncStats from the current counter window and
// torrent registry, projecting the registry's hex-sorted snapshot in order.
func BuildSyncStats(cw *counters.Window, reg *registry.Registry, startedAt time.Time) SyncStats {
	entries := reg.Snapshot()
	torrents := make([]any, len(entries))
	for i, e := range entries {
		torrents[i] = TorrentStatus(e.Status)
	}
	return SyncStats{
		Stats:    SessionStats(cw.Stats(), startedAt),
		Torrents: torrents,
	}
}

// InfoHashOf is a small convenience used by handlers translating a path
// parameter back into a registry lookup key.
func InfoHashOf(hex string) (codec.InfoHash, error) {
	return codec.FromHex(hex)
}
