package ltengine

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

// rateSample is the previous raw byte counters a torrent's download/upload
// rate is computed against, mirroring the reporter's delta-over-elapsed
// approach for speed.
type rateSample struct {
	at      time.Time
	read    int64
	written int64
}

func asTorrent(h engine.Handle) (handle, error) {
	t, ok := h.(handle)
	if !ok {
		return handle{}, fmt.Errorf("ltengine: foreign handle type %T", h)
	}
	return t, nil
}

// Status projects a torrent's live anacrolix state into the engine-agnostic
// status snapshot that internal/orchestrator stores in internal/registry.
func (e *Engine) Status(hd engine.Handle) (engine.TorrentStatus, error) {
	h, err := asTorrent(hd)
	if err != nil {
		return engine.TorrentStatus{}, err
	}
	t := h.t
	ih := h.InfoHash()

	e.mu.Lock()
	st, tracked := e.state[ih]
	needSave := e.needSave[ih]
	e.mu.Unlock()
	if !tracked {
		st = &trackedState{}
	}

	hasInfo := t.Info() != nil
	var name string
	var totalWanted int64
	if hasInfo {
		name = t.Info().Name
		totalWanted = t.Length()
	}
	totalDone := t.BytesCompleted()

	var progress float64
	var progressPPM int64
	if totalWanted > 0 {
		progress = float64(totalDone) / float64(totalWanted)
		progressPPM = totalDone * 1_000_000 / totalWanted
	}

	stats := t.Stats()
	downRate, upRate := e.sampleRate(ih, stats.BytesReadData.Int64(), stats.BytesWrittenData.Int64())

	state := "checking"
	switch {
	case st.paused:
		state = "paused"
	case !hasInfo:
		state = "checking"
	case totalWanted > 0 && totalDone >= totalWanted:
		state = "seeding"
	default:
		state = "downloading"
	}

	return engine.TorrentStatus{
		InfoHash:       ih,
		Name:           name,
		State:          state,
		IsFinished:     st.finished,
		IsPaused:       st.paused,
		HasMetadata:    hasInfo,
		Progress:       progress,
		ProgressPPM:    progressPPM,
		TotalDone:      totalDone,
		TotalWanted:    totalWanted,
		DownloadRate:   downRate,
		UploadRate:     upRate,
		NumPeers:       len(t.PeerConns()),
		NumSeeds:       int(stats.ConnectedSeeders),
		NeedSaveResume: needSave,
	}, nil
}

// sampleRate computes bytes/sec deltas against the last sample taken for ih,
// the same elapsed-delta technique internal/torrent's reporter uses for its
// speed fields, without the reporter's exponential smoothing: the
// orchestrator's own snapshot cadence is the smoothing layer here.
func (e *Engine) sampleRate(ih codec.InfoHash, read, written int64) (down, up int64) {
	now := now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rateSamples == nil {
		e.rateSamples = make(map[codec.InfoHash]rateSample)
	}
	prev, ok := e.rateSamples[ih]
	e.rateSamples[ih] = rateSample{at: now, read: read, written: written}
	if !ok {
		return 0, 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	down = int64(float64(read-prev.read) / elapsed)
	up = int64(float64(written-prev.written) / elapsed)
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}
	return down, up
}

// Peers projects a torrent's live connections. anacrolix/torrent keeps
// per-peer choke/interest state and client-name decoding unexported, so
// Client/Interesting/Choked/Progress are left at their zero value rather
// than guessed at; everything derived from the exported PeerConn surface
// (remote address, discovery source, transport) is populated.
func (e *Engine) Peers(hd engine.Handle) ([]engine.PeerInfo, error) {
	h, err := asTorrent(hd)
	if err != nil {
		return nil, err
	}
	conns := h.t.PeerConns()
	out := make([]engine.PeerInfo, 0, len(conns))
	for _, pc := range conns {
		ip, port := splitHostPort(pc.RemoteAddr)
		out = append(out, engine.PeerInfo{
			IP:     ip,
			Port:   port,
			Source: string(pc.Discovery),
			UTP:    pc.Network == "utp",
		})
	}
	return out, nil
}

func splitHostPort(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Files projects a torrent's per-file completion state. Returns an empty
// slice, not an error, for torrents whose metadata hasn't arrived yet.
func (e *Engine) Files(hd engine.Handle) ([]engine.FileInfo, error) {
	h, err := asTorrent(hd)
	if err != nil {
		return nil, err
	}
	if h.t.Info() == nil {
		return nil, nil
	}
	files := h.t.Files()
	out := make([]engine.FileInfo, 0, len(files))
	for _, f := range files {
		length := f.Length()
		done := f.BytesCompleted()
		var progress float64
		if length > 0 {
			progress = float64(done) / float64(length)
		}
		state := "downloading"
		complete := done >= length
		if complete {
			state = "complete"
		}
		out = append(out, engine.FileInfo{
			Name:     f.Path(),
			Size:     length,
			Progress: progress,
			Complete: complete,
			State:    state,
		})
	}
	return out, nil
}
