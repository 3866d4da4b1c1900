package ltengine

import (
	"fmt"

	"github.com/liut/kedge/internal/engine"
)

// hardPause stops all network activity for t without dropping it, the same
// disallow-transfer-and-drop-conns technique used to park a torrent without
// discarding its progress.
func hardPause(t handle) {
	t.t.DisallowDataDownload()
	t.t.DisallowDataUpload()
	t.t.SetMaxEstablishedConns(0)
}

func unpause(t handle, maxConnPerTorrent int) {
	t.t.SetMaxEstablishedConns(maxConnPerTorrent)
	t.t.AllowDataUpload()
	t.t.AllowDataDownload()
	if t.t.Info() != nil {
		t.t.DownloadAll()
	}
}

// Pause stops a single torrent's network activity without removing it.
func (e *Engine) Pause(hd engine.Handle) error {
	h, err := asTorrent(hd)
	if err != nil {
		return err
	}
	ih := h.InfoHash()

	e.mu.Lock()
	st, ok := e.state[ih]
	if !ok {
		st = &trackedState{}
		e.state[ih] = st
	}
	alreadyPaused := st.paused
	st.paused = true
	e.needSave[ih] = true
	e.queue = append(e.queue, engine.Alert{Kind: engine.AlertTorrentPaused, Handle: h, InfoHash: ih})
	e.mu.Unlock()

	if alreadyPaused {
		return nil
	}
	hardPause(h)
	return nil
}

// Resume re-enables a paused torrent's network activity.
func (e *Engine) Resume(hd engine.Handle) error {
	h, err := asTorrent(hd)
	if err != nil {
		return err
	}
	ih := h.InfoHash()

	e.mu.Lock()
	st, ok := e.state[ih]
	wasPaused := ok && st.paused
	if ok {
		st.paused = false
	}
	e.needSave[ih] = true
	e.mu.Unlock()

	if !wasPaused {
		return nil
	}
	unpause(h, e.maxConnPerTorrent)
	return nil
}

// TogglePause pauses every tracked torrent, or resumes them all if the
// session is already paused, mirroring a libtorrent-shaped session-wide
// pause toggle rather than a per-torrent one.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	e.sessionPaused = !e.sessionPaused
	paused := e.sessionPaused
	e.mu.Unlock()

	for _, t := range e.client.Torrents() {
		h := handle{t}
		if paused {
			_ = e.Pause(h)
		} else {
			_ = e.Resume(h)
		}
	}
	return paused
}

// IsPaused reports whether the whole session is currently paused.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionPaused
}

// ConnectPeer dials addr as a prepared peer for h. anacrolix/torrent exposes
// this as Torrent.AddClientPeer, which accepts a host:port string and treats
// it like a manually-specified swarm member.
func (e *Engine) ConnectPeer(hd engine.Handle, addr string) error {
	h, err := asTorrent(hd)
	if err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("ltengine: empty peer address")
	}
	h.t.AddClientPeer(addr)
	return nil
}

// SetMaxConnectionsPerTorrent adjusts the session-wide per-torrent
// connection cap applied to every currently-unpaused torrent.
func (e *Engine) SetMaxConnectionsPerTorrent(n int) {
	e.mu.Lock()
	e.maxConnPerTorrent = n
	e.mu.Unlock()

	for _, t := range e.client.Torrents() {
		ih := toInfoHash(t.InfoHash())
		e.mu.Lock()
		st, tracked := e.state[ih]
		paused := tracked && st.paused
		e.mu.Unlock()
		if !paused {
			t.SetMaxEstablishedConns(n)
		}
	}
}
