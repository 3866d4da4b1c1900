package ltengine

import (
	"fmt"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

// AddTorrentFile adds a torrent from raw .torrent bytes.
func (e *Engine) AddTorrentFile(data []byte, savePath string, connectPeer string) (engine.Handle, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(data, &mi); err != nil {
		return nil, fmt.Errorf("ltengine: parse torrent: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("ltengine: parse torrent info: %w", err)
	}
	// savePath is accepted for interface symmetry with the libtorrent-shaped
	// contract but not wired to a per-torrent storage override: DefaultStorage
	// (the BoltDB-backed completion cache configured at startup) is shared
	// across every torrent and roots at the engine's configured DataDir.
	_ = savePath
	t, _, err := e.client.AddTorrentSpec(&torrent.TorrentSpec{
		InfoHash:  mi.HashInfoBytes(),
		InfoBytes: mi.InfoBytes,
		Trackers:  mi.AnnounceList,
	})
	if err != nil {
		return nil, fmt.Errorf("ltengine: add torrent: %w", err)
	}
	_ = info // parsed only to fail fast on a malformed .torrent; the library re-parses InfoBytes itself
	h := handle{t}
	e.registerAdd(h)
	if connectPeer != "" {
		_ = e.ConnectPeer(h, connectPeer)
	}
	return h, nil
}

// AddMagnet adds a torrent from a magnet URI.
func (e *Engine) AddMagnet(uri string, savePath string, connectPeer string) (engine.Handle, error) {
	t, err := e.client.AddMagnet(uri)
	if err != nil {
		return nil, fmt.Errorf("ltengine: add magnet: %w", err)
	}
	h := handle{t}
	e.registerAdd(h)
	if connectPeer != "" {
		_ = e.ConnectPeer(h, connectPeer)
	}
	return h, nil
}

// AddFromResume re-adds a torrent from a previously saved resume record.
func (e *Engine) AddFromResume(p engine.AddTorrentParams) (engine.Handle, error) {
	var (
		t   *torrent.Torrent
		err error
	)
	switch {
	case len(p.MetainfoData) > 0:
		var mi metainfo.MetaInfo
		if err := bencode.Unmarshal(p.MetainfoData, &mi); err != nil {
			return nil, fmt.Errorf("ltengine: parse resumed metainfo: %w", err)
		}
		t, _, err = e.client.AddTorrentSpec(&torrent.TorrentSpec{
			InfoHash:  mi.HashInfoBytes(),
			InfoBytes: mi.InfoBytes,
			Trackers:  mi.AnnounceList,
		})
	case p.MagnetURI != "":
		t, err = e.client.AddMagnet(p.MagnetURI)
	default:
		return nil, fmt.Errorf("ltengine: resume record for %s has neither metainfo nor magnet URI", p.InfoHash)
	}
	if err != nil {
		return nil, fmt.Errorf("ltengine: re-add from resume: %w", err)
	}
	h := handle{t}
	e.registerAdd(h)
	return h, nil
}

// registerAdd seeds the diffing state for a newly added torrent and queues
// its add_torrent alert, which is how the dispatcher learns to request an
// initial resume-data save for it.
func (e *Engine) registerAdd(h handle) {
	ih := h.InfoHash()
	e.mu.Lock()
	e.state[ih] = &trackedState{}
	e.needSave[ih] = true
	e.queue = append(e.queue, engine.Alert{Kind: engine.AlertAddTorrent, Handle: h, InfoHash: ih})
	e.mu.Unlock()
}

// FindTorrent looks up a handle by info-hash.
func (e *Engine) FindTorrent(ih codec.InfoHash) (engine.Handle, bool) {
	t, ok := e.client.Torrent(metainfo.Hash(ih))
	if !ok {
		return nil, false
	}
	return handle{t}, true
}

// AllHandles returns every torrent handle currently known to the engine.
func (e *Engine) AllHandles() []engine.Handle {
	ts := e.client.Torrents()
	out := make([]engine.Handle, 0, len(ts))
	for _, t := range ts {
		out = append(out, handle{t})
	}
	return out
}

// RemoveTorrent drops a torrent from the client. anacrolix/torrent's Drop()
// does not delete downloaded data, and this adapter ignores deleteFiles: no
// data files are removed from disk whatever its value.
func (e *Engine) RemoveTorrent(hd engine.Handle, deleteFiles bool) error {
	h, ok := hd.(handle)
	if !ok {
		return fmt.Errorf("ltengine: foreign handle type %T", hd)
	}
	ih := h.InfoHash()
	h.t.Drop()

	e.mu.Lock()
	delete(e.state, ih)
	delete(e.needSave, ih)
	e.mu.Unlock()

	if deleteFiles {
		// On-disk data is not deleted: DefaultStorage is shared across all
		// torrents via the BoltDB completion cache, so there is no single
		// per-torrent directory this adapter removes.
	}
	return nil
}
