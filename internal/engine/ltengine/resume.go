package ltengine

import (
	"fmt"

	"github.com/anacrolix/torrent/bencode"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

// resumeRecord is the bencoded, on-disk shape of a single torrent's resume
// data. It holds just enough to re-add the torrent and restore its paused
// flag; piece-level completion tracking is delegated entirely to the
// BoltDB-backed completion store configured at startup, so no bitfield
// travels in this record.
type resumeRecord struct {
	InfoHash      string `bencode:"info_hash"`
	Name          string `bencode:"name"`
	SavePath      string `bencode:"save_path"`
	MetainfoData  []byte `bencode:"metainfo,omitempty"`
	MagnetURI     string `bencode:"magnet_uri,omitempty"`
	AddedTime     int64  `bencode:"added_time"`
	CompletedTime int64  `bencode:"completed_time"`
	Paused        bool   `bencode:"paused"`
}

// EncodeResumeRecord renders a resume record to its on-disk bencoded form.
func EncodeResumeRecord(p engine.AddTorrentParams, paused bool) ([]byte, error) {
	r := resumeRecord{
		InfoHash:      p.InfoHash.String(),
		Name:          p.Name,
		SavePath:      p.SavePath,
		MetainfoData:  p.MetainfoData,
		MagnetURI:     p.MagnetURI,
		AddedTime:     p.AddedTime,
		CompletedTime: p.CompletedTime,
		Paused:        paused,
	}
	return bencode.Marshal(r)
}

// DecodeResumeRecord parses a previously-saved resume record, as read from a
// .resume file at startup, back into AddTorrentParams for AddFromResume.
func DecodeResumeRecord(data []byte) (engine.AddTorrentParams, bool, error) {
	var r resumeRecord
	if err := bencode.Unmarshal(data, &r); err != nil {
		return engine.AddTorrentParams{}, false, fmt.Errorf("ltengine: decode resume record: %w", err)
	}
	ih, err := codec.FromHex(r.InfoHash)
	if err != nil {
		return engine.AddTorrentParams{}, false, fmt.Errorf("ltengine: decode resume record info hash: %w", err)
	}
	return engine.AddTorrentParams{
		InfoHash:      ih,
		Name:          r.Name,
		SavePath:      r.SavePath,
		MetainfoData:  r.MetainfoData,
		MagnetURI:     r.MagnetURI,
		AddedTime:     r.AddedTime,
		CompletedTime: r.CompletedTime,
	}, r.Paused, nil
}

// RequestSaveResumeData builds a resume record for h from its live state and
// queues it as an AlertSaveResumeData. anacrolix/torrent builds resume data
// synchronously and cheaply (no disk I/O of its own — the heavy piece
// completion state already lives in the BoltDB store), so unlike libtorrent
// there's no async save_resume_data pass; the alert is queued immediately
// rather than on a later PopAlerts.
func (e *Engine) RequestSaveResumeData(hd engine.Handle) error {
	h, err := asTorrent(hd)
	if err != nil {
		return err
	}
	ih := h.InfoHash()

	e.mu.Lock()
	st, tracked := e.state[ih]
	paused := tracked && st.paused
	e.mu.Unlock()

	var metainfoData []byte
	if mi := h.t.Metainfo(); mi.InfoBytes != nil {
		if encoded, err := bencode.Marshal(mi); err == nil {
			metainfoData = encoded
		}
	}

	// Without metainfo (a magnet add whose metadata hasn't arrived yet) the
	// record carries a bare magnet URI instead, so AddFromResume can re-add it.
	var magnetURI string
	if metainfoData == nil {
		magnetURI = "magnet:?xt=urn:btih:" + ih.String()
	}

	var name string
	if h.t.Info() != nil {
		name = h.t.Info().Name
	}

	data, err := EncodeResumeRecord(engine.AddTorrentParams{
		InfoHash:     ih,
		Name:         name,
		MetainfoData: metainfoData,
		MagnetURI:    magnetURI,
		AddedTime:    now().Unix(),
	}, paused)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.queue = append(e.queue, engine.Alert{Kind: engine.AlertSaveResumeDataFailed, Handle: h, InfoHash: ih, Err: err})
		return err
	}
	e.needSave[ih] = false
	e.queue = append(e.queue, engine.Alert{Kind: engine.AlertSaveResumeData, Handle: h, InfoHash: ih, ResumeData: data})
	return nil
}

// TorrentsNeedingResume returns every handle that has metadata and whose
// resume data is stale, i.e. has changed state since the last successful
// RequestSaveResumeData.
func (e *Engine) TorrentsNeedingResume() []engine.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []engine.Handle
	for _, t := range e.client.Torrents() {
		ih := toInfoHash(t.InfoHash())
		if e.needSave[ih] && t.Info() != nil {
			out = append(out, handle{t})
		}
	}
	return out
}
