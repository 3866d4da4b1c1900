package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/snapshot"
)

// maxTorrentBodyBytes bounds how much of a POST /api/torrents body is read,
// guarding against a hostile or corrupt upload exhausting memory the same
// way store.DefaultLoadLimit guards resume/session-state files.
const maxTorrentBodyBytes = 8_000_000

// ErrorResponse is the JSON body returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	respondJSON(w, status, ErrorResponse{Error: errMsg, Message: message})
}

// hexParam parses the {hex} path variable into an info-hash, responding with
// a validation 4xx on failure.
func hexParam(w http.ResponseWriter, r *http.Request) (codec.InfoHash, bool) {
	hex := mux.Vars(r)["hex"]
	ih, err := codec.FromHex(hex)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid info-hash", err.Error())
		return codec.InfoHash{}, false
	}
	return ih, true
}

// handleSessionInfo serves GET /api/session.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"peerId":     s.sess.PeerID(),
		"listenPort": s.sess.ListenPort(),
		"isPaused":   s.sess.IsPaused(),
	})
}

// handleSessionStats serves GET /api/session/stats.
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, snapshot.SessionStats(s.cw.Stats(), s.startedAt))
}

// handleSyncStats serves GET /api/sync/stats.
func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, snapshot.BuildSyncStats(s.cw, s.reg, s.startedAt).AsMap())
}

// handleSessionToggle serves PUT /api/session/toggle.
func (s *Server) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	paused := s.sess.TogglePause()
	respondJSON(w, http.StatusOK, map[string]any{"isPaused": paused})
}

// handleListTorrents serves GET /api/torrents.
func (s *Server) handleListTorrents(w http.ResponseWriter, r *http.Request) {
	entries := s.reg.Snapshot()
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = snapshot.TorrentStatus(e.Status)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleAddTorrent serves POST /api/torrents: body is either raw .torrent
// bytes (with an x-save-path header) or a magnet URI. An optional
// x-connect-peer header names a "host:port" peer to dial immediately.
func (s *Server) handleAddTorrent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTorrentBodyBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	if len(body) > maxTorrentBodyBytes {
		respondError(w, http.StatusBadRequest, "body too large", "")
		return
	}

	savePath := r.Header.Get("x-save-path")
	connectPeer := r.Header.Get("x-connect-peer")

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("magnet:")) {
		if _, err := s.sess.AddMagnet(string(bytes.TrimSpace(body)), savePath, connectPeer); err != nil {
			log.Printf("[api] add_magnet failed: %v", err)
			respondError(w, http.StatusInternalServerError, "add_magnet failed", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := s.sess.AddTorrentFile(body, savePath, connectPeer); err != nil {
		log.Printf("[api] add_torrent failed: %v", err)
		respondError(w, http.StatusInternalServerError, "add_torrent failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTorrentExists serves HEAD /api/torrent/{hex}.
func (s *Server) handleTorrentExists(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	if !s.reg.Exists(ih) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTorrent serves GET /api/torrent/{hex}.
func (s *Server) handleGetTorrent(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	entry, found := s.reg.Get(ih)
	if !found {
		respondError(w, http.StatusNotFound, "torrent not found", "")
		return
	}
	respondJSON(w, http.StatusOK, snapshot.TorrentStatus(entry.Status))
}

// handleGetPeers serves GET /api/torrent/{hex}/peers.
func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	h, found := s.sess.FindTorrent(ih)
	if !found {
		respondError(w, http.StatusNotFound, "torrent not found", "")
		return
	}
	peers, err := s.sess.Peers(h)
	if err != nil {
		log.Printf("[api] peers lookup failed for %s: %v", ih, err)
		respondError(w, http.StatusInternalServerError, "failed to read peers", err.Error())
		return
	}
	out := make([]any, len(peers))
	for i, p := range peers {
		out[i] = snapshot.PeerProjection(p)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetFiles serves GET /api/torrent/{hex}/files.
func (s *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	h, found := s.sess.FindTorrent(ih)
	if !found {
		respondError(w, http.StatusNotFound, "torrent not found", "")
		return
	}
	files, err := s.sess.Files(h)
	if err != nil {
		log.Printf("[api] files lookup failed for %s: %v", ih, err)
		respondError(w, http.StatusInternalServerError, "failed to read files", err.Error())
		return
	}
	out := make([]any, len(files))
	for i, f := range files {
		out[i] = snapshot.FileProjection(f)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleDropTorrent serves DELETE /api/torrent/{hex}[/yes|/with_data].
// "yes" is a bare confirmation flag and behaves like no flag at all;
// "with_data" sets RemoveTorrent's deleteFiles flag (the ltengine adapter
// ignores that flag and deletes no downloaded files).
func (s *Server) handleDropTorrent(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	h, found := s.sess.FindTorrent(ih)
	if !found {
		respondError(w, http.StatusNotFound, "torrent not found", "")
		return
	}
	withData := mux.Vars(r)["flag"] == "with_data"
	if err := s.sess.RemoveTorrent(h, withData); err != nil {
		log.Printf("[api] drop_torrent failed for %s: %v", ih, err)
		respondError(w, http.StatusInternalServerError, "drop_torrent failed", err.Error())
		return
	}
	s.reg.Remove(ih)
	if err := s.rp.RemoveFile(ih); err != nil {
		log.Printf("[api] failed to remove resume file for %s: %v", ih, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTorrentAction serves PUT /api/torrent/{hex}/{pause|resume|toggle|start}.
func (s *Server) handleTorrentAction(w http.ResponseWriter, r *http.Request) {
	ih, ok := hexParam(w, r)
	if !ok {
		return
	}
	h, found := s.sess.FindTorrent(ih)
	if !found {
		respondError(w, http.StatusNotFound, "torrent not found", "")
		return
	}

	action := mux.Vars(r)["action"]
	var err error
	switch action {
	case "pause":
		err = s.sess.Pause(h)
	case "resume", "start":
		err = s.sess.Resume(h)
	case "toggle":
		entry, _ := s.reg.Get(ih)
		if entry.Status.IsPaused {
			err = s.sess.Resume(h)
		} else {
			err = s.sess.Pause(h)
		}
	}
	if err != nil {
		log.Printf("[api] %s failed for %s: %v", action, ih, err)
		respondError(w, http.StatusInternalServerError, action+" failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
