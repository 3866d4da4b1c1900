package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/dispatch"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/hub"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/resume"
	"github.com/liut/kedge/internal/store"
)

type fakeHandle struct{ ih codec.InfoHash }

func (f fakeHandle) InfoHash() codec.InfoHash { return f.ih }

type fakeSession struct {
	engine.Session

	handles  map[codec.InfoHash]engine.Handle
	statuses map[codec.InfoHash]engine.TorrentStatus
	paused   bool

	addedFile   []byte
	addedMagnet string
	addSavePath string
	connectPeer string
	addErr      error

	removed      []codec.InfoHash
	removedData  bool
	pauseCalls   []codec.InfoHash
	resumeCalls  []codec.InfoHash
}

func (f *fakeSession) PeerID() string   { return "-LT-abc" }
func (f *fakeSession) ListenPort() int  { return 6881 }
func (f *fakeSession) IsPaused() bool   { return f.paused }
func (f *fakeSession) TogglePause() bool {
	f.paused = !f.paused
	return f.paused
}

func (f *fakeSession) FindTorrent(ih codec.InfoHash) (engine.Handle, bool) {
	h, ok := f.handles[ih]
	return h, ok
}

func (f *fakeSession) AddTorrentFile(data []byte, savePath, connectPeer string) (engine.Handle, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.addedFile = data
	f.addSavePath = savePath
	f.connectPeer = connectPeer
	return fakeHandle{}, nil
}

func (f *fakeSession) AddMagnet(uri, savePath, connectPeer string) (engine.Handle, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.addedMagnet = uri
	f.addSavePath = savePath
	f.connectPeer = connectPeer
	return fakeHandle{}, nil
}

func (f *fakeSession) RemoveTorrent(h engine.Handle, deleteFiles bool) error {
	f.removed = append(f.removed, h.InfoHash())
	f.removedData = deleteFiles
	return nil
}

func (f *fakeSession) Pause(h engine.Handle) error {
	f.pauseCalls = append(f.pauseCalls, h.InfoHash())
	return nil
}

func (f *fakeSession) Resume(h engine.Handle) error {
	f.resumeCalls = append(f.resumeCalls, h.InfoHash())
	return nil
}

func (f *fakeSession) Peers(h engine.Handle) ([]engine.PeerInfo, error) {
	return []engine.PeerInfo{{IP: "10.0.0.1", Port: 6881}}, nil
}

func (f *fakeSession) Files(h engine.Handle) ([]engine.FileInfo, error) {
	return []engine.FileInfo{{Name: "a.bin", Size: 10}}, nil
}

func mustHash(t *testing.T, s string) codec.InfoHash {
	t.Helper()
	ih, err := codec.FromHex(s)
	require.NoError(t, err)
	return ih
}

func newTestServer(t *testing.T, sess *fakeSession, reg *registry.Registry) *Server {
	t.Helper()
	cw := counters.NewWindow()
	st := store.New(t.TempDir())
	rp := resume.New(st)
	disp := dispatch.New(cw, rp)
	h := hub.New(cw, reg, time.Now())
	return NewServer(sess, reg, disp, rp, cw, h, time.Now(), "")
}

func TestHandleListTorrents(t *testing.T) {
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	reg := registry.New()
	reg.Upsert(fakeHandle{ih}, engine.TorrentStatus{InfoHash: ih, Name: "a", State: "seeding"})
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{}}
	s := newTestServer(t, sess, reg)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/torrents", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, ih.String(), out[0]["info_hash"])
}

func TestHandleTorrentExists(t *testing.T) {
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	reg := registry.New()
	reg.Upsert(fakeHandle{ih}, engine.TorrentStatus{InfoHash: ih})
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{}}
	s := newTestServer(t, sess, reg)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/api/torrent/"+ih.String(), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	missing := mustHash(t, "ffffffffffffffffffffffffffffffffffffffff")
	w2 := httptest.NewRecorder()
	s.router.ServeHTTP(w2, httptest.NewRequest(http.MethodHead, "/api/torrent/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, w2.Code)
}

func TestHandleAddTorrentMagnet(t *testing.T) {
	reg := registry.New()
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{}}
	s := newTestServer(t, sess, reg)

	req := httptest.NewRequest(http.MethodPost, "/api/torrents", strings.NewReader("magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"))
	req.Header.Set("x-save-path", "/tmp/s")
	req.Header.Set("x-connect-peer", "1.2.3.4:6881")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, sess.addedMagnet, "magnet:")
	assert.Equal(t, "/tmp/s", sess.addSavePath)
	assert.Equal(t, "1.2.3.4:6881", sess.connectPeer)
}

func TestHandleDropTorrentWithData(t *testing.T) {
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	reg := registry.New()
	reg.Upsert(fakeHandle{ih}, engine.TorrentStatus{InfoHash: ih})
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{ih: fakeHandle{ih}}}
	s := newTestServer(t, sess, reg)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/torrent/"+ih.String()+"/with_data", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, sess.removedData)
	assert.False(t, reg.Exists(ih))
}

func TestHandleTorrentActionToggle(t *testing.T) {
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	reg := registry.New()
	reg.Upsert(fakeHandle{ih}, engine.TorrentStatus{InfoHash: ih, IsPaused: false})
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{ih: fakeHandle{ih}}}
	s := newTestServer(t, sess, reg)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/torrent/"+ih.String()+"/toggle", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []codec.InfoHash{ih}, sess.pauseCalls)
}

func TestHandleSessionToggle(t *testing.T) {
	reg := registry.New()
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{}}
	s := newTestServer(t, sess, reg)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/session/toggle", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, true, out["isPaused"])
}

func TestServerStartShutdown(t *testing.T) {
	reg := registry.New()
	sess := &fakeSession{handles: map[codec.InfoHash]engine.Handle{}}
	s := newTestServer(t, sess, reg)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start("127.0.0.1:0") }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	<-errCh
}
