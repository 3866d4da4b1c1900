package resume

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/store"
)

type fakeHandle struct{ ih codec.InfoHash }

func (f fakeHandle) InfoHash() codec.InfoHash { return f.ih }

type fakeSession struct {
	engine.Session // embed nil: only methods under test are implemented below

	requestErr error
	needsResume []engine.Handle
	alertsQueue [][]engine.Alert
	waitCalls   int
}

func (f *fakeSession) RequestSaveResumeData(h engine.Handle) error { return f.requestErr }
func (f *fakeSession) TorrentsNeedingResume() []engine.Handle      { return f.needsResume }
func (f *fakeSession) WaitForAlert(ctx context.Context) bool {
	f.waitCalls++
	return len(f.alertsQueue) > 0
}
func (f *fakeSession) PopAlerts() []engine.Alert {
	if len(f.alertsQueue) == 0 {
		return nil
	}
	next := f.alertsQueue[0]
	f.alertsQueue = f.alertsQueue[1:]
	return next
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	require.True(t, store.PrepareDirs(dir))
	return store.New(dir)
}

func mustHash(t *testing.T, s string) codec.InfoHash {
	t.Helper()
	h, err := codec.FromHex(s)
	require.NoError(t, err)
	return h
}

func TestRequestIncrementsOutstanding(t *testing.T) {
	p := New(newTestStore(t))
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	p.Request(&fakeSession{}, fakeHandle{ih})
	assert.Equal(t, 1, p.Outstanding())
}

func TestRequestErrorDoesNotIncrement(t *testing.T) {
	p := New(newTestStore(t))
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	p.Request(&fakeSession{requestErr: errors.New("boom")}, fakeHandle{ih})
	assert.Equal(t, 0, p.Outstanding())
}

func TestConsumeSavedWritesFileAndDecrements(t *testing.T) {
	st := newTestStore(t)
	p := New(st)
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	p.Request(&fakeSession{}, fakeHandle{ih})

	p.ConsumeSaved(engine.Alert{Kind: engine.AlertSaveResumeData, InfoHash: ih, ResumeData: []byte("blob")})

	assert.Equal(t, 0, p.Outstanding())
	data, err := os.ReadFile(filepath.Join(st.ResumeDirPath(), ih.String()+".resume"))
	require.NoError(t, err)
	assert.Equal(t, "blob", string(data))
}

func TestConsumeFailedNotModifiedIsSilent(t *testing.T) {
	p := New(newTestStore(t))
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	p.Request(&fakeSession{}, fakeHandle{ih})
	p.ConsumeFailed(engine.Alert{Kind: engine.AlertSaveResumeDataFailed, InfoHash: ih, NotModified: true})
	assert.Equal(t, 0, p.Outstanding())
}

func TestOutstandingNeverGoesNegative(t *testing.T) {
	p := New(newTestStore(t))
	ih := mustHash(t, "000000000000000000000000000000000000000a")
	p.ConsumeSaved(engine.Alert{InfoHash: ih})
	assert.Equal(t, 0, p.Outstanding())
}

func TestDrainOnShutdownRequestsAndWaits(t *testing.T) {
	st := newTestStore(t)
	p := New(st)
	ih := mustHash(t, "000000000000000000000000000000000000000a")

	sess := &fakeSession{
		needsResume: []engine.Handle{fakeHandle{ih}},
		alertsQueue: [][]engine.Alert{
			{{Kind: engine.AlertSaveResumeData, InfoHash: ih, ResumeData: []byte("x")}},
		},
	}

	p.DrainOnShutdown(context.Background(), sess, func(a engine.Alert) {
		switch a.Kind {
		case engine.AlertSaveResumeData:
			p.ConsumeSaved(a)
		case engine.AlertSaveResumeDataFailed:
			p.ConsumeFailed(a)
		}
	})

	assert.Equal(t, 0, p.Outstanding())
	assert.GreaterOrEqual(t, sess.waitCalls, 1)
}
