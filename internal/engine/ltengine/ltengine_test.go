package ltengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

func TestEncodeDecodeResumeRecordRoundTrip(t *testing.T) {
	ih, err := codec.FromHex("0123456789abcdef0123456789abcdef01234567")
	require.NoError(t, err)

	p := engine.AddTorrentParams{
		InfoHash:     ih,
		Name:         "example",
		SavePath:     "/data/example",
		MagnetURI:    "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		AddedTime:    1700000000,
		CompletedTime: 0,
	}

	data, err := EncodeResumeRecord(p, true)
	require.NoError(t, err)

	got, paused, err := DecodeResumeRecord(data)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, p.InfoHash, got.InfoHash)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.SavePath, got.SavePath)
	assert.Equal(t, p.MagnetURI, got.MagnetURI)
	assert.Equal(t, p.AddedTime, got.AddedTime)
}

func TestDecodeResumeRecordRejectsGarbage(t *testing.T) {
	_, _, err := DecodeResumeRecord([]byte("not bencode"))
	assert.Error(t, err)
}

func TestSampleRateFirstCallReturnsZero(t *testing.T) {
	e := &Engine{rateSamples: make(map[codec.InfoHash]rateSample)}
	ih, _ := codec.FromHex("000000000000000000000000000000000000000a")

	down, up := e.sampleRate(ih, 1000, 500)
	assert.Zero(t, down)
	assert.Zero(t, up)
}

func TestSampleRateComputesDelta(t *testing.T) {
	e := &Engine{rateSamples: make(map[codec.InfoHash]rateSample)}
	ih, _ := codec.FromHex("000000000000000000000000000000000000000a")

	e.rateSamples[ih] = rateSample{at: time.Now().Add(-1 * time.Second), read: 1000, written: 200}
	down, up := e.sampleRate(ih, 3000, 700)

	assert.InDelta(t, 2000, down, 50)
	assert.InDelta(t, 500, up, 50)
}

func TestSampleRateNeverNegative(t *testing.T) {
	e := &Engine{rateSamples: make(map[codec.InfoHash]rateSample)}
	ih, _ := codec.FromHex("000000000000000000000000000000000000000a")

	e.rateSamples[ih] = rateSample{at: time.Now().Add(-1 * time.Second), read: 5000, written: 5000}
	down, up := e.sampleRate(ih, 1000, 1000)

	assert.Zero(t, down)
	assert.Zero(t, up)
}

func TestDhtStartingNodesFuncSkipsInvalidAddrs(t *testing.T) {
	getter := dhtStartingNodesFunc([]string{"not-an-address", "127.0.0.1:6881"})("udp")
	addrs, err := getter()
	require.NoError(t, err)
	require.Len(t, addrs, 1)
}

func TestDhtStartingNodesFuncEmptyOnAllInvalid(t *testing.T) {
	getter := dhtStartingNodesFunc([]string{"nope", "::::"})("udp")
	addrs, err := getter()
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestAsTorrentRejectsForeignHandle(t *testing.T) {
	_, err := asTorrent(fakeHandle{})
	assert.Error(t, err)
}

type fakeHandle struct{}

func (fakeHandle) InfoHash() codec.InfoHash { return codec.InfoHash{} }
