package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kedge/internal/codec"
)

func TestPrepareDirs(t *testing.T) {
	root := t.TempDir()
	conf := filepath.Join(root, "conf")
	require.True(t, PrepareDirs(conf))

	for _, sub := range []string{ResumeDir, WatchDir, CertDir} {
		fi, err := os.Stat(filepath.Join(conf, sub))
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	data := []byte("hello resume data")

	require.NoError(t, SaveFile(path, data))
	got, err := LoadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLoadFileEnforcesLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	require.NoError(t, SaveFile(path, make([]byte, 100)))

	_, err := LoadFile(path, 10)
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope"), 0)
	assert.Error(t, err)
}

func TestResumeFilePath(t *testing.T) {
	s := New("/conf")
	ih, err := codec.FromHex("0123456789abcdef0123456789abcdef01234567")
	require.NoError(t, err)
	assert.Equal(t, "/conf/.resume/0123456789abcdef0123456789abcdef01234567.resume", s.ResumeFile(ih))
}

func TestRemoveResumeFileMissingIsNotError(t *testing.T) {
	s := New(t.TempDir())
	ih, err := codec.FromHex("0123456789abcdef0123456789abcdef01234567")
	require.NoError(t, err)
	assert.NoError(t, s.RemoveResumeFile(ih))
}

func TestSaveFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	require.NoError(t, SaveFile(path, []byte("first")))
	require.NoError(t, SaveFile(path, []byte("second")))

	got, err := LoadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}
