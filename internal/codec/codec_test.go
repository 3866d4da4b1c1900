package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	s := "0123456789abcdef0123456789abcdef01234567"[:40]
	h, err := FromHex(s)
	require.NoError(t, err)
	assert.Equal(t, s, h.String())
}

func TestFromHexRejectsBadInput(t *testing.T) {
	_, err := FromHex("tooshort")
	assert.Error(t, err)

	_, err = FromHex("zz23456789abcdef0123456789abcdef0123456")
	assert.Error(t, err)
}

func TestIsResumeFile(t *testing.T) {
	assert.True(t, IsResumeFile("0123456789abcdef0123456789abcdef01234567.resume"))
	assert.False(t, IsResumeFile("0123456789abcdef0123456789abcdef01234567.torrent"))
	assert.False(t, IsResumeFile("short.resume"))
	assert.False(t, IsResumeFile("0123456789ABCDEF0123456789abcdef01234567.resume"))
}

func TestInfoHashLess(t *testing.T) {
	a, _ := FromHex("000000000000000000000000000000000000000a")
	b, _ := FromHex("000000000000000000000000000000000000000b")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestPPTimeZero(t *testing.T) {
	assert.Equal(t, "0", PPTime(0))
	assert.NotEqual(t, "0", PPTime(1700000000))
}
