// Package codec provides the low-level identifier and path utilities shared
// by the rest of the session orchestrator: info-hash hex encoding, resume
// filename validation, and path/time formatting.
package codec

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// InfoHashSize is the length in bytes of a BitTorrent info-hash (SHA-1).
const InfoHashSize = 20

// InfoHash is a 20-byte opaque torrent identifier with a total byte-lexicographic order.
type InfoHash [InfoHashSize]byte

// String renders the info-hash as 40 lowercase hex characters.
func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

// Less reports whether h sorts before other, byte-lexicographically.
func (h InfoHash) Less(other InfoHash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// FromHex parses a 40-character lowercase hex string into an InfoHash.
// It fails unless the input is exactly 40 characters of [0-9a-f].
func FromHex(s string) (InfoHash, error) {
	var h InfoHash
	if len(s) != InfoHashSize*2 {
		return h, fmt.Errorf("codec: invalid info-hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("codec: invalid info-hash hex: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

var resumeFileRe = regexp.MustCompile(`^[0-9a-f]{40}\.resume$`)

// ResumeExt is the suffix used for on-disk resume files.
const ResumeExt = ".resume"

// IsResumeFile reports whether name matches ^[0-9a-f]{40}\.resume$.
func IsResumeFile(name string) bool {
	return len(name) == InfoHashSize*2+len(ResumeExt) && resumeFileRe.MatchString(name)
}

// PathCat joins base and rel using the platform path separator.
func PathCat(base, rel string) string {
	return filepath.Join(base, rel)
}

// PPTime renders epoch seconds as "YYYYMMDD HH:MM" in local time.
// It returns "0" for a zero timestamp, matching the underlying engine's
// convention of using 0 to mean "never".
func PPTime(epochSeconds int64) string {
	if epochSeconds == 0 {
		return "0"
	}
	return time.Unix(epochSeconds, 0).Local().Format("20060102 15:04")
}
