package ltengine

import (
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/liut/kedge/internal/codec"
)

// handle wraps a *torrent.Torrent as the opaque engine.Handle the rest of
// the orchestrator deals in.
type handle struct {
	t *torrent.Torrent
}

func (h handle) InfoHash() codec.InfoHash {
	return toInfoHash(h.t.InfoHash())
}

func toInfoHash(th metainfo.Hash) codec.InfoHash {
	var ih codec.InfoHash
	copy(ih[:], th[:])
	return ih
}
