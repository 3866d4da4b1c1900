// Package engine defines the contract between the session orchestrator and
// the underlying BitTorrent engine. The orchestrator core (internal/registry,
// internal/dispatch, internal/resume, internal/snapshot, internal/orchestrator)
// depends only on this package, never on a concrete engine implementation —
// internal/engine/ltengine supplies the one this repo runs with.
package engine

import (
	"context"
	"time"

	"github.com/liut/kedge/internal/codec"
)

// Handle addresses a single torrent within the engine. It is opaque and
// comparable; engines may implement it as a thin wrapper over their own
// native handle type.
type Handle interface {
	InfoHash() codec.InfoHash
}

// AddTorrentParams describes a torrent to add, whether from a .torrent file,
// a magnet URI, or a previously-saved resume record.
type AddTorrentParams struct {
	InfoHash     codec.InfoHash
	Name         string
	SavePath     string
	MetainfoData []byte // raw .torrent bytes, if known
	MagnetURI    string // magnet URI, if that's all we have
	AddedTime    int64  // unix seconds
	CompletedTime int64 // unix seconds, 0 if not yet complete
	ConnectPeer  string // optional "host:port" to dial immediately after add
}

// PeerInfo is a per-connection projection of a torrent's peer list.
type PeerInfo struct {
	Client      string
	IP          string
	Port        int
	Source      string
	Progress    float64 // 0..1
	DownSpeed   int64   // bytes/sec
	UpSpeed     int64   // bytes/sec
	NumPieces   int
	UTP         bool
	Interesting bool
	Choked      bool
}

// FileInfo is a per-file projection of a torrent's file list.
type FileInfo struct {
	Name     string
	Size     int64
	Progress float64 // 0..1
	Complete bool
	Priority int
	State    string
}

// TorrentStatus is the engine-agnostic snapshot of a single torrent's state,
// polled or pushed by the engine and consumed by internal/registry and
// internal/snapshot.
type TorrentStatus struct {
	InfoHash        codec.InfoHash
	Name            string
	SavePath        string
	State           string // "checking", "downloading", "seeding", "finished", "error", ...
	CurrentTracker  string
	NextAnnounce    time.Time
	AddedTime       int64
	CompletedTime   int64
	ActiveDuration  time.Duration
	IsFinished      bool
	IsPaused        bool
	HasMetadata     bool
	Progress        float64 // 0..1
	ProgressPPM     int64   // parts-per-million, for integer-stable diffing
	TotalDone       int64
	TotalWanted     int64
	DownloadRate    int64
	UploadRate      int64
	NumPeers        int
	NumSeeds        int
	ErrorCode       int
	ErrorMessage    string
	NeedSaveResume  bool
}

// AlertKind classifies a synthesized or native engine alert. The set mirrors
// the routing table the dispatcher acts on.
type AlertKind int

const (
	AlertUnhandled AlertKind = iota
	AlertSessionStats
	AlertDHTStats
	AlertPeerConnect
	AlertIncomingConnection
	AlertPeerDisconnected
	AlertMetadataReceived
	AlertAddTorrent
	AlertTorrentFinished
	AlertSaveResumeData
	AlertSaveResumeDataFailed
	AlertTorrentPaused
	AlertStateUpdate
)

// String renders the alert kind for logging, matching the bracketed,
// lowercase-with-underscores style the engine's own alert type names use.
func (k AlertKind) String() string {
	switch k {
	case AlertSessionStats:
		return "session_stats"
	case AlertDHTStats:
		return "dht_stats"
	case AlertPeerConnect:
		return "peer_connect"
	case AlertIncomingConnection:
		return "incoming_connection"
	case AlertPeerDisconnected:
		return "peer_disconnected"
	case AlertMetadataReceived:
		return "metadata_received"
	case AlertAddTorrent:
		return "add_torrent"
	case AlertTorrentFinished:
		return "torrent_finished"
	case AlertSaveResumeData:
		return "save_resume_data"
	case AlertSaveResumeDataFailed:
		return "save_resume_data_failed"
	case AlertTorrentPaused:
		return "torrent_paused"
	case AlertStateUpdate:
		return "state_update"
	default:
		return "unhandled"
	}
}

// Alert is a single engine event. Only the fields relevant to Kind are
// populated; the rest are zero.
type Alert struct {
	Kind AlertKind

	Handle   Handle
	InfoHash codec.InfoHash
	Message  string

	// AlertSessionStats
	Counters  []int64
	TimestampMicros uint64

	// AlertDHTStats
	DHTActiveRequests int
	DHTRoutingTableSize int

	// AlertPeerDisconnected
	DisconnectOp  string // "connect", "bittorrent", ...
	DisconnectErr string // "timed_out_no_handshake", ...

	// AlertAddTorrent / AlertSaveResumeDataFailed
	Err error

	// AlertSaveResumeData
	ResumeData []byte

	// AlertSaveResumeDataFailed
	NotModified bool
}

// Session is the capability surface an orchestrator needs from a BitTorrent
// engine: non-blocking alert delivery, torrent lifecycle, and resume-data
// persistence triggers. Implementations must be safe for concurrent use.
type Session interface {
	// PostTorrentUpdates asks the engine to emit one AlertStateUpdate (and,
	// as a side effect of a concrete implementation's polling model, refresh
	// its internal status cache) on the next PopAlerts.
	PostTorrentUpdates()
	// PostSessionStats asks the engine to emit one AlertSessionStats.
	PostSessionStats()
	// PostDHTStats asks the engine to emit one AlertDHTStats.
	PostDHTStats()

	// PopAlerts drains and returns all alerts queued since the last call.
	// It never blocks.
	PopAlerts() []Alert
	// WaitForAlert blocks until an alert is available or ctx is done.
	WaitForAlert(ctx context.Context) bool

	// AddTorrentFile adds a torrent from raw .torrent bytes.
	AddTorrentFile(data []byte, savePath string, connectPeer string) (Handle, error)
	// AddMagnet adds a torrent from a magnet URI.
	AddMagnet(uri string, savePath string, connectPeer string) (Handle, error)
	// AddFromResume re-adds a torrent from a previously saved resume record.
	AddFromResume(p AddTorrentParams) (Handle, error)

	// FindTorrent looks up a handle by info-hash.
	FindTorrent(ih codec.InfoHash) (Handle, bool)
	// AllHandles returns every torrent handle currently known to the
	// engine, in no particular order.
	AllHandles() []Handle
	// RemoveTorrent removes a torrent, optionally deleting its data files.
	RemoveTorrent(h Handle, deleteFiles bool) error

	// RequestSaveResumeData asks the engine to asynchronously produce resume
	// data for h; the result arrives as an AlertSaveResumeData or
	// AlertSaveResumeDataFailed on a later PopAlerts.
	RequestSaveResumeData(h Handle) error
	// TorrentsNeedingResume returns handles whose resume data is stale.
	TorrentsNeedingResume() []Handle

	// Status returns the current status projection for h.
	Status(h Handle) (TorrentStatus, error)
	// Peers returns the peer projection for h.
	Peers(h Handle) ([]PeerInfo, error)
	// Files returns the file projection for h.
	Files(h Handle) ([]FileInfo, error)

	// Pause/Resume toggle a single torrent.
	Pause(h Handle) error
	Resume(h Handle) error
	// TogglePause pauses the whole session, or resumes it if already paused.
	TogglePause() (paused bool)
	IsPaused() bool

	// ConnectPeer dials addr ("host:port") as a prepared peer for h.
	ConnectPeer(h Handle, addr string) error

	// SaveState serializes session-wide settings (not per-torrent resume
	// data) for persistence across restarts.
	SaveState() ([]byte, error)

	PeerID() string
	ListenPort() int

	// SetMaxConnectionsPerTorrent adjusts the session-wide per-torrent
	// connection cap, used to rebalance slots toward torrents still
	// downloading as others finish.
	SetMaxConnectionsPerTorrent(n int)

	// Close shuts the engine down, releasing all held resources.
	Close() error
}
