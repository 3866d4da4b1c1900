// Package counters implements the two-sample counter window used to derive
// session transfer rates from the engine's raw, monotonically-increasing
// byte/job counters.
package counters

// MetricIndex names a position within a counter sample, in the fixed order
// the engine resolves its named performance-counter indices at startup.
type MetricIndex int

const (
	NumCheckingTorrents MetricIndex = iota
	NumStoppedTorrents
	NumUploadOnlyTorrents
	NumDownloadingTorrents
	NumSeedingTorrents
	NumQueuedSeedingTorrents
	NumQueuedDownloadTorrents
	NumErrorTorrents
	DiskQueuedWriteBytes
	NetRecvRedundantBytes
	NetRecvFailedBytes
	PeerNumPeersConnected
	PeerNumPeersHalfOpen
	NetHasIncomingConnections
	NetRecvBytes
	NetSentBytes
	NetRecvPayloadBytes
	NetSentPayloadBytes
	PeerNumPeersUpUnchoked
	NumUnchokeSlots
	NetLimiterUpQueue
	NetLimiterDownQueue
	DiskNumWriteJobs
	DiskNumReadJobs

	numMetrics
)

// NumMetrics is the fixed width of a counter sample.
const NumMetrics = int(numMetrics)

// swapGapMicros is the minimum elapsed time, in microseconds, between the
// previous sample's timestamp and an incoming sample's timestamp before the
// window advances previous to the prior current sample. Below this gap the
// window keeps accumulating against the same previous baseline, so rates
// derived from back-to-back session_stats alerts (which can arrive faster
// than once per second) don't degenerate into division by a near-zero
// interval.
const swapGapMicros = 2_000_000

// Window holds the current and previous counter samples and their sample
// timestamps (engine clock, microseconds), from which per-second rates are
// derived.
type Window struct {
	current    []int64
	previous   []int64
	tsCurrent  uint64
	tsPrevious uint64
}

// NewWindow returns an empty counter window.
func NewWindow() *Window {
	return &Window{}
}

// Update records a new sample taken at tMicros. previous only advances to the
// prior current sample once tMicros has moved more than two seconds past
// previous's own timestamp; otherwise current is simply overwritten in
// place, leaving previous (and the rate baseline it anchors) untouched.
func (w *Window) Update(sample []int64, tMicros uint64) {
	if tMicros-w.tsPrevious > swapGapMicros {
		w.previous = w.current
		w.tsPrevious = w.tsCurrent
	}
	w.current = sample
	w.tsCurrent = tMicros
}

// Value returns the current sample's value at idx, or 0 if idx is out of
// range for the current sample.
func (w *Window) Value(idx MetricIndex) int64 {
	if int(idx) < 0 || int(idx) >= len(w.current) {
		return 0
	}
	return w.current[idx]
}

// Rate returns the per-second rate of change of the counter at idx between
// previous and current. It is 0 when previous has not yet been populated
// with a full sample (idx out of range, or no previous sample at all) or the
// elapsed interval is non-positive.
func (w *Window) Rate(idx MetricIndex) float64 {
	if int(idx) < 0 || int(idx) >= len(w.current) || int(idx) >= len(w.previous) {
		return 0
	}
	if w.tsPrevious == 0 || w.tsCurrent <= w.tsPrevious {
		return 0
	}
	seconds := float64(w.tsCurrent-w.tsPrevious) / 1_000_000
	return float64(w.current[idx]-w.previous[idx]) / seconds
}

// SessionStats is the derived, engine-agnostic view of a counter window:
// instantaneous torrent-state gauges plus per-second transfer rates.
type SessionStats struct {
	NumCheckingTorrents       int64
	NumStoppedTorrents        int64
	NumUploadOnlyTorrents     int64
	NumDownloadingTorrents    int64
	NumSeedingTorrents        int64
	NumQueuedSeedingTorrents  int64
	NumQueuedDownloadTorrents int64
	NumErrorTorrents          int64

	NumPeersConnected int64
	NumPeersHalfOpen  int64
	HasIncomingConns  bool

	DiskQueuedWriteBytes int64
	DiskNumWriteJobs     int64
	DiskNumReadJobs      int64

	DownloadRate        float64
	UploadRate          float64
	PayloadDownloadRate float64
	PayloadUploadRate   float64
}

// Stats derives a SessionStats snapshot from the window's current sample and,
// where available, its rate baseline. Calling Stats before any Update
// returns a zero-valued SessionStats.
func (w *Window) Stats() SessionStats {
	if len(w.current) < NumMetrics {
		return SessionStats{}
	}
	return SessionStats{
		NumCheckingTorrents:       w.Value(NumCheckingTorrents),
		NumStoppedTorrents:        w.Value(NumStoppedTorrents),
		NumUploadOnlyTorrents:     w.Value(NumUploadOnlyTorrents),
		NumDownloadingTorrents:    w.Value(NumDownloadingTorrents),
		NumSeedingTorrents:        w.Value(NumSeedingTorrents),
		NumQueuedSeedingTorrents:  w.Value(NumQueuedSeedingTorrents),
		NumQueuedDownloadTorrents: w.Value(NumQueuedDownloadTorrents),
		NumErrorTorrents:          w.Value(NumErrorTorrents),

		NumPeersConnected: w.Value(PeerNumPeersConnected),
		NumPeersHalfOpen:  w.Value(PeerNumPeersHalfOpen),
		HasIncomingConns:  w.Value(NetHasIncomingConnections) != 0,

		DiskQueuedWriteBytes: w.Value(DiskQueuedWriteBytes),
		DiskNumWriteJobs:     w.Value(DiskNumWriteJobs),
		DiskNumReadJobs:      w.Value(DiskNumReadJobs),

		DownloadRate:        w.Rate(NetRecvBytes),
		UploadRate:          w.Rate(NetSentBytes),
		PayloadDownloadRate: w.Rate(NetRecvPayloadBytes),
		PayloadUploadRate:   w.Rate(NetSentPayloadBytes),
	}
}
