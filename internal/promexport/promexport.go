// Package promexport registers the Prometheus gauges that observe session
// state without ever mutating it: rates, peer counts, per-state torrent
// counts, outstanding resume saves, the hub's subscriber count, and the
// per-torrent connection cap. Sourced from internal/counters,
// internal/registry, internal/resume, internal/hub, and internal/dispatch,
// refreshed whenever the caller runs Refresh (cmd/kedged: every 2 seconds).
package promexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/dispatch"
	"github.com/liut/kedge/internal/hub"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/resume"
)

var (
	rateRecv = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "rate_recv_bytes",
		Help:      "Current aggregate download rate in bytes per second.",
	})
	rateSent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "rate_sent_bytes",
		Help:      "Current aggregate upload rate in bytes per second.",
	})
	payloadRateRecv = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "payload_rate_recv_bytes",
		Help:      "Current payload-only download rate in bytes per second.",
	})
	payloadRateSent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "payload_rate_sent_bytes",
		Help:      "Current payload-only upload rate in bytes per second.",
	})

	torrentsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "torrents_by_state",
		Help:      "Number of torrents currently in each engine-reported state.",
	}, []string{"state"})

	numPeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "peers_connected",
		Help:      "Number of peer connections across all torrents.",
	})
	numPeersHalfOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "peers_half_open",
		Help:      "Number of half-open peer connections across all torrents.",
	})

	resumeOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "resume_outstanding",
		Help:      "Number of resume-data saves currently in flight.",
	})
	subscriberCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "ws_subscribers",
		Help:      "Number of connected WebSocket subscribers.",
	})
	maxConnPerTorrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kedge",
		Name:      "max_conn_per_torrent",
		Help:      "Current per-torrent connection cap applied by the dispatcher.",
	})
)

// Register adds every kedge gauge to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		rateRecv,
		rateSent,
		payloadRateRecv,
		payloadRateSent,
		torrentsByState,
		numPeersConnected,
		numPeersHalfOpen,
		resumeOutstanding,
		subscriberCount,
		maxConnPerTorrent,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Refresh re-reads the current session snapshot into every gauge. It never
// blocks on I/O and never mutates its sources.
func Refresh(cw *counters.Window, reg *registry.Registry, disp *dispatch.Dispatcher, rp *resume.Pipeline, h *hub.Hub) {
	stats := cw.Stats()
	rateRecv.Set(stats.DownloadRate)
	rateSent.Set(stats.UploadRate)
	payloadRateRecv.Set(stats.PayloadDownloadRate)
	payloadRateSent.Set(stats.PayloadUploadRate)
	numPeersConnected.Set(float64(stats.NumPeersConnected))
	numPeersHalfOpen.Set(float64(stats.NumPeersHalfOpen))

	torrentsByState.Reset()
	for _, e := range reg.Snapshot() {
		torrentsByState.WithLabelValues(e.Status.State).Inc()
	}

	resumeOutstanding.Set(float64(rp.Outstanding()))
	subscriberCount.Set(float64(h.Count()))
	maxConnPerTorrent.Set(float64(disp.MaxConnectionsPerTorrent()))
}
