// Package dispatch classifies and routes engine alerts: updating counters,
// triggering resume-data saves on state transitions, rebalancing connection
// slots as torrents finish, and keeping a bounded ring of anything it
// doesn't otherwise handle for diagnostics.
package dispatch

import (
	"log"
	"sync"

	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/resume"
)

// DefaultMaxConnectionsPerTorrent is the per-torrent connection cap applied
// at startup, halved each time a torrent finishes so remaining downloads get
// a larger share of the session's connection budget.
const DefaultMaxConnectionsPerTorrent = 50

// DiagnosticRingSize bounds how many unhandled/unusual alerts are retained
// for inspection; the oldest is dropped once the ring is full.
const DiagnosticRingSize = 20

// Diagnostic is a single retained alert, kept for operator inspection rather
// than acted upon.
type Diagnostic struct {
	Kind    string
	Message string
}

// Dispatcher routes alerts from a Session to the rest of the core.
type Dispatcher struct {
	Counters *counters.Window
	Resume   *resume.Pipeline

	mu                  sync.Mutex
	maxConnPerTorrent   int
	dhtActiveRequests   int
	dhtRoutingTableSize int
	diagnostics         []Diagnostic
}

// New returns a Dispatcher wired to the given counter window and resume
// pipeline.
func New(cw *counters.Window, rp *resume.Pipeline) *Dispatcher {
	return &Dispatcher{
		Counters:          cw,
		Resume:            rp,
		maxConnPerTorrent: DefaultMaxConnectionsPerTorrent,
	}
}

// Handle routes a single alert to its handler. sess is used for the small
// number of alert kinds that need to act back on the engine (rebalancing
// connection slots, requesting resume-data saves).
func (d *Dispatcher) Handle(sess engine.Session, a engine.Alert) {
	switch a.Kind {
	case engine.AlertSessionStats:
		d.Counters.Update(a.Counters, a.TimestampMicros)

	case engine.AlertDHTStats:
		d.mu.Lock()
		d.dhtActiveRequests = a.DHTActiveRequests
		d.dhtRoutingTableSize = a.DHTRoutingTableSize
		d.mu.Unlock()

	case engine.AlertPeerConnect, engine.AlertIncomingConnection:
		// Purely informational; no state change needed.

	case engine.AlertPeerDisconnected:
		if a.DisconnectOp == "connect" || a.DisconnectErr == "timed_out_no_handshake" {
			return
		}
		d.record(a.Kind.String(), a.Message)

	case engine.AlertMetadataReceived:
		if a.Handle != nil {
			d.Resume.Request(sess, a.Handle)
		}

	case engine.AlertAddTorrent:
		if a.Err != nil {
			log.Printf("[dispatch] add_torrent failed for %s: %v", a.InfoHash, a.Err)
			return
		}
		if a.Handle != nil {
			d.Resume.Request(sess, a.Handle)
		}

	case engine.AlertTorrentFinished:
		d.halveMaxConnections(sess)
		if a.Handle != nil {
			d.Resume.Request(sess, a.Handle)
		}

	case engine.AlertSaveResumeData:
		d.Resume.ConsumeSaved(a)

	case engine.AlertSaveResumeDataFailed:
		d.Resume.ConsumeFailed(a)

	case engine.AlertTorrentPaused:
		if a.Handle != nil {
			d.Resume.Request(sess, a.Handle)
		}

	case engine.AlertStateUpdate:
		// Handled: the orchestrator's own polling pass (not this alert) is
		// what refreshes internal/registry's status snapshot.

	default:
		d.record(a.Kind.String(), a.Message)
	}
}

func (d *Dispatcher) halveMaxConnections(sess engine.Session) {
	d.mu.Lock()
	d.maxConnPerTorrent /= 2
	if d.maxConnPerTorrent < 1 {
		d.maxConnPerTorrent = 1
	}
	n := d.maxConnPerTorrent
	d.mu.Unlock()
	sess.SetMaxConnectionsPerTorrent(n)
}

func (d *Dispatcher) record(kind, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.diagnostics = append(d.diagnostics, Diagnostic{Kind: kind, Message: message})
	if len(d.diagnostics) > DiagnosticRingSize {
		d.diagnostics = d.diagnostics[len(d.diagnostics)-DiagnosticRingSize:]
	}
}

// Diagnostics returns a copy of the current diagnostic ring, oldest first.
func (d *Dispatcher) Diagnostics() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.diagnostics))
	copy(out, d.diagnostics)
	return out
}

// DHTStats returns the most recently observed DHT active-request count and
// routing-table size.
func (d *Dispatcher) DHTStats() (activeRequests, routingTableSize int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dhtActiveRequests, d.dhtRoutingTableSize
}

// MaxConnectionsPerTorrent returns the current per-torrent connection cap.
func (d *Dispatcher) MaxConnectionsPerTorrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxConnPerTorrent
}
