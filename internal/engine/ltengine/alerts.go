package ltengine

import (
	"context"
	"time"

	"github.com/anacrolix/torrent"

	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/engine"
)

// alertPollInterval is how often WaitForAlert re-checks the queue while
// blocked; short enough that DrainOnShutdown's bounded wait isn't dominated
// by polling latency.
const alertPollInterval = 50 * time.Millisecond

// PostTorrentUpdates asks for one state_update alert on the next PopAlerts.
// Because this adapter has no native alert queue, the side effect that
// matters is PopAlerts re-diffing every torrent's live state, not the alert
// payload itself — internal/orchestrator's own per-tick registry refresh is
// what actually picks up the new status.
func (e *Engine) PostTorrentUpdates() {
	e.mu.Lock()
	e.pendingStateUpdate = true
	e.mu.Unlock()
}

// PostSessionStats asks for one session_stats alert on the next PopAlerts.
func (e *Engine) PostSessionStats() {
	e.mu.Lock()
	e.pendingSessionStats = true
	e.mu.Unlock()
}

// PostDHTStats asks for one dht_stats alert on the next PopAlerts.
func (e *Engine) PostDHTStats() {
	e.mu.Lock()
	e.pendingDHTStats = true
	e.mu.Unlock()
}

// PopAlerts re-diffs live torrent state against the last-observed snapshot,
// appends any requested session/DHT stats alerts, and returns everything
// queued since the previous call.
func (e *Engine) PopAlerts() []engine.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked()
	out := e.queue
	e.queue = nil
	return out
}

// WaitForAlert blocks until PopAlerts would return something or ctx is done.
func (e *Engine) WaitForAlert(ctx context.Context) bool {
	ticker := time.NewTicker(alertPollInterval)
	defer ticker.Stop()
	for {
		e.mu.Lock()
		has := len(e.queue) > 0
		e.mu.Unlock()
		if has {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// refreshLocked is called with e.mu held. It diffs every live torrent
// against e.state, appending metadata_received / torrent_finished alerts on
// transition, then drains any pending session/DHT stats requests.
func (e *Engine) refreshLocked() {
	for _, t := range e.client.Torrents() {
		h := handle{t}
		ih := h.InfoHash()

		st, ok := e.state[ih]
		if !ok {
			st = &trackedState{}
			e.state[ih] = st
		}

		hasInfo := t.Info() != nil
		if hasInfo && !st.hasInfo {
			st.hasInfo = true
			e.needSave[ih] = true
			e.queue = append(e.queue, engine.Alert{Kind: engine.AlertMetadataReceived, Handle: h, InfoHash: ih})
		}

		if hasInfo {
			finished := t.BytesMissing() == 0
			if finished && !st.finished {
				st.finished = true
				e.needSave[ih] = true
				e.queue = append(e.queue, engine.Alert{Kind: engine.AlertTorrentFinished, Handle: h, InfoHash: ih})
			} else if !finished && st.finished {
				st.finished = false
			}
		}
	}

	if e.pendingStateUpdate {
		e.pendingStateUpdate = false
		e.queue = append(e.queue, engine.Alert{Kind: engine.AlertStateUpdate})
	}
	if e.pendingSessionStats {
		e.pendingSessionStats = false
		e.queue = append(e.queue, engine.Alert{
			Kind:            engine.AlertSessionStats,
			Counters:        e.buildCounterSample(),
			TimestampMicros: uint64(now().UnixMicro()),
		})
	}
	if e.pendingDHTStats {
		e.pendingDHTStats = false
		active, routing := e.dhtStats()
		e.queue = append(e.queue, engine.Alert{
			Kind:                engine.AlertDHTStats,
			DHTActiveRequests:   active,
			DHTRoutingTableSize: routing,
		})
	}
}

// buildCounterSample aggregates a 24-slot sample in the exact order
// internal/counters.MetricIndex enumerates. Fields anacrolix/torrent doesn't
// expose at this granularity (disk job queue depth, unchoke slot and rate
// limiter internals, persistent per-torrent error state) are left at 0
// rather than guessed at.
func (e *Engine) buildCounterSample() []int64 {
	sample := make([]int64, counters.NumMetrics)

	var peersConnected, peersHalfOpen int64
	var netRecv, netSent, netRecvPayload, netSentPayload int64

	for _, t := range e.client.Torrents() {
		stats := t.Stats()
		peersConnected += int64(len(t.PeerConns()))
		peersHalfOpen += int64(stats.HalfOpenPeers)
		netRecv += stats.BytesReadData.Int64()
		netSent += stats.BytesWrittenData.Int64()
		netRecvPayload += stats.BytesReadUsefulData.Int64()
		netSentPayload += stats.BytesWrittenData.Int64()

		switch {
		case t.Info() == nil:
			sample[counters.NumCheckingTorrents]++
		case t.BytesMissing() == 0:
			sample[counters.NumSeedingTorrents]++
		default:
			sample[counters.NumDownloadingTorrents]++
		}
	}

	sample[counters.PeerNumPeersConnected] = peersConnected
	sample[counters.PeerNumPeersHalfOpen] = peersHalfOpen
	sample[counters.NetRecvBytes] = netRecv
	sample[counters.NetSentBytes] = netSent
	sample[counters.NetRecvPayloadBytes] = netRecvPayload
	sample[counters.NetSentPayloadBytes] = netSentPayload
	if redundant := netRecv - netRecvPayload; redundant > 0 {
		sample[counters.NetRecvRedundantBytes] = redundant
	}

	// Caller (refreshLocked) already holds e.mu.
	for _, st := range e.state {
		if st.paused {
			sample[counters.NumStoppedTorrents]++
		}
	}

	return sample
}

// dhtStats reports the DHT servers' combined routing-table node count, or
// zero if DHT is disabled. The active-request count is always reported as 0.
func (e *Engine) dhtStats() (activeRequests, routingTableSize int) {
	servers := e.client.DhtServers()
	for _, s := range servers {
		stats := s.Stats()
		routingTableSize += stats.Nodes
	}
	return 0, routingTableSize
}
