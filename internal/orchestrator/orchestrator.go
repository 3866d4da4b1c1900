// Package orchestrator drives the cooperative main loop: the ~500ms engine
// tick (post stats requests, drain alerts, run the watch-directory scan when
// due) and the ~1s broadcast tick, plus the graceful shutdown sequence
// (drain outstanding resume saves, pause the session, save session state).
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/liut/kedge/internal/dispatch"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/hub"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/resume"
	"github.com/liut/kedge/internal/store"
	"github.com/liut/kedge/internal/watch"
)

// EngineTick is the period between alert-pump passes.
const EngineTick = 500 * time.Millisecond

// BroadcastTick is the minimum period between hub broadcasts.
const BroadcastTick = 1 * time.Second

// Orchestrator owns the main loop tying the engine, dispatcher, registry,
// watch scanner, and hub together.
type Orchestrator struct {
	Session  engine.Session
	Registry *registry.Registry
	Dispatch *dispatch.Dispatcher
	Resume   *resume.Pipeline
	Watch    *watch.Scanner
	Hub      *hub.Hub
	Store    *store.Store
}

// New wires up an Orchestrator from its already-constructed parts.
func New(sess engine.Session, reg *registry.Registry, disp *dispatch.Dispatcher, rp *resume.Pipeline, w *watch.Scanner, h *hub.Hub, st *store.Store) *Orchestrator {
	return &Orchestrator{
		Session:  sess,
		Registry: reg,
		Dispatch: disp,
		Resume:   rp,
		Watch:    w,
		Hub:      h,
		Store:    st,
	}
}

// Run executes the main loop until ctx is cancelled, then performs the
// graceful shutdown sequence before returning.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(EngineTick)
	defer ticker.Stop()

	lastBroadcast := time.Now()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-ticker.C:
			o.engineTick()

			now := time.Now()
			if now.Sub(lastBroadcast) >= BroadcastTick {
				o.Hub.Tick()
				lastBroadcast = now
			}
		}
	}
}

func (o *Orchestrator) engineTick() {
	o.Session.PostTorrentUpdates()
	o.Session.PostSessionStats()
	o.Session.PostDHTStats()

	for _, a := range o.Session.PopAlerts() {
		o.Dispatch.Handle(o.Session, a)
	}

	o.refreshRegistry()

	now := time.Now()
	if o.Watch.Due(now) {
		o.Watch.Scan(o.Session)
		o.Watch.MarkScanned(now)
	}
}

// refreshRegistry re-reads every known torrent's status from the engine and
// upserts it into the registry. This, not the state_update alert itself, is
// what keeps the registry's projected status current — the alert only
// signals that a refresh is worth doing.
func (o *Orchestrator) refreshRegistry() {
	for _, h := range o.Session.AllHandles() {
		st, err := o.Session.Status(h)
		if err != nil {
			log.Printf("[orchestrator] failed to read status for %s: %v", h.InfoHash(), err)
			continue
		}
		o.Registry.Upsert(h, st)
	}
}

// shutdown runs the graceful shutdown sequence: drain every outstanding
// resume-data save, pause the session (if not already paused), then save
// session-wide state.
func (o *Orchestrator) shutdown() {
	log.Printf("[orchestrator] shutting down: draining resume data")
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	o.Resume.DrainOnShutdown(drainCtx, o.Session, func(a engine.Alert) {
		o.Dispatch.Handle(o.Session, a)
	})
	cancel()

	if !o.Session.IsPaused() {
		o.Session.TogglePause()
	}

	state, err := o.Session.SaveState()
	if err != nil {
		log.Printf("[orchestrator] failed to serialize session state: %v", err)
		return
	}
	if err := store.SaveFile(o.Store.SessionStateFilePath(), state); err != nil {
		log.Printf("[orchestrator] failed to write session state: %v", err)
	}
}
