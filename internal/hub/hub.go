// Package hub implements the WebSocket subscriber set: each joining client
// gets a full sync_stats snapshot, then a JSON-Patch delta roughly once per
// second thereafter. sync_ver increases strictly on every broadcast any
// subscriber observes.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/jsondiff"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/snapshot"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JoinMessage is the first frame a subscriber receives: the full current
// sync_stats document.
type JoinMessage struct {
	Version uint32 `json:"version"`
	ID      string `json:"id"`
	Body    any    `json:"body"`
}

// DeltaMessage is every subsequent frame: a JSON-Patch delta against the
// previously broadcast document.
type DeltaMessage struct {
	Version uint32        `json:"version"`
	Delta   bool          `json:"delta"`
	Body    []jsondiff.Op `json:"body"`
}

// Subscriber is one connected WebSocket client with its own outgoing FIFO
// queue, so a slow client falls behind on its own queue instead of blocking
// the broadcast to everyone else.
type Subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks connected subscribers and the broadcast/diff cycle.
type Hub struct {
	counters  *counters.Window
	registry  *registry.Registry
	startedAt time.Time

	mu          sync.Mutex
	subscribers map[uuid.UUID]*Subscriber
	syncVer     uint32
	prevDoc     map[string]any
}

// New returns a Hub sourcing its snapshots from cw and reg.
func New(cw *counters.Window, reg *registry.Registry, startedAt time.Time) *Hub {
	return &Hub{
		counters:    cw,
		registry:    reg,
		startedAt:   startedAt,
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a WebSocket and joins the new connection
// to the hub, sending it the current full snapshot before starting its
// pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}
	h.join(conn)
}

func (h *Hub) join(conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	ver := h.syncVer
	if h.prevDoc == nil {
		h.prevDoc = snapshot.BuildSyncStats(h.counters, h.registry, h.startedAt).AsMap()
	}
	doc := h.prevDoc
	h.mu.Unlock()

	msg, err := json.Marshal(JoinMessage{Version: ver, ID: sub.id.String(), Body: doc})
	if err != nil {
		log.Printf("[hub] failed to marshal join message: %v", err)
	} else {
		select {
		case sub.send <- msg:
		default:
			log.Printf("[hub] join message dropped for %s: send buffer full", sub.id)
		}
	}

	go sub.writePump()
	go sub.readPump()

	return sub
}

func (h *Hub) leave(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		close(sub.send)
	}
	h.mu.Unlock()
}

// Tick recomputes the current sync_stats document, diffs it against the
// last broadcast one, bumps sync_ver, and broadcasts the delta to every
// subscriber, even when the delta is empty. Call this roughly once per
// second from the orchestrator; Tick is a no-op when there are no
// subscribers, matching the original's "empty → skip" shortcut.
func (h *Hub) Tick() {
	if h.Count() == 0 {
		return
	}

	doc := snapshot.BuildSyncStats(h.counters, h.registry, h.startedAt).AsMap()

	h.mu.Lock()
	ops := jsondiff.Diff(h.prevDoc, doc)
	h.prevDoc = doc
	h.syncVer++
	ver := h.syncVer
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	msg, err := json.Marshal(DeltaMessage{Version: ver, Delta: true, Body: ops})
	if err != nil {
		log.Printf("[hub] failed to marshal delta message: %v", err)
		return
	}

	// Subscribers were snapshotted under the lock above; sending happens
	// outside it so one slow client can't stall the whole broadcast.
	for _, s := range subs {
		select {
		case s.send <- msg:
		default:
			log.Printf("[hub] delta dropped for %s: send buffer full", s.id)
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Subscriber) readPump() {
	defer s.hub.leave(s)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// This is a server-push feed; inbound client messages are read only
		// to drive the read deadline/pong handshake and are discarded.
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
