// Package api is the thin HTTP/WebSocket translation layer over the session
// orchestrator core: it has no business logic of its own, routes with
// github.com/gorilla/mux the way the teacher's own router does, and
// delegates every call straight into internal/engine, internal/registry,
// internal/dispatch, internal/resume, and internal/hub.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/dispatch"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/hub"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/resume"
)

// Server is the HTTP API server: the session/torrent REST surface plus the
// WebSocket upgrade, routed over a single mux.Router and a single listener.
type Server struct {
	router *mux.Router
	server *http.Server

	sess      engine.Session
	reg       *registry.Registry
	disp      *dispatch.Dispatcher
	rp        *resume.Pipeline
	cw        *counters.Window
	hub       *hub.Hub
	startedAt time.Time
	webUIRoot string
}

// NewServer builds a Server wired to the already-constructed core. webUIRoot
// may be empty, in which case no static web UI is served.
func NewServer(sess engine.Session, reg *registry.Registry, disp *dispatch.Dispatcher, rp *resume.Pipeline, cw *counters.Window, h *hub.Hub, startedAt time.Time, webUIRoot string) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		sess:      sess,
		reg:       reg,
		disp:      disp,
		rp:        rp,
		cw:        cw,
		hub:       h,
		startedAt: startedAt,
		webUIRoot: webUIRoot,
	}
	s.setupRoutes()
	return s
}

// setupRoutes wires spec.md §6.2's endpoint table plus the WebSocket upgrade
// and optional static web UI, in the teacher's own route-then-subrouter
// ordering: global middleware, the exact API surface, then catch-alls.
func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware)
	s.router.Use(corsMiddleware)

	hexVar := fmt.Sprintf("{hex:[0-9a-f]{%d}}", 40)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSessionInfo).Methods(http.MethodGet)
	api.HandleFunc("/session/stats", s.handleSessionStats).Methods(http.MethodGet)
	api.HandleFunc("/session/toggle", s.handleSessionToggle).Methods(http.MethodPut)
	api.HandleFunc("/sync/stats", s.handleSyncStats).Methods(http.MethodGet)
	api.HandleFunc("/torrents", s.handleListTorrents).Methods(http.MethodGet)
	api.HandleFunc("/torrents", s.handleAddTorrent).Methods(http.MethodPost)
	api.HandleFunc("/torrent/"+hexVar, s.handleTorrentExists).Methods(http.MethodHead)
	api.HandleFunc("/torrent/"+hexVar, s.handleGetTorrent).Methods(http.MethodGet)
	api.HandleFunc("/torrent/"+hexVar+"/peers", s.handleGetPeers).Methods(http.MethodGet)
	api.HandleFunc("/torrent/"+hexVar+"/files", s.handleGetFiles).Methods(http.MethodGet)
	api.HandleFunc("/torrent/"+hexVar, s.handleDropTorrent).Methods(http.MethodDelete)
	api.HandleFunc("/torrent/"+hexVar+"/{flag:yes|with_data}", s.handleDropTorrent).Methods(http.MethodDelete)
	api.HandleFunc("/torrent/"+hexVar+"/{action:pause|resume|toggle|start}", s.handleTorrentAction).Methods(http.MethodPut)

	// GET /api/* that isn't one of the routes above upgrades to WebSocket,
	// matching spec.md §6.2's "WebSocket at /api/*" surface.
	s.router.PathPrefix("/api/").Methods(http.MethodGet).HandlerFunc(s.hub.ServeHTTP)

	if s.webUIRoot != "" {
		s.router.PathPrefix("/").Handler(spaHandler{staticDir: s.webUIRoot})
	}
}

// Start runs the HTTP server until it is closed or fails to bind.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("[api] listening on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("[api] shutting down")
	return s.server.Shutdown(ctx)
}

// spaHandler serves a static web UI directory, falling back to index.html
// for unknown paths so a client-side router still resolves deep links.
type spaHandler struct {
	staticDir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticDir, r.URL.Path)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
		return
	}
	http.FileServer(http.Dir(h.staticDir)).ServeHTTP(w, r)
}
