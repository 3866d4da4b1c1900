// Command kedged is the BitTorrent session orchestrator daemon: it wires the
// engine adapter, the session core (registry/dispatch/resume/watch/hub), the
// HTTP/WebSocket API, and Prometheus export into one running process.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liut/kedge/internal/api"
	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/config"
	"github.com/liut/kedge/internal/counters"
	"github.com/liut/kedge/internal/dispatch"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/engine/ltengine"
	"github.com/liut/kedge/internal/hub"
	"github.com/liut/kedge/internal/orchestrator"
	"github.com/liut/kedge/internal/promexport"
	"github.com/liut/kedge/internal/registry"
	"github.com/liut/kedge/internal/resume"
	"github.com/liut/kedge/internal/store"
	"github.com/liut/kedge/internal/watch"
)

// metricsRefreshInterval is how often promexport.Refresh re-reads the core's
// gauges; decoupled from orchestrator.EngineTick and orchestrator.BroadcastTick
// since Prometheus scrapes on its own schedule and this is purely additive
// read-only bookkeeping, never a driver of engine state.
const metricsRefreshInterval = 2 * time.Second

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, help, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if help {
		return
	}

	log.Printf("Starting kedged v%s...", Version)
	log.Printf("  Listens: %s", cfg.Listens)
	log.Printf("  Store root: %s", cfg.StoreRoot)
	if cfg.MovedRoot != "" {
		log.Printf("  Moved root: %s", cfg.MovedRoot)
	}
	if cfg.WebUIRoot != "" {
		log.Printf("  Web UI root: %s", cfg.WebUIRoot)
	}
	log.Printf("  Conf dir: %s", cfg.ConfDir)
	log.Printf("  Peer ID prefix: %s", cfg.PeerIDPrefix)
	if len(cfg.DHTBootstrapNodes) > 0 {
		log.Printf("  DHT bootstrap nodes: %v", cfg.DHTBootstrapNodes)
	}

	if !store.PrepareDirs(cfg.ConfDir) {
		log.Fatalf("failed to prepare conf directory %q", cfg.ConfDir)
	}
	st := store.New(cfg.ConfDir)

	if err := os.MkdirAll(cfg.StoreRoot, 0o755); err != nil {
		log.Fatalf("failed to create store root %q: %v", cfg.StoreRoot, err)
	}

	sess, err := ltengine.New(ltengine.Config{
		DataDir:            cfg.StoreRoot,
		ListenPort:         listenPort(cfg.Listens),
		DHTBootstrapNodes:  cfg.DHTBootstrapNodes,
		CompletionCacheDir: filepath.Join(cfg.ConfDir, "completion-cache"),
		PeerIDPrefix:       cfg.PeerIDPrefix,
	})
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	defer sess.Close()

	startedAt := time.Now()
	resumeFromDisk(sess, st)

	cw := counters.NewWindow()
	reg := registry.New()
	rp := resume.New(st)
	disp := dispatch.New(cw, rp)
	w := watch.New(st.WatchDirPath())
	w.Start()
	defer w.Close()
	h := hub.New(cw, reg, startedAt)

	orch := orchestrator.New(sess, reg, disp, rp, w, h, st)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	promexport.Register(prometheus.DefaultRegisterer)
	go runMetricsRefresh(ctx, cw, reg, disp, rp, h)

	apiServer := api.NewServer(sess, reg, disp, rp, cw, h, startedAt, cfg.WebUIRoot)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Start(config.HTTPAddr)
	}()

	metricsSrv := &http.Server{Addr: metricsAddr(config.HTTPAddr), Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	log.Println("kedged is running")

	select {
	case err := <-apiErr:
		if err != nil {
			log.Printf("api server error: %v", err)
		}
		cancel()
	case <-ctx.Done():
	}

	<-orchDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down api server: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down metrics server: %v", err)
	}

	log.Println("kedged stopped")
}

// resumeFromDisk re-adds every torrent with a saved .resume file, skipping
// (and logging) any that fail to decode or re-add rather than aborting
// startup over one corrupt record.
func resumeFromDisk(sess engine.Session, st *store.Store) {
	entries, err := os.ReadDir(st.ResumeDirPath())
	if err != nil {
		log.Printf("[kedged] failed to list resume directory: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !codec.IsResumeFile(e.Name()) {
			continue
		}
		path := filepath.Join(st.ResumeDirPath(), e.Name())
		data, err := store.LoadFile(path, 0)
		if err != nil {
			log.Printf("[kedged] failed to read resume file %q: %v", path, err)
			continue
		}
		params, paused, err := ltengine.DecodeResumeRecord(data)
		if err != nil {
			log.Printf("[kedged] failed to decode resume file %q: %v", path, err)
			continue
		}
		h, err := sess.AddFromResume(params)
		if err != nil {
			log.Printf("[kedged] failed to re-add torrent from resume file %q: %v", path, err)
			continue
		}
		if paused {
			if err := sess.Pause(h); err != nil {
				log.Printf("[kedged] failed to re-pause resumed torrent %s: %v", params.InfoHash, err)
			}
		}
	}
}

// runMetricsRefresh populates the Prometheus gauges on a fixed cadence until
// ctx is done.
func runMetricsRefresh(ctx context.Context, cw *counters.Window, reg *registry.Registry, disp *dispatch.Dispatcher, rp *resume.Pipeline, h *hub.Hub) {
	ticker := time.NewTicker(metricsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			promexport.Refresh(cw, reg, disp, rp, h)
		}
	}
}

// listenPort extracts the numeric port from a "host:port" listens string,
// returning 0 (auto-pick) if it can't be parsed.
func listenPort(listens string) int {
	_, portStr, err := net.SplitHostPort(listens)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// metricsAddr derives the /metrics listen address from the API address by
// incrementing its port by one, keeping both HTTP surfaces on loopback
// without requiring a second CLI flag outside spec.md's exact flag table.
func metricsAddr(apiAddr string) string {
	host, portStr, err := net.SplitHostPort(apiAddr)
	if err != nil {
		return apiAddr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return apiAddr
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1))
}
