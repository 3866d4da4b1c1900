// Package ltengine adapts github.com/anacrolix/torrent to the
// internal/engine.Session contract. It is the one concrete engine this repo
// runs with; every other package under internal/ depends on
// internal/engine's interfaces, never on this package.
package ltengine

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/storage"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
)

// defaultMaxConnPerTorrent mirrors internal/dispatch.DefaultMaxConnectionsPerTorrent;
// kept as its own constant so ltengine doesn't import the dispatcher.
const defaultMaxConnPerTorrent = 50

// Config configures a new Engine.
type Config struct {
	DataDir            string
	ListenPort         int
	NoDHT              bool
	DHTBootstrapNodes  []string
	CompletionCacheDir string
	PeerIDPrefix       string
}

// trackedState is the last-observed state ltengine diffed a torrent against,
// used to synthesize alerts on the next PopAlerts since anacrolix/torrent has
// no native alert queue.
type trackedState struct {
	hasInfo  bool
	finished bool
	paused   bool
}

var _ engine.Session = (*Engine)(nil)

// Engine wraps a torrent.Client and synthesizes the engine.Session alert and
// resume-data contracts anacrolix/torrent doesn't provide natively.
type Engine struct {
	client  *torrent.Client
	boltDB  storage.ClientImplCloser
	peerID  string

	mu                sync.Mutex
	queue             []engine.Alert
	state             map[codec.InfoHash]*trackedState
	needSave          map[codec.InfoHash]bool
	rateSamples       map[codec.InfoHash]rateSample
	sessionPaused     bool
	maxConnPerTorrent int

	pendingStateUpdate  bool
	pendingSessionStats bool
	pendingDHTStats     bool
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	clientCfg := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientCfg.DataDir = cfg.DataDir
	}
	clientCfg.Seed = true
	clientCfg.ListenPort = cfg.ListenPort
	clientCfg.NoDHT = cfg.NoDHT

	if !cfg.NoDHT && len(cfg.DHTBootstrapNodes) > 0 {
		clientCfg.DhtStartingNodes = dhtStartingNodesFunc(cfg.DHTBootstrapNodes)
	}

	var boltDB storage.ClientImplCloser
	if cfg.CompletionCacheDir != "" {
		if err := os.MkdirAll(cfg.CompletionCacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("ltengine: create completion cache dir: %w", err)
		}
		db, err := storage.NewBoltDB(cfg.CompletionCacheDir)
		if err != nil {
			return nil, fmt.Errorf("ltengine: open piece completion cache: %w", err)
		}
		boltDB = db
		clientCfg.DefaultStorage = boltDB
	}

	cl, err := torrent.NewClient(clientCfg)
	if err != nil {
		if boltDB != nil {
			boltDB.Close()
		}
		return nil, fmt.Errorf("ltengine: create torrent client: %w", err)
	}

	return &Engine{
		client:            cl,
		boltDB:            boltDB,
		peerID:            cfg.PeerIDPrefix,
		state:             make(map[codec.InfoHash]*trackedState),
		needSave:          make(map[codec.InfoHash]bool),
		rateSamples:       make(map[codec.InfoHash]rateSample),
		maxConnPerTorrent: defaultMaxConnPerTorrent,
	}, nil
}

// dhtStartingNodesFunc resolves a fixed set of bootstrap node addresses,
// overriding anacrolix/dht's default bootstrap server list with the
// operator-supplied one (spec.md §6.3's --dht-bootstrap-nodes).
func dhtStartingNodesFunc(nodes []string) func(network string) dht.StartingNodesGetter {
	return func(network string) dht.StartingNodesGetter {
		return func() ([]dht.Addr, error) {
			addrs := make([]dht.Addr, 0, len(nodes))
			for _, n := range nodes {
				udpAddr, err := net.ResolveUDPAddr(network, n)
				if err != nil {
					log.Printf("[ltengine] skipping invalid dht bootstrap node %q: %v", n, err)
					continue
				}
				addrs = append(addrs, dht.NewAddr(udpAddr))
			}
			return addrs, nil
		}
	}
}

// PeerID returns the configured peer-ID prefix for this session.
func (e *Engine) PeerID() string { return e.peerID }

// ListenPort returns the local TCP port the torrent client is listening on.
func (e *Engine) ListenPort() int { return e.client.LocalPort() }

// sessionState is the bencoded record SaveState/LoadState round-trip,
// recording the session-wide settings that don't belong to any one torrent's
// resume record.
type sessionState struct {
	Paused            bool   `bencode:"paused"`
	MaxConnPerTorrent int    `bencode:"max_conn_per_torrent"`
	PeerIDPrefix      string `bencode:"peer_id_prefix"`
}

// SaveState serializes session-wide settings for persistence across restarts.
func (e *Engine) SaveState() ([]byte, error) {
	e.mu.Lock()
	st := sessionState{
		Paused:            e.sessionPaused,
		MaxConnPerTorrent: e.maxConnPerTorrent,
		PeerIDPrefix:      e.peerID,
	}
	e.mu.Unlock()
	return bencode.Marshal(st)
}

// Close drops every torrent and shuts down the underlying client and piece
// completion cache.
func (e *Engine) Close() error {
	for _, t := range e.client.Torrents() {
		t.Drop()
	}
	errs := e.client.Close()
	if e.boltDB != nil {
		e.boltDB.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// now exists so tests can't accidentally depend on wall-clock behavior
// leaking into alert synthesis timing; kept trivial on purpose.
func now() time.Time { return time.Now() }
