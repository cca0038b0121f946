// Package node provides a reusable launchpad node that can be embedded
// in any binary (daemon, tests, etc.).
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/metrics"
	"github.com/Klingon-tech/klingnet-launchpad/internal/relayer"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpc"
	"github.com/Klingon-tech/klingnet-launchpad/internal/sink"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Key prefixes separating the ledger from node-local bookkeeping in the
// shared database.
var (
	prefixLedger = []byte("l/")
	prefixSink   = []byte("sink/")
)

// Node is a fully-initialized launchpad node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db      storage.Store
	ledger  *ledger.Ledger
	factory types.Address
	netKey  *crypto.PrivateKey
	relayer *relayer.Relayer

	// Observability
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sink     *sink.Sink

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, ledger, coprocessor, relayer, metrics, sink)
// but does NOT start serving. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" && cfg.Storage.Engine != config.StorageMemory {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "launchpad.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	owner, err := genesis.OwnerAddress()
	if err != nil {
		return nil, fmt.Errorf("genesis owner: %w", err)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("owner", owner.String()).
		Msg("Starting Launchpad Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	// ── 4. Coprocessor key ──────────────────────────────────────────
	netKey, err := fhe.LoadOrCreateKey(expandHome(cfg.CoprocessorKeyPath()))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load coprocessor key: %w", err)
	}
	cop, err := fhe.NewCoprocessor(netKey)
	if err != nil {
		db.Close()
		netKey.Zero()
		return nil, fmt.Errorf("create coprocessor: %w", err)
	}

	// ── 5. Ledger ───────────────────────────────────────────────────
	l, err := ledger.New(storage.NewPrefixDB(db, prefixLedger))
	if err != nil {
		db.Close()
		netKey.Zero()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.RegisterKind(token.Kind, token.New(cop))
	l.RegisterKind(factory.Kind, factory.New())

	err = l.InitFromGenesis(genesis, func(tx *ledger.Txn) error {
		_, err := factory.Install(tx)
		return err
	})
	if err != nil {
		db.Close()
		netKey.Zero()
		return nil, fmt.Errorf("init from genesis: %w", err)
	}
	factoryAddr := crypto.ContractAddress(owner, 0)
	if kind, err := l.KindOf(factoryAddr); err != nil || kind != factory.Kind {
		db.Close()
		netKey.Zero()
		return nil, fmt.Errorf("no factory at %s", factoryAddr)
	}
	logger.Info().
		Uint64("height", l.Height()).
		Str("factory", factoryAddr.String()).
		Msg("Ledger ready")

	// ── 6. Relayer ──────────────────────────────────────────────────
	rl := relayer.New(l, cop, genesis.Protocol.Relayer.MaxConsentDays)

	// ── 7. Metrics ──────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	m.Attach(l)

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		logger:   logger,
		db:       db,
		ledger:   l,
		factory:  factoryAddr,
		netKey:   netKey,
		relayer:  rl,
		registry: registry,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}

	// ── 8. Event sink ───────────────────────────────────────────────
	if cfg.Sink.Enabled {
		pg, err := sink.OpenPostgres(ctx, cfg.Sink.DSN)
		if err != nil {
			n.Stop()
			return nil, fmt.Errorf("open event sink: %w", err)
		}
		n.sink, err = sink.New(l, pg, storage.NewPrefixDB(db, prefixSink), cfg.Sink.Buffer)
		if err != nil {
			pg.Close()
			n.Stop()
			return nil, fmt.Errorf("create event sink: %w", err)
		}
	}

	// ── 9. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(rpcAddr, l, genesis, factoryAddr, rl, cfg.RPC)
		if cfg.Metrics.Enabled {
			n.rpcServer.SetMetrics(registry, cfg.Metrics.Path)
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// Start begins serving RPC and mirroring events.
func (n *Node) Start() error {
	if n.sink != nil {
		n.sink.Start(n.ctx)
	}
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC: %w", err)
		}
		n.logger.Info().
			Str("addr", n.rpcServer.Addr()).
			Bool("metrics", n.cfg.Metrics.Enabled).
			Msg("RPC server started")
	}

	n.logger.Info().
		Uint64("height", n.ledger.Height()).
		Bool("sink", n.sink != nil).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.sink != nil {
		n.sink.Stop()
	}
	if n.netKey != nil {
		n.netKey.Zero()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Height returns the current ledger height.
func (n *Node) Height() uint64 {
	return n.ledger.Height()
}

// Ledger returns the node's ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// FactoryAddress returns the address of the launchpad factory.
func (n *Node) FactoryAddress() types.Address {
	return n.factory
}

// Genesis returns the genesis the ledger was initialized from.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}
