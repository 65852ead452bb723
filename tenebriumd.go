package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/tenebrium/tenebriumd/blockchain"
	"github.com/tenebrium/tenebriumd/config"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/logger"
	"github.com/tenebrium/tenebriumd/mempool"
	"github.com/tenebrium/tenebriumd/signal"
	"github.com/tenebrium/tenebriumd/util/panics"
	"github.com/tenebrium/tenebriumd/util/profiling"
	"github.com/tenebrium/tenebriumd/version"
)

const dbDirname = "db"

// tenebriumd wraps the daemon's core services: the database, the chain state
// and the transaction pool. The p2p transport and RPC surfaces feed candidate
// blocks and transactions into these from the outside.
type tenebriumd struct {
	databaseContext *dbaccess.DatabaseContext
	chain           *blockchain.Chain
	txPool          *mempool.TxPool

	started, shutdown int32
}

// startApp loads the configuration, brings the node up, and blocks until an
// interrupt requests shutdown.
func startApp() error {
	defer panics.HandlePanic(log, nil)

	err := config.LoadAndSetActiveConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	cfg := config.ActiveConfig()
	defer logger.BackendLog.Close()

	log.Infof("Version %s", version.Version())

	interrupt := signal.InterruptListener()

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		profiling.Start(cfg.Profile, log)
	}

	node, err := newTenebriumd(cfg)
	if err != nil {
		log.Errorf("Unable to start tenebriumd: %+v", err)
		return err
	}
	defer func() {
		err := node.stop()
		if err != nil {
			log.Errorf("Error stopping tenebriumd: %+v", err)
		}
	}()
	node.start()

	<-interrupt
	return nil
}

// newTenebriumd opens the data directory and assembles the node's services.
func newTenebriumd(cfg *config.Config) (*tenebriumd, error) {
	dbPath := filepath.Join(cfg.DataDir, dbDirname)
	err := os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		return nil, err
	}
	log.Infof("Loading database from '%s'", dbPath)
	databaseContext, err := dbaccess.New(dbPath)
	if err != nil {
		return nil, err
	}

	chain, err := blockchain.New(&blockchain.Config{
		DatabaseContext: databaseContext,
		Params:          cfg.ActiveNetParams,
		TxIDVersion:     cfg.TxIDVersion,
	})
	if err != nil {
		databaseContext.Close()
		return nil, err
	}

	txPool := mempool.New(&mempool.Config{
		UTXOSnapshot: chain.UTXOSnapshot,
		TxIDVersion:  cfg.TxIDVersion,
	})

	return &tenebriumd{
		databaseContext: databaseContext,
		chain:           chain,
		txPool:          txPool,
	}, nil
}

// start launches the node's services.
func (t *tenebriumd) start() {
	if atomic.AddInt32(&t.started, 1) != 1 {
		return
	}
	log.Infof("Node started on %s: tip %s at height %d",
		t.chain.Params().Name, t.chain.TipHash(), t.chain.TipHeight())
}

// stop gracefully shuts down the node's services.
func (t *tenebriumd) stop() error {
	if atomic.AddInt32(&t.shutdown, 1) != 1 {
		log.Infof("Tenebriumd is already in the process of shutting down")
		return nil
	}
	log.Warnf("Tenebriumd shutting down")
	return t.databaseContext.Close()
}
