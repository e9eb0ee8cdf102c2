// Command peridotd runs a Peridot chain node: gossip transport, worker
// pool, miner, and the HTTP control surface.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/api"
	"github.com/peridot-net/peridot-chain/internal/chain"
	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/miner"
	"github.com/peridot-net/peridot-chain/internal/node"
	"github.com/peridot-net/peridot-chain/internal/p2p"
	"github.com/peridot-net/peridot-chain/internal/storage"
)

func main() {
	cfg := config.ParseFlags(os.Args[1:])
	log.Init(cfg.LogLevel, cfg.LogJSON)

	// Deterministic genesis from the shared launch keys; chain and mempool
	// are constructed together so the launch outputs seed the UTXO set.
	genesis, err := chain.GenesisBlock(cfg.KeyDir)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("building genesis block")
	}
	state := node.NewState(genesis)
	log.Chain.Info().Str("genesis", genesis.Hash().String()).Msg("chain initialized")

	// Peer store: badger under the data directory, memory if unavailable.
	var db storage.DB
	if bdb, err := storage.NewBadger(cfg.PeersDir()); err == nil {
		db = bdb
		defer bdb.Close()
	} else {
		log.Storage.Warn().Err(err).Msg("peer store unavailable, using memory")
		db = storage.NewMemory()
	}

	// Transport.
	transport := p2p.New(p2p.Config{
		ListenAddr: cfg.P2PAddr,
		Seeds:      cfg.Seeds,
		NoDiscover: cfg.NoDiscover,
		DB:         db,
		DataDir:    cfg.DataDir,
	})
	if err := transport.Start(); err != nil {
		log.Logger.Fatal().Err(err).Msg("starting p2p transport")
	}
	defer transport.Stop()

	// Gossip worker pool over the transport's bounded inbound channel.
	workers := gossip.NewWorker(cfg.Workers, transport.Inbound(), state, transport)
	workers.Start()

	// Miner plus the worker that announces mined blocks.
	m := miner.New(state)
	m.Run()
	miner.NewWorker(m.Mined(), transport).Run()

	// HTTP control surface.
	server := api.New(cfg.APIAddr, state, m, transport)
	if err := server.Start(); err != nil {
		log.Logger.Fatal().Err(err).Msg("starting api server")
	}
	defer server.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Logger.Info().Msg("shutting down")
	m.Exit()
}
