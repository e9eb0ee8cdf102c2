package miner

import (
	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Worker announces mined blocks to the network. The mining loop inserts
// blocks itself; this goroutine only broadcasts their hashes.
type Worker struct {
	mined     <-chan *block.Block
	broadcast gossip.Broadcaster
}

// NewWorker creates the announcement worker over the miner's output
// channel.
func NewWorker(mined <-chan *block.Block, broadcast gossip.Broadcaster) *Worker {
	return &Worker{mined: mined, broadcast: broadcast}
}

// Run starts the worker goroutine; it exits when the mined channel closes.
func (w *Worker) Run() {
	go w.loop()
}

func (w *Worker) loop() {
	for b := range w.mined {
		hash := b.Hash()
		if err := w.broadcast.Broadcast(gossip.NewBlockHashes([]types.Hash{hash})); err != nil {
			log.Miner.Warn().Str("block", hash.Short()).Err(err).Msg("block announcement failed")
			continue
		}
		log.Miner.Debug().Str("block", hash.Short()).Msg("announced mined block")
	}
}
