// Package node owns the shared chain state and the block insertion
// pipeline.
//
// The Blockchain and Mempool are plain structures; State wraps each in a
// mutex and adds the orphan buffer with a third. The lock order is fixed
// everywhere: buffer → chain → mempool. The gossip workers, the miner, and
// the HTTP surface all mutate or read through State, so no caller can
// observe a block in the chain whose finalization effect has not reached
// the mempool.
package node

import (
	"sync"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/chain"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/mempool"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// State is the process-wide chain/mempool pair plus the orphan buffer.
type State struct {
	bufMu   sync.Mutex
	chainMu sync.Mutex
	poolMu  sync.Mutex

	orphans *orphanSet
	chain   *chain.Blockchain
	pool    *mempool.Pool
}

// NewState builds the genesis chain and a mempool seeded with the genesis
// block's launch outputs.
func NewState(genesis *block.Block) *State {
	s := &State{
		orphans: newOrphanSet(),
		chain:   chain.New(genesis),
		pool:    mempool.New(),
	}

	launch := genesis.Body.Txs[0]
	txHash := launch.TxHash()
	for i, out := range launch.Transaction.Outputs {
		s.pool.AddUTXO(types.Outpoint{TxID: txHash, Index: uint32(i)}, mempool.UTXO{Output: out})
	}
	return s
}

// SendBlock routes a block into the chain. If the parent is unknown the
// block is parked in the orphan buffer and SendBlock returns false;
// otherwise the block is pushed through the insertion pipeline (which also
// drains any orphans it unblocks) and SendBlock returns true.
func (s *State) SendBlock(b *block.Block) bool {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	if !s.chain.Has(b.Parent()) {
		s.orphans.add(b)
		log.Chain.Debug().
			Str("block", b.Hash().Short()).
			Str("parent", b.Parent().Short()).
			Int("buffered", s.orphans.len()).
			Msg("parked orphan block")
		return false
	}

	s.pushBlock(b)
	return true
}

// pushBlock inserts a block whose parent is known, then drains the orphan
// buffer until a full scan adopts nothing. Orphans whose proof of work
// fails are discarded once their parent arrives. Caller holds bufMu and
// chainMu.
func (s *State) pushBlock(b *block.Block) {
	// A parented block with invalid proof of work is dropped outright.
	if !b.MeetsDifficulty(s.chain.Difficulty()) {
		log.Chain.Warn().
			Str("block", b.Hash().Short()).
			Msg("dropping block with invalid proof of work")
		return
	}

	s.insertWithPool(b)

	for {
		adopted := false
		for _, orphan := range s.orphans.snapshot() {
			if !s.chain.Has(orphan.Parent()) {
				continue
			}
			if orphan.MeetsDifficulty(s.chain.Difficulty()) {
				s.insertWithPool(orphan)
				adopted = true
			}
			s.orphans.remove(orphan.Hash())
		}
		if !adopted {
			return
		}
	}
}

// InsertMined runs the atomic insert step for a locally mined block, whose
// parent is always present.
func (s *State) InsertMined(b *block.Block) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	s.insertWithPool(b)
}

// insertWithPool is the atomic chain-insert-with-mempool-update step.
// Caller holds chainMu; the mempool lock is taken for the whole step so
// the pair mutates together.
func (s *State) insertWithPool(b *block.Block) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	notFork, finalized := s.chain.Insert(b)
	fwh, ok := s.chain.Get(finalized)
	if !ok {
		panic("chain: finalized block missing from store")
	}

	if !notFork {
		s.pool.RebuildUTXO(s.chain.BlocksGenesisToFinalized())
		s.pool.SetSyncedHeight(fwh.Height)
		return
	}

	if s.chain.Height() > config.FinalizationDepth && fwh.Height > s.pool.SyncedHeight() {
		s.pool.ReceiveFinalizedBlock(fwh.Block)
		s.pool.SetSyncedHeight(fwh.Height)
		log.Chain.Debug().
			Str("finalized", finalized.Short()).
			Uint32("height", fwh.Height).
			Msg("merged finalized block into mempool")
	}
}

// HasBlock reports whether the chain stores the given block.
func (s *State) HasBlock(hash types.Hash) bool {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return s.chain.Has(hash)
}

// GetBlock returns a stored block.
func (s *State) GetBlock(hash types.Hash) (*block.Block, bool) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	bwh, ok := s.chain.Get(hash)
	if !ok {
		return nil, false
	}
	return bwh.Block, true
}

// Tip returns the current longest-chain tail.
func (s *State) Tip() types.Hash {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return s.chain.Tip()
}

// Difficulty returns the current difficulty threshold.
func (s *State) Difficulty() types.Hash {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return s.chain.Difficulty()
}

// ReadChain runs fn with the chain lock held. fn must not retain the
// pointer.
func (s *State) ReadChain(fn func(*chain.Blockchain)) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	fn(s.chain)
}

// ReadPool runs fn with the mempool lock held. fn must not retain the
// pointer.
func (s *State) ReadPool(fn func(*mempool.Pool)) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	fn(s.pool)
}

// AddTx admits a transaction into the mempool.
func (s *State) AddTx(stx *tx.SignedTransaction) error {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.pool.AddTx(stx)
}

// ProposeBlockBody snapshots the mempool as a block body.
func (s *State) ProposeBlockBody() (*block.Body, types.Hash, uint64) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.pool.ProposeBlockBody()
}

// OrphanCount returns the number of buffered orphan blocks.
func (s *State) OrphanCount() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.orphans.len()
}
