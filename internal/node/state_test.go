package node

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/chain"
	"github.com/peridot-net/peridot-chain/internal/ico"
	"github.com/peridot-net/peridot-chain/internal/mempool"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

var (
	genesisOnce  sync.Once
	genesisBlock *block.Block
)

func testState(t *testing.T) *State {
	t.Helper()
	genesisOnce.Do(func() {
		dir := t.TempDir()
		require.NoError(t, ico.Generate(dir))
		var err error
		genesisBlock, err = chain.GenesisBlock(dir)
		require.NoError(t, err)
	})
	return NewState(genesisBlock)
}

var testSeq uint64

func solvedChild(parent types.Hash) *block.Block {
	testSeq++
	header := &block.Header{
		Parent:     parent,
		Difficulty: config.GenesisDifficulty(),
		Timestamp:  config.GenesisTimestamp + testSeq,
	}
	b := block.New(header, nil)
	for !b.MeetsDifficulty(header.Difficulty) {
		header.Nonce++
	}
	return b
}

// unsolvedChild returns a block that fails the proof-of-work check.
func unsolvedChild(parent types.Hash) *block.Block {
	testSeq++
	header := &block.Header{
		Parent:     parent,
		Difficulty: config.GenesisDifficulty(),
		Timestamp:  config.GenesisTimestamp + testSeq,
	}
	b := block.New(header, nil)
	for b.MeetsDifficulty(header.Difficulty) {
		header.Nonce++
	}
	return b
}

func TestGenesisSeedsMempool(t *testing.T) {
	s := testState(t)

	s.ReadPool(func(p *mempool.Pool) {
		assert.Equal(t, 3, p.UTXOCount())
		launch := genesisBlock.Body.Txs[0]
		for i := range launch.Transaction.Outputs {
			entries := p.QueryByPKHash(launch.Transaction.Outputs[i].PKHash)
			require.NotEmpty(t, entries)
			assert.Equal(t, launch.TxHash(), entries[0].Outpoint.TxID)
		}
	})
}

func TestOrphanResolution(t *testing.T) {
	s := testState(t)

	b2 := solvedChild(s.Tip())
	b3 := solvedChild(b2.Hash())

	// Child arrives before parent: parked, not inserted.
	assert.False(t, s.SendBlock(b3))
	assert.Equal(t, 1, s.OrphanCount())
	assert.False(t, s.HasBlock(b3.Hash()))

	// Parent arrives: both land and the tip advances past the orphan.
	assert.True(t, s.SendBlock(b2))
	assert.True(t, s.HasBlock(b2.Hash()))
	assert.True(t, s.HasBlock(b3.Hash()))
	assert.Equal(t, b3.Hash(), s.Tip())
	assert.Zero(t, s.OrphanCount())
}

func TestOrphanChainDrains(t *testing.T) {
	s := testState(t)

	b1 := solvedChild(s.Tip())
	b2 := solvedChild(b1.Hash())
	b3 := solvedChild(b2.Hash())

	assert.False(t, s.SendBlock(b3))
	assert.False(t, s.SendBlock(b2))
	assert.Equal(t, 2, s.OrphanCount())

	assert.True(t, s.SendBlock(b1))
	assert.Equal(t, b3.Hash(), s.Tip())
	assert.Zero(t, s.OrphanCount())
}

func TestInvalidPoWDropped(t *testing.T) {
	s := testState(t)

	weak := unsolvedChild(s.Tip())
	assert.True(t, s.SendBlock(weak), "parent was known")
	assert.False(t, s.HasBlock(weak.Hash()))
	assert.Equal(t, s.Tip(), genesisBlock.Hash())
}

func TestInvalidPoWOrphanDiscardedWhenAdopted(t *testing.T) {
	s := testState(t)

	b1 := solvedChild(s.Tip())
	weak := unsolvedChild(b1.Hash())

	assert.False(t, s.SendBlock(weak))
	assert.Equal(t, 1, s.OrphanCount())

	assert.True(t, s.SendBlock(b1))
	// The orphan found its parent, failed the PoW check, and was discarded.
	assert.Zero(t, s.OrphanCount())
	assert.False(t, s.HasBlock(weak.Hash()))
	assert.Equal(t, b1.Hash(), s.Tip())
}

func TestFinalizationReachesMempool(t *testing.T) {
	s := testState(t)

	// Seven blocks: height 7 > K, so the block at height 1 finalizes and
	// its (empty) body merges; synced height follows.
	parent := s.Tip()
	for i := 0; i < 7; i++ {
		b := solvedChild(parent)
		require.True(t, s.SendBlock(b))
		parent = b.Hash()
	}

	s.ReadChain(func(bc *chain.Blockchain) {
		assert.Equal(t, uint32(7), bc.Height())
		fwh, ok := bc.Get(bc.Finalized())
		require.True(t, ok)
		assert.Equal(t, uint32(1), fwh.Height)
	})
	s.ReadPool(func(p *mempool.Pool) {
		assert.Equal(t, uint32(1), p.SyncedHeight())
		// Empty finalized blocks leave the launch outputs untouched.
		assert.Equal(t, 3, p.UTXOCount())
	})
}

func TestMinedInsertAdvancesChain(t *testing.T) {
	s := testState(t)

	b := solvedChild(s.Tip())
	s.InsertMined(b)
	assert.Equal(t, b.Hash(), s.Tip())

	// Idempotent: inserting the same block again changes nothing.
	s.InsertMined(b)
	s.ReadChain(func(bc *chain.Blockchain) {
		assert.Equal(t, uint32(1), bc.Height())
	})
}
