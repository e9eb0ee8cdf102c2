package chain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

var (
	genesisOnce  sync.Once
	genesisBlock *block.Block
)

// testGenesis builds one genesis block for the whole package; the nonce
// search is cheap but not free.
func testGenesis() *block.Block {
	genesisOnce.Do(func() {
		hashes := []types.Hash{
			crypto.Hash([]byte("launch-a")),
			crypto.Hash([]byte("launch-b")),
			crypto.Hash([]byte("launch-c")),
		}
		genesisBlock = genesisFromHashes(hashes)
	})
	return genesisBlock
}

var testSeq uint64

// childOf mines an empty block on the given parent.
func childOf(parent types.Hash) *block.Block {
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

func TestGenesisDeterministic(t *testing.T) {
	g := testGenesis()
	assert.True(t, g.Parent().IsZero())
	assert.True(t, g.Header.MerkleRoot.IsZero())
	assert.True(t, g.MeetsDifficulty(config.GenesisDifficulty()))
	require.Len(t, g.Body.Txs, 1)
	assert.Empty(t, g.Body.Txs[0].Transaction.Inputs)
	require.Len(t, g.Body.Txs[0].Transaction.Outputs, 3)
	for _, out := range g.Body.Txs[0].Transaction.Outputs {
		assert.Equal(t, config.LaunchOutputValue, out.Value)
	}

	bc := New(g)
	assert.Equal(t, g.Hash(), bc.Tip())
	assert.Equal(t, g.Hash(), bc.Finalized())
	assert.Equal(t, uint32(0), bc.Height())
}

func TestLinearInsertTwenty(t *testing.T) {
	bc := New(testGenesis())

	blocks := make([]*block.Block, 0, 20)
	parent := bc.Tip()
	for i := 0; i < 20; i++ {
		b := childOf(parent)
		notFork, _ := bc.Insert(b)
		assert.True(t, notFork)
		blocks = append(blocks, b)
		parent = b.Hash()
	}

	assert.Equal(t, blocks[19].Hash(), bc.Tip())
	assert.Equal(t, uint32(20), bc.Height())
	assert.Len(t, bc.LongestChain(), 21)
	// Finalized is the tail's ancestor at depth K: block 14.
	assert.Equal(t, blocks[13].Hash(), bc.Finalized())

	finalizedBlocks := bc.BlocksGenesisToFinalized()
	assert.Len(t, finalizedBlocks, 15)
	assert.Equal(t, testGenesis().Hash(), finalizedBlocks[0].Hash())
	assert.Equal(t, blocks[13].Hash(), finalizedBlocks[14].Hash())
}

// Fork shape:
//
//	g -- b1 -- b2 -- b4
//	       \-- b3 -- b5 -- b6
func TestForkSwitchesTail(t *testing.T) {
	bc := New(testGenesis())

	b1 := childOf(bc.Tip())
	b2 := childOf(b1.Hash())
	b3 := childOf(b1.Hash())
	b4 := childOf(b2.Hash())
	bc.Insert(b1)
	bc.Insert(b2)
	bc.Insert(b3)
	bc.Insert(b4)
	assert.Equal(t, b4.Hash(), bc.Tip())
	assert.Equal(t, uint32(3), bc.Height())

	b5 := childOf(b3.Hash())
	bc.Insert(b5)
	// Tie at height 3: the earlier-seen tail wins.
	assert.Equal(t, b4.Hash(), bc.Tip())

	b6 := childOf(b5.Hash())
	bc.Insert(b6)
	assert.Equal(t, b6.Hash(), bc.Tip())

	chain := bc.LongestChain()
	require.Len(t, chain, 5)
	assert.Equal(t, []types.Hash{
		testGenesis().Hash(), b1.Hash(), b3.Hash(), b5.Hash(), b6.Hash(),
	}, chain)
}

func TestInsertIdempotent(t *testing.T) {
	bc := New(testGenesis())
	b := childOf(bc.Tip())

	bc.Insert(b)
	tip, height := bc.Tip(), bc.Height()

	notFork, finalized := bc.Insert(b)
	assert.True(t, notFork)
	assert.Equal(t, bc.Finalized(), finalized)
	assert.Equal(t, tip, bc.Tip())
	assert.Equal(t, height, bc.Height())
	assert.Len(t, bc.LongestChain(), 2)
}

func TestInsertMissingParentPanics(t *testing.T) {
	bc := New(testGenesis())
	var unknown types.Hash
	unknown[0] = 0xde
	orphan := childOf(unknown)
	assert.Panics(t, func() { bc.Insert(orphan) })
}

func TestFinalizedPrefixForkDetected(t *testing.T) {
	bc := New(testGenesis())

	// Branch A: 8 blocks. Finalized lands on a2.
	a := make([]*block.Block, 8)
	parent := bc.Tip()
	for i := range a {
		a[i] = childOf(parent)
		bc.Insert(a[i])
		parent = a[i].Hash()
	}
	require.Equal(t, a[1].Hash(), bc.Finalized())

	// Branch B grows from genesis. While shorter, the tail stays on A and
	// every insert reports notFork.
	parent = testGenesis().Hash()
	b := make([]*block.Block, 9)
	for i := 0; i < 8; i++ {
		b[i] = childOf(parent)
		notFork, _ := bc.Insert(b[i])
		assert.True(t, notFork, "insert b%d", i+1)
		assert.Equal(t, a[7].Hash(), bc.Tip())
		parent = b[i].Hash()
	}

	// The ninth block makes B the longest chain; the new finalization
	// candidate (b3) does not descend from a2.
	b[8] = childOf(parent)
	notFork, finalized := bc.Insert(b[8])
	assert.False(t, notFork)
	assert.Equal(t, b[2].Hash(), finalized)
	assert.Equal(t, b[8].Hash(), bc.Tip())
	assert.Equal(t, finalized, bc.Finalized())
}

func TestFinalizationMonotoneOnLinearGrowth(t *testing.T) {
	bc := New(testGenesis())

	var prevHeight uint32
	parent := bc.Tip()
	for i := 0; i < 15; i++ {
		notFork, finalized := bc.Insert(childOf(parent))
		require.True(t, notFork)
		fwh, ok := bc.Get(finalized)
		require.True(t, ok)
		assert.GreaterOrEqual(t, fwh.Height, prevHeight)
		prevHeight = fwh.Height
		parent = bc.Tip()
	}
}

// Random insert orders over a random tree keep the structural invariants:
// every non-genesis block's parent is present, and the tail's parent walk
// has exactly height+1 steps.
func TestStructuralInvariantsRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bc := New(testGenesis())
		known := []types.Hash{bc.Tip()}

		n := rapid.IntRange(1, 25).Draw(t, "inserts")
		for i := 0; i < n; i++ {
			parent := rapid.SampledFrom(known).Draw(t, "parent")
			b := childOf(parent)
			bc.Insert(b)
			known = append(known, b.Hash())
		}

		for _, hash := range known {
			bwh, ok := bc.Get(hash)
			require.True(t, ok)
			if !bwh.Block.Parent().IsZero() {
				assert.True(t, bc.Has(bwh.Block.Parent()))
			}
		}
		assert.Len(t, bc.LongestChain(), int(bc.Height())+1)

		// Finalized is on the longest chain.
		onChain := false
		for _, h := range bc.LongestChain() {
			if h == bc.Finalized() {
				onChain = true
				break
			}
		}
		assert.True(t, onChain)
	})
}
