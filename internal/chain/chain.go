// Package chain implements the blockchain state machine: a content-addressed
// block store with longest-chain selection and depth-K finalization.
//
// Blockchain is a plain data structure. It is not safe for concurrent use;
// the node coordinator serializes access under its chain lock (see
// internal/node).
package chain

import (
	"fmt"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// BlockWithHeight is the stored form of a block. Height is the block's
// distance from genesis, needed when a sibling arrives off the tail.
type BlockWithHeight struct {
	Block  *block.Block
	Height uint32
}

// Blockchain tracks every block seen, the longest chain's tail, and the
// finalized block (the tail's ancestor at depth FinalizationDepth).
type Blockchain struct {
	blocks    map[types.Hash]*BlockWithHeight
	tail      types.Hash
	height    uint32
	finalized types.Hash
}

// New constructs a chain containing only the given genesis block, which
// becomes both tail and finalized at height 0.
func New(genesis *block.Block) *Blockchain {
	hash := genesis.Hash()
	bc := &Blockchain{
		blocks:    make(map[types.Hash]*BlockWithHeight),
		tail:      hash,
		finalized: hash,
	}
	bc.blocks[hash] = &BlockWithHeight{Block: genesis, Height: 0}
	return bc
}

// Insert adds a block whose parent is already in the store.
//
// It returns the updated finalized hash and notFork=false when the new
// finalization candidate is not a descendant of the previous finalized
// block — a fork that reorganized the finalized prefix, requiring a
// mempool UTXO rebuild.
//
// Inserting a block whose hash is already present is a no-op returning
// (true, finalized). Inserting a block whose parent is missing is a
// programming error — orphans belong in the block buffer — and panics.
func (bc *Blockchain) Insert(b *block.Block) (notFork bool, finalized types.Hash) {
	hash := b.Hash()
	if _, ok := bc.blocks[hash]; ok {
		return true, bc.finalized
	}

	parent, ok := bc.blocks[b.Parent()]
	if !ok {
		panic(fmt.Sprintf("chain: insert %s with missing parent %s", hash, b.Parent()))
	}

	height := parent.Height + 1
	bc.blocks[hash] = &BlockWithHeight{Block: b, Height: height}

	if b.Parent() == bc.tail {
		bc.tail = hash
		bc.height++
	} else if height > bc.height {
		// A fork outgrew the current chain. Ties keep the earlier tail:
		// only strictly greater height moves it.
		log.Chain.Info().
			Str("block", hash.Short()).
			Uint32("height", height).
			Msg("longer fork took over the tail")
		bc.tail = hash
		bc.height = height
	}

	if bc.height > config.FinalizationDepth {
		candidate := bc.ancestor(bc.tail, config.FinalizationDepth)
		notFork = bc.descends(candidate, bc.finalized)
		bc.finalized = candidate
		return notFork, bc.finalized
	}

	return true, bc.finalized
}

// Has reports whether a block with the given hash is stored.
func (bc *Blockchain) Has(hash types.Hash) bool {
	_, ok := bc.blocks[hash]
	return ok
}

// Get returns the stored block and its height.
func (bc *Blockchain) Get(hash types.Hash) (*BlockWithHeight, bool) {
	bwh, ok := bc.blocks[hash]
	return bwh, ok
}

// Tip returns the tail hash of the longest chain.
func (bc *Blockchain) Tip() types.Hash {
	return bc.tail
}

// Height returns the longest chain's height (genesis is 0).
func (bc *Blockchain) Height() uint32 {
	return bc.height
}

// Finalized returns the hash of the finalized block.
func (bc *Blockchain) Finalized() types.Hash {
	return bc.finalized
}

// Difficulty returns the tail's difficulty threshold. Difficulty is fixed
// from genesis, so every block on every branch carries the same value.
func (bc *Blockchain) Difficulty() types.Hash {
	return bc.blocks[bc.tail].Block.Header.Difficulty
}

// LongestChain returns the block hashes from genesis to the tail.
func (bc *Blockchain) LongestChain() []types.Hash {
	var hashes []types.Hash
	for hash := bc.tail; !hash.IsZero(); hash = bc.blocks[hash].Block.Parent() {
		hashes = append(hashes, hash)
	}
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
	return hashes
}

// BlocksGenesisToFinalized returns the blocks on the longest chain from
// genesis up to and including the finalized block. The mempool replays
// them to rebuild its UTXO set after a finalized-prefix fork.
func (bc *Blockchain) BlocksGenesisToFinalized() []*block.Block {
	var blocks []*block.Block
	for hash := bc.finalized; !hash.IsZero(); hash = bc.blocks[hash].Block.Parent() {
		blocks = append(blocks, bc.blocks[hash].Block)
	}
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks
}

// ancestor walks depth parents up from hash. Walking past genesis stops at
// genesis.
func (bc *Blockchain) ancestor(hash types.Hash, depth uint32) types.Hash {
	for i := uint32(0); i < depth; i++ {
		parent := bc.blocks[hash].Block.Parent()
		if parent.IsZero() {
			break
		}
		hash = parent
	}
	return hash
}

// descends reports whether ancestor is on the parent path of hash
// (inclusive).
func (bc *Blockchain) descends(hash, ancestor types.Hash) bool {
	for !hash.IsZero() {
		if hash == ancestor {
			return true
		}
		hash = bc.blocks[hash].Block.Parent()
	}
	return false
}
