// Package merkle implements the merkle tree used for block commitments.
package merkle

import (
	"errors"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// ErrEmptyTree is returned when building a tree over zero leaves.
var ErrEmptyTree = errors.New("merkle tree needs at least one leaf")

// Tree is a merkle tree over a sequence of leaf hashes. Levels with an odd
// number of elements (other than the root level) duplicate their last
// element before pairing.
type Tree struct {
	levels [][]types.Hash // levels[0] are the leaves, last level is the root
	leaves int            // leaf count before padding
}

// New builds a tree over the given leaf hashes.
func New(leafHashes []types.Hash) (*Tree, error) {
	if len(leafHashes) == 0 {
		return nil, ErrEmptyTree
	}

	level := make([]types.Hash, len(leafHashes))
	copy(level, leafHashes)

	t := &Tree{leaves: len(leafHashes)}
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
			t.levels[len(t.levels)-1] = level
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		t.levels = append(t.levels, next)
		level = next
	}

	return t, nil
}

// Root returns the merkle root. A single-leaf tree's root is the leaf hash.
func (t *Tree) Root() types.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Leaves returns the number of leaves the tree was built over.
func (t *Tree) Leaves() int {
	return t.leaves
}

// Proof returns the sibling hashes for the leaf at index i, ordered from
// the leaf level up.
func (t *Tree) Proof(i int) ([]types.Hash, error) {
	if i < 0 || i >= t.leaves {
		return nil, errors.New("merkle proof index out of range")
	}

	var proof []types.Hash
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		sibling := idx ^ 1
		proof = append(proof, t.levels[level][sibling])
		idx >>= 1
	}
	return proof, nil
}

// Verify replays a proof for leafHash at index i in a tree of n leaves and
// reports whether it reproduces root. The concatenation order at each level
// follows the parity of the shifted index.
func Verify(root, leafHash types.Hash, proof []types.Hash, i, n int) bool {
	if i < 0 || n <= 0 || i >= n {
		return false
	}

	acc := leafHash
	idx := i
	for _, sibling := range proof {
		if idx%2 == 0 {
			acc = crypto.HashConcat(acc, sibling)
		} else {
			acc = crypto.HashConcat(sibling, acc)
		}
		idx >>= 1
	}
	return acc == root
}
