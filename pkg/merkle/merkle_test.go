package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

func leafHashes(n int) []types.Hash {
	hashes := make([]types.Hash, n)
	for i := range hashes {
		hashes[i] = crypto.Hash([]byte{byte(i), byte(i >> 8)})
	}
	return hashes
}

func TestEmptyTreeRejected(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestSingleLeafRoot(t *testing.T) {
	leaves := leafHashes(1)
	tree, err := New(leaves)
	require.NoError(t, err)
	assert.Equal(t, leaves[0], tree.Root())

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.True(t, Verify(tree.Root(), leaves[0], proof, 0, 1))
}

func TestTwoLeafRoot(t *testing.T) {
	leaves := leafHashes(2)
	tree, err := New(leaves)
	require.NoError(t, err)
	assert.Equal(t, crypto.HashConcat(leaves[0], leaves[1]), tree.Root())
}

func TestOddLevelDuplicatesLast(t *testing.T) {
	leaves := leafHashes(3)
	tree, err := New(leaves)
	require.NoError(t, err)

	left := crypto.HashConcat(leaves[0], leaves[1])
	right := crypto.HashConcat(leaves[2], leaves[2])
	assert.Equal(t, crypto.HashConcat(left, right), tree.Root())
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		leaves := leafHashes(n)
		tree, err := New(leaves)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			require.NoError(t, err)
			assert.True(t, Verify(tree.Root(), leaves[i], proof, i, n),
				"n=%d i=%d", n, i)
		}
	}
}

func TestProofIndexOutOfRange(t *testing.T) {
	tree, err := New(leafHashes(4))
	require.NoError(t, err)
	_, err = tree.Proof(4)
	assert.Error(t, err)
	_, err = tree.Proof(-1)
	assert.Error(t, err)
}

func TestVerifyRejectsTampering(t *testing.T) {
	n := 6
	leaves := leafHashes(n)
	tree, err := New(leaves)
	require.NoError(t, err)

	i := 3
	proof, err := tree.Proof(i)
	require.NoError(t, err)

	// Flip one bit of the proof.
	bad := make([]types.Hash, len(proof))
	copy(bad, proof)
	bad[0][0] ^= 0x01
	assert.False(t, Verify(tree.Root(), leaves[i], bad, i, n))

	// Flip the leaf.
	leaf := leaves[i]
	leaf[31] ^= 0x80
	assert.False(t, Verify(tree.Root(), leaf, proof, i, n))

	// Flip the root.
	root := tree.Root()
	root[0] ^= 0x01
	assert.False(t, Verify(root, leaves[i], proof, i, n))

	// Index beyond the leaf count must fail even with a valid chain.
	assert.False(t, Verify(tree.Root(), leaves[i], proof, i, i))
}

func TestProofRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "n")
		leaves := make([]types.Hash, n)
		for i := range leaves {
			copy(leaves[i][:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "leaf"))
		}
		tree, err := New(leaves)
		require.NoError(t, err)

		i := rapid.IntRange(0, n-1).Draw(t, "i")
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		assert.True(t, Verify(tree.Root(), leaves[i], proof, i, n))
	})
}
