package block

import (
	"github.com/peridot-net/peridot-chain/pkg/merkle"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Body carries the block's transactions. TxCount must equal len(Txs).
type Body struct {
	TxCount uint32                  `json:"tx_count"`
	Txs     []*tx.SignedTransaction `json:"txs"`
}

// Block is a header plus a body, identified by the header hash.
type Block struct {
	Header *Header `json:"header"`
	Body   *Body   `json:"body"`
}

// New creates a block from a header and transactions, filling in the body's
// count.
func New(header *Header, txs []*tx.SignedTransaction) *Block {
	return &Block{
		Header: header,
		Body:   &Body{TxCount: uint32(len(txs)), Txs: txs},
	}
}

// Hash returns the block identity: the header hash.
func (b *Block) Hash() types.Hash {
	return b.Header.Hash()
}

// Parent returns the parent block hash from the header.
func (b *Block) Parent() types.Hash {
	return b.Header.Parent
}

// MeetsDifficulty reports whether the block's hash beats the given
// threshold, interpreting both as big-endian 256-bit integers.
func (b *Block) MeetsDifficulty(difficulty types.Hash) bool {
	return b.Hash().Less(difficulty)
}

// MerkleRoot computes the merkle root over the body's witness transaction
// IDs. An empty body commits to the zero hash.
func MerkleRoot(txs []*tx.SignedTransaction) types.Hash {
	if len(txs) == 0 {
		return types.Hash{}
	}
	leaves := make([]types.Hash, len(txs))
	for i, t := range txs {
		leaves[i] = t.Hash()
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		// Unreachable: leaves is non-empty.
		panic(err)
	}
	return tree.Root()
}
