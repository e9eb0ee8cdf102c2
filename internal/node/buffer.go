package node

import (
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// orphanSet holds blocks whose parent is not yet known, keyed by block
// hash. Guarded by State.bufMu.
type orphanSet struct {
	blocks map[types.Hash]*block.Block
}

func newOrphanSet() *orphanSet {
	return &orphanSet{blocks: make(map[types.Hash]*block.Block)}
}

func (o *orphanSet) add(b *block.Block) {
	o.blocks[b.Hash()] = b
}

func (o *orphanSet) remove(hash types.Hash) {
	delete(o.blocks, hash)
}

func (o *orphanSet) len() int {
	return len(o.blocks)
}

// snapshot returns the buffered blocks; the drain loop iterates a copy so
// it can remove entries as it goes.
func (o *orphanSet) snapshot() []*block.Block {
	out := make([]*block.Block, 0, len(o.blocks))
	for _, b := range o.blocks {
		out = append(out, b)
	}
	return out
}
