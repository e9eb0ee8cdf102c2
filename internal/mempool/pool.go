// Package mempool manages pending transactions and the UTXO view they
// spend against.
//
// The UTXO map reflects the chain state at the last finalized block, minus
// outpoints reserved by pending transactions. Pool is a plain data
// structure; the node coordinator serializes access under its mempool lock
// (see internal/node).
package mempool

import (
	"errors"
	"fmt"

	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Admission errors.
var (
	// ErrNoSuchOutpoint means an input references an outpoint not in the
	// UTXO set.
	ErrNoSuchOutpoint = errors.New("no such outpoint in utxo set")
	// ErrDoubleSpend means an input's outpoint is already reserved by a
	// pending transaction.
	ErrDoubleSpend = errors.New("double spend in mempool")
	// ErrInvalidTx means the transaction failed witness or fee
	// verification.
	ErrInvalidTx = errors.New("invalid transaction")
)

// UTXO is an unspent output plus its mempool reservation flag.
type UTXO struct {
	Output   tx.Output
	Reserved bool
}

// Entry pairs an outpoint with its UTXO, for queries.
type Entry struct {
	Outpoint types.Outpoint
	Output   tx.Output
	Reserved bool
}

// Pool holds pending transactions in arrival order and the UTXO set they
// are validated against.
type Pool struct {
	txs          []*tx.SignedTransaction
	utxo         map[types.Outpoint]*UTXO
	syncedHeight uint32
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{utxo: make(map[types.Outpoint]*UTXO)}
}

// AddUTXO inserts a UTXO entry directly. Genesis initialization seeds the
// launch outputs through this; tests use it too.
func (p *Pool) AddUTXO(op types.Outpoint, u UTXO) {
	p.utxo[op] = &u
}

// ResolveInputs maps each input of the transaction to its UTXO entry, in
// input order. It fails with ErrNoSuchOutpoint for an unknown outpoint and
// ErrDoubleSpend for one already reserved by a pending transaction.
func (p *Pool) ResolveInputs(stx *tx.SignedTransaction) ([]tx.Output, error) {
	return p.resolve(stx, true)
}

// resolve is ResolveInputs with the reservation check optional: pending
// revalidation resolves a transaction's own reserved entries.
func (p *Pool) resolve(stx *tx.SignedTransaction, rejectReserved bool) ([]tx.Output, error) {
	outputs := make([]tx.Output, 0, len(stx.Transaction.Inputs))
	for _, in := range stx.Transaction.Inputs {
		u, ok := p.utxo[in.Outpoint()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchOutpoint, in.Outpoint())
		}
		if rejectReserved && u.Reserved {
			return nil, fmt.Errorf("%w: %s", ErrDoubleSpend, in.Outpoint())
		}
		outputs = append(outputs, u.Output)
	}
	return outputs, nil
}

// AddTx validates and admits a pending transaction: resolve its inputs,
// verify witnesses and fee, reserve the spent outpoints, append.
func (p *Pool) AddTx(stx *tx.SignedTransaction) error {
	outputs, err := p.ResolveInputs(stx)
	if err != nil {
		return err
	}
	if err := stx.Verify(outputs); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}

	for _, in := range stx.Transaction.Inputs {
		p.utxo[in.Outpoint()].Reserved = true
	}
	p.txs = append(p.txs, stx)

	log.Mempool.Debug().
		Str("tx", stx.TxHash().Short()).
		Int("pending", len(p.txs)).
		Msg("transaction admitted")
	return nil
}

// ProposeBlockBody snapshots the whole pending list as a block body and
// returns it with its merkle root and total fee. There is no size cap and
// no reordering: transactions ride in arrival order.
func (p *Pool) ProposeBlockBody() (*block.Body, types.Hash, uint64) {
	txs := make([]*tx.SignedTransaction, len(p.txs))
	copy(txs, p.txs)

	var totalFee uint64
	for _, stx := range txs {
		totalFee += uint64(stx.Fee)
	}

	body := &block.Body{TxCount: uint32(len(txs)), Txs: txs}
	return body, block.MerkleRoot(txs), totalFee
}

// QueryByPKHash returns every UTXO entry paying the given public-key hash.
func (p *Pool) QueryByPKHash(pkh types.Hash) []Entry {
	var entries []Entry
	for op, u := range p.utxo {
		if u.Output.PKHash == pkh {
			entries = append(entries, Entry{Outpoint: op, Output: u.Output, Reserved: u.Reserved})
		}
	}
	return entries
}

// Entries returns a snapshot of the full UTXO set.
func (p *Pool) Entries() []Entry {
	entries := make([]Entry, 0, len(p.utxo))
	for op, u := range p.utxo {
		entries = append(entries, Entry{Outpoint: op, Output: u.Output, Reserved: u.Reserved})
	}
	return entries
}

// Pending returns a snapshot of the pending transactions in arrival order.
func (p *Pool) Pending() []*tx.SignedTransaction {
	txs := make([]*tx.SignedTransaction, len(p.txs))
	copy(txs, p.txs)
	return txs
}

// PendingCount returns the number of pending transactions.
func (p *Pool) PendingCount() int {
	return len(p.txs)
}

// UTXOCount returns the size of the UTXO set.
func (p *Pool) UTXOCount() int {
	return len(p.utxo)
}

// SyncedHeight returns the height of the last finalized block merged into
// the UTXO set.
func (p *Pool) SyncedHeight() uint32 {
	return p.syncedHeight
}

// SetSyncedHeight records the height of the last merged finalized block.
func (p *Pool) SetSyncedHeight(h uint32) {
	p.syncedHeight = h
}

// ReceiveFinalizedBlock merges a newly finalized block into the UTXO set:
//
//  1. pending transactions included in the block are dropped (the block
//     wins);
//  2. every output of every block transaction becomes a fresh unreserved
//     UTXO entry;
//  3. every input's outpoint is removed.
//
// Outputs are added before inputs are removed so in-block chains of
// dependent transactions resolve: an output created and spent by the same
// block appears and is then deleted. Surviving pending transactions are
// revalidated afterwards.
func (p *Pool) ReceiveFinalizedBlock(b *block.Block) {
	confirmed := make(map[types.Hash]bool, len(b.Body.Txs))
	for _, stx := range b.Body.Txs {
		confirmed[stx.TxHash()] = true
	}
	kept := p.txs[:0]
	for _, stx := range p.txs {
		if !confirmed[stx.TxHash()] {
			kept = append(kept, stx)
		}
	}
	p.txs = kept

	for _, stx := range b.Body.Txs {
		txHash := stx.TxHash()
		for i, out := range stx.Transaction.Outputs {
			p.utxo[types.Outpoint{TxID: txHash, Index: uint32(i)}] = &UTXO{Output: out}
		}
	}
	for _, stx := range b.Body.Txs {
		for _, in := range stx.Transaction.Inputs {
			delete(p.utxo, in.Outpoint())
		}
	}

	p.checkPending()
}

// checkPending revalidates every pending transaction against the updated
// UTXO set and drops the ones that no longer resolve or verify. A dropped
// transaction's reservations on still-present entries are released.
func (p *Pool) checkPending() {
	kept := p.txs[:0]
	for _, stx := range p.txs {
		outputs, err := p.resolve(stx, false)
		if err == nil {
			err = stx.Verify(outputs)
		}
		if err != nil {
			log.Mempool.Debug().
				Str("tx", stx.TxHash().Short()).
				Err(err).
				Msg("dropping stale pending transaction")
			p.release(stx)
			continue
		}
		kept = append(kept, stx)
	}
	p.txs = kept
}

// release clears the reservation on each of the transaction's inputs whose
// UTXO entry still exists.
func (p *Pool) release(stx *tx.SignedTransaction) {
	for _, in := range stx.Transaction.Inputs {
		if u, ok := p.utxo[in.Outpoint()]; ok {
			u.Reserved = false
		}
	}
}

// RebuildUTXO wipes the pool and replays the given finalized prefix from
// genesis, reconstructing the UTXO set after a fork invalidated the old
// finalized state.
func (p *Pool) RebuildUTXO(blocks []*block.Block) {
	log.Mempool.Warn().
		Int("blocks", len(blocks)).
		Msg("rebuilding utxo set after finalized-prefix fork")
	p.txs = nil
	p.utxo = make(map[types.Outpoint]*UTXO)
	for _, b := range blocks {
		p.ReceiveFinalizedBlock(b)
	}
}
