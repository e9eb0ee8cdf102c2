package wallet

import (
	"fmt"
	"sort"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// BuildSpend selects inputs from the wallet's UTXO entries to pay amount
// to recipient with the given fee, returning change to the wallet key.
// Selection is smallest-first to keep the UTXO set compact.
func BuildSpend(key *crypto.KeyPair, entries []UTXOEntry, recipient types.Hash, amount uint64, fee uint32) (*tx.SignedTransaction, error) {
	need := amount + uint64(fee)

	sorted := make([]UTXOEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Output.Value < sorted[j].Output.Value
	})

	var inputs []tx.Input
	var gathered uint64
	for _, e := range sorted {
		txid, err := types.HexToHash(e.TxHash)
		if err != nil {
			return nil, fmt.Errorf("bad utxo entry %q: %w", e.TxHash, err)
		}
		inputs = append(inputs, tx.Input{SourceTxHash: txid, Index: e.Index})
		gathered += e.Output.Value
		if gathered >= need {
			break
		}
	}
	if gathered < need {
		return nil, fmt.Errorf("insufficient funds: have %d, need %d", gathered, need)
	}

	outputs := []tx.Output{{PKHash: recipient, Value: amount}}
	if change := gathered - need; change > 0 {
		outputs = append(outputs, tx.Output{PKHash: key.PubKeyHash(), Value: change})
	}

	transaction := tx.Transaction{Inputs: inputs, Outputs: outputs}
	witnesses := make([]tx.Witness, len(inputs))
	for i := range inputs {
		witnesses[i] = tx.Sign(&transaction, key)
	}

	return &tx.SignedTransaction{
		Transaction: transaction,
		Fee:         fee,
		Witnesses:   witnesses,
	}, nil
}
