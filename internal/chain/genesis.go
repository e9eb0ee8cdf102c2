package chain

import (
	"fmt"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/ico"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// GenesisBlock deterministically constructs the genesis block from the
// launch key files in keyDir. Every node on the network computes the same
// block: the body is one transaction with no inputs and three launch
// outputs, the header is fixed, and the nonce is searched from zero.
func GenesisBlock(keyDir string) (*block.Block, error) {
	hashes, err := ico.PubKeyHashes(keyDir)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return genesisFromHashes(hashes), nil
}

func genesisFromHashes(pkHashes []types.Hash) *block.Block {
	outputs := make([]tx.Output, len(pkHashes))
	for i, pkh := range pkHashes {
		outputs[i] = tx.Output{PKHash: pkh, Value: config.LaunchOutputValue}
	}
	launch := &tx.SignedTransaction{
		Transaction: tx.Transaction{Outputs: outputs},
	}

	header := &block.Header{
		Difficulty: config.GenesisDifficulty(),
		Timestamp:  config.GenesisTimestamp,
	}
	b := block.New(header, []*tx.SignedTransaction{launch})

	for !b.MeetsDifficulty(header.Difficulty) {
		header.Nonce++
	}
	return b
}
