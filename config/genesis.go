package config

import "github.com/peridot-net/peridot-chain/pkg/types"

// Protocol constants. These must match across all nodes: they pin the
// genesis block's identity and the finalization rule.
const (
	// FinalizationDepth is how many blocks below the tip a block must be
	// before the mempool treats it as irreversible.
	FinalizationDepth = 6

	// GenesisTimestamp is the fixed genesis header timestamp
	// (2023-10-01T00:00:00Z).
	GenesisTimestamp uint64 = 1696118400

	// LaunchOutputValue is the value of each of the three launch outputs.
	LaunchOutputValue uint64 = 1_000_000
)

// GenesisDifficulty returns the fixed difficulty threshold: the two most
// significant bytes zero, the remaining thirty 0xff. Difficulty never
// adjusts; every block carries this value.
func GenesisDifficulty() types.Hash {
	var d types.Hash
	for i := 2; i < types.HashSize; i++ {
		d[i] = 0xff
	}
	return d
}
