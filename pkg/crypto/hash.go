// Package crypto provides the hashing and signature primitives for Peridot.
package crypto

import (
	"crypto/sha256"

	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Hash computes a SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// PubKeyHash derives the pay-to-public-key-hash address of a raw Ed25519
// public key: SHA-256 of its 32 bytes.
func PubKeyHash(pubKey []byte) types.Hash {
	return Hash(pubKey)
}

// HashConcat hashes the concatenation of two hashes, left then right.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], a[:])
	copy(buf[types.HashSize:], b[:])
	return Hash(buf[:])
}
