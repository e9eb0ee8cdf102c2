// Package block defines block types and the proof-of-work check.
package block

import (
	"encoding/binary"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Header contains block metadata. The header hash is the block's identity.
type Header struct {
	Parent     types.Hash `json:"parent"`
	Difficulty types.Hash `json:"difficulty"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Nonce      uint32     `json:"nonce"`
}

// SigningBytes returns the canonical bytes for hashing.
// Format: parent(32) | difficulty(32) | merkle_root(32) | timestamp(8) | nonce(4)
// Integers little-endian.
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 108)
	buf = append(buf, h.Parent[:]...)
	buf = append(buf, h.Difficulty[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}
