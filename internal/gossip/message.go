// Package gossip implements the peer message vocabulary and the worker
// pool that drives the chain from the wire.
package gossip

import (
	"encoding/json"
	"fmt"

	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// MsgType identifies the message variant.
type MsgType uint8

// Message variants.
const (
	MsgPing MsgType = iota + 1
	MsgPong
	MsgNewBlockHashes
	MsgGetBlocks
	MsgBlocks
)

// String returns the variant name for logging.
func (t MsgType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgNewBlockHashes:
		return "new_block_hashes"
	case MsgGetBlocks:
		return "get_blocks"
	case MsgBlocks:
		return "blocks"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Message is the wire envelope. The type tag selects which payload field
// is meaningful; the others stay empty.
type Message struct {
	Type   MsgType        `json:"type"`
	Nonce  string         `json:"nonce,omitempty"`
	Hashes []types.Hash   `json:"hashes,omitempty"`
	Blocks []*block.Block `json:"blocks,omitempty"`
}

// NewPing builds a Ping message.
func NewPing(nonce string) *Message {
	return &Message{Type: MsgPing, Nonce: nonce}
}

// NewPong builds a Pong reply echoing the nonce.
func NewPong(nonce string) *Message {
	return &Message{Type: MsgPong, Nonce: nonce}
}

// NewBlockHashes builds a block-hash announcement.
func NewBlockHashes(hashes []types.Hash) *Message {
	return &Message{Type: MsgNewBlockHashes, Hashes: hashes}
}

// NewGetBlocks builds a block request.
func NewGetBlocks(hashes []types.Hash) *Message {
	return &Message{Type: MsgGetBlocks, Hashes: hashes}
}

// NewBlocks builds a block delivery.
func NewBlocks(blocks []*block.Block) *Message {
	return &Message{Type: MsgBlocks, Blocks: blocks}
}

// Encode serializes the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message, rejecting unknown variant tags.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Type < MsgPing || m.Type > MsgBlocks {
		return nil, fmt.Errorf("unknown message type %d", m.Type)
	}
	return &m, nil
}
