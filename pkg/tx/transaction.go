// Package tx defines the transaction types and their verification rules.
//
// The coin uses a minimal pay-to-public-key-hash model: an input names an
// outpoint, and the witness at the same position carries the public key
// whose hash the spent output pays, plus an Ed25519 signature over the
// unsigned transaction.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// Input references the UTXO being spent.
type Input struct {
	SourceTxHash types.Hash `json:"source_tx_hash"`
	Index        uint32     `json:"index"`
}

// Outpoint returns the input's outpoint key.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: in.SourceTxHash, Index: in.Index}
}

// Output pays Value to the holder of the key hashing to PKHash.
type Output struct {
	PKHash types.Hash `json:"pk_hash"`
	Value  uint64     `json:"value"`
}

// Witness authorizes one input: a raw public key and an Ed25519 signature
// over the unsigned transaction.
type Witness struct {
	PubKey    []byte `json:"pubkey"`
	Signature []byte `json:"signature"`
}

// witnessJSON hex-encodes the byte fields.
type witnessJSON struct {
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature"`
}

// MarshalJSON encodes the witness with hex byte fields.
func (w Witness) MarshalJSON() ([]byte, error) {
	return json.Marshal(witnessJSON{
		PubKey:    hex.EncodeToString(w.PubKey),
		Signature: hex.EncodeToString(w.Signature),
	})
}

// UnmarshalJSON decodes a witness with hex byte fields.
func (w *Witness) UnmarshalJSON(data []byte) error {
	var j witnessJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	pk, err := hex.DecodeString(j.PubKey)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return err
	}
	w.PubKey = pk
	w.Signature = sig
	return nil
}

// Transaction is the unsigned spend: inputs consumed, outputs created.
type Transaction struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// SigningBytes returns the canonical byte representation of the unsigned
// transaction. This is what gets hashed for the txid and what each witness
// signs.
// Format: input_count(4) | [source(32) + index(4)]... | output_count(4) | [pk_hash(32) + value(8)]...
// All integers little-endian.
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 8+36*len(t.Inputs)+40*len(t.Outputs))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.SourceTxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.Index)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, out.PKHash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	}

	return buf
}

// Hash computes the transaction ID. Witnesses and fee are excluded so the
// ID is stable under signing.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// TotalOutputValue returns the sum of all output values.
func (t *Transaction) TotalOutputValue() uint64 {
	var total uint64
	for _, out := range t.Outputs {
		total += out.Value
	}
	return total
}

// SignedTransaction is a transaction plus its declared fee and one witness
// per input.
type SignedTransaction struct {
	Transaction Transaction `json:"transaction"`
	Fee         uint32      `json:"fee"`
	Witnesses   []Witness   `json:"witnesses"`
}

// encodeBytes returns the canonical encoding of the full signed transaction:
// the unsigned transaction, the fee, then length-prefixed witnesses.
func (s *SignedTransaction) encodeBytes() []byte {
	buf := s.Transaction.SigningBytes()
	buf = binary.LittleEndian.AppendUint32(buf, s.Fee)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Witnesses)))
	for _, w := range s.Witnesses {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w.PubKey)))
		buf = append(buf, w.PubKey...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w.Signature)))
		buf = append(buf, w.Signature...)
	}
	return buf
}

// TxHash returns the transaction ID (hash of the unsigned transaction).
// Outpoints created by this transaction are keyed by it.
func (s *SignedTransaction) TxHash() types.Hash {
	return s.Transaction.Hash()
}

// Hash returns the witness transaction ID: the hash of the full encoding
// including fee and witnesses. Merkle leaves are witness IDs.
func (s *SignedTransaction) Hash() types.Hash {
	return crypto.Hash(s.encodeBytes())
}

// Sign produces a witness for the transaction with the given key.
func Sign(t *Transaction, key *crypto.KeyPair) Witness {
	return Witness{
		PubKey:    key.PublicKey(),
		Signature: key.Sign(t.SigningBytes()),
	}
}
