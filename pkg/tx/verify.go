package tx

import (
	"errors"
	"fmt"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
)

// Verification errors.
var (
	ErrWitnessCount = errors.New("witness count does not match input count")
	ErrKeyMismatch  = errors.New("witness key does not hash to the spent output's pk hash")
	ErrBadSignature = errors.New("invalid witness signature")
	ErrFeeMismatch  = errors.New("declared fee does not equal inputs minus outputs")
)

// Verify checks the signed transaction against the outputs its inputs
// resolve to, in input order:
//
//  1. one witness per input;
//  2. witness i's public key hashes to resolved[i].PKHash;
//  3. every witness signature verifies over the unsigned transaction;
//  4. sum(resolved values) - sum(output values) equals the declared fee.
func (s *SignedTransaction) Verify(resolved []Output) error {
	if len(s.Witnesses) != len(s.Transaction.Inputs) {
		return fmt.Errorf("%w: %d witnesses for %d inputs",
			ErrWitnessCount, len(s.Witnesses), len(s.Transaction.Inputs))
	}
	if len(resolved) != len(s.Transaction.Inputs) {
		return fmt.Errorf("resolved %d outputs for %d inputs", len(resolved), len(s.Transaction.Inputs))
	}

	for i, w := range s.Witnesses {
		if crypto.PubKeyHash(w.PubKey) != resolved[i].PKHash {
			return fmt.Errorf("input %d: %w", i, ErrKeyMismatch)
		}
	}

	msg := s.Transaction.SigningBytes()
	for i, w := range s.Witnesses {
		if !crypto.VerifySignature(msg, w.Signature, w.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrBadSignature)
		}
	}

	var in, out uint64
	for _, o := range resolved {
		in += o.Value
	}
	out = s.Transaction.TotalOutputValue()
	if out > in || in-out != uint64(s.Fee) {
		return fmt.Errorf("%w: inputs %d, outputs %d, fee %d", ErrFeeMismatch, in, out, s.Fee)
	}

	return nil
}
