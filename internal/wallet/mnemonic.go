// Package wallet implements the standalone wallet: key management and a
// client for the node's HTTP surface.
package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks word count, word list, and checksum per BIP-39.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// KeyFromMnemonic derives the wallet's Ed25519 keypair from a mnemonic and
// passphrase: the first 32 bytes of the BIP-39 seed become the key seed.
func KeyFromMnemonic(mnemonic, passphrase string) (*crypto.KeyPair, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return crypto.KeyFromSeed(seed[:32])
}
