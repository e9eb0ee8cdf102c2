package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/peridot-net/peridot-chain/pkg/types"
)

// KeyPair wraps an Ed25519 private key for signing transactions.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// GenerateKey creates a new random Ed25519 keypair.
func GenerateKey() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyFromSeed derives a keypair from a 32-byte seed.
func KeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign produces an Ed25519 signature over the message.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// PublicKey returns the raw 32-byte public key.
func (k *KeyPair) PublicKey() []byte {
	return k.priv.Public().(ed25519.PublicKey)
}

// PubKeyHash returns the P2PKH address of the keypair's public key.
func (k *KeyPair) PubKeyHash() types.Hash {
	return PubKeyHash(k.PublicKey())
}

// MarshalPKCS8 serializes the private key as PKCS#8 DER.
func (k *KeyPair) MarshalPKCS8() ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(k.priv)
}

// VerifySignature checks an Ed25519 signature against a message and a raw
// 32-byte public key. Returns false on any error, including a malformed key.
func VerifySignature(msg, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature)
}

// KeyFromPKCS8 parses a PKCS#8 DER blob into an Ed25519 keypair.
func KeyFromPKCS8(der []byte) (*KeyPair, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 key")
	}
	return &KeyPair{priv: priv}, nil
}

// LoadKeyFile reads a PKCS#8 DER file and returns the Ed25519 keypair in it.
func LoadKeyFile(path string) (*KeyPair, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := KeyFromPKCS8(der)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// SaveKeyFile writes the private key to path as PKCS#8 DER, mode 0600.
func (k *KeyPair) SaveKeyFile(path string) error {
	der, err := k.MarshalPKCS8()
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	return os.WriteFile(path, der, 0600)
}
