package wallet

import (
	"fmt"
	"os"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
)

// SaveKey writes the keypair's PKCS#8 form to path, encrypted under the
// passphrase.
func SaveKey(key *crypto.KeyPair, path string, passphrase []byte) error {
	der, err := key.MarshalPKCS8()
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	blob, err := encrypt(der, passphrase)
	if err != nil {
		return fmt.Errorf("encrypt key: %w", err)
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// LoadKey reads and decrypts a wallet key file.
func LoadKey(path string, passphrase []byte) (*crypto.KeyPair, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	der, err := decrypt(blob, passphrase)
	if err != nil {
		return nil, err
	}
	return crypto.KeyFromPKCS8(der)
}
