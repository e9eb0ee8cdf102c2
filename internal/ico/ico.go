// Package ico loads the launch keypairs that back the genesis allocation.
//
// The three PKCS#8 key files (alice.key, bob.key, caro.key) are shared by
// every node on a network: the genesis block pays its launch outputs to
// their public-key hashes, so nodes with different key files compute
// different genesis blocks and cannot peer.
package ico

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// KeyFiles are the launch key file names, in allocation order.
var KeyFiles = []string{"alice.key", "bob.key", "caro.key"}

// Load reads the three launch keypairs from dir.
func Load(dir string) ([]*crypto.KeyPair, error) {
	keys := make([]*crypto.KeyPair, 0, len(KeyFiles))
	for _, name := range KeyFiles {
		key, err := crypto.LoadKeyFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load launch key %s: %w", name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// PubKeyHashes loads the launch keys and returns their P2PKH addresses in
// allocation order.
func PubKeyHashes(dir string) ([]types.Hash, error) {
	keys, err := Load(dir)
	if err != nil {
		return nil, err
	}
	hashes := make([]types.Hash, len(keys))
	for i, key := range keys {
		hashes[i] = key.PubKeyHash()
	}
	return hashes, nil
}

// Generate writes three fresh launch key files into dir, refusing to
// overwrite existing ones.
func Generate(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	for _, name := range KeyFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("key file %s already exists", path)
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		if err := key.SaveKeyFile(path); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
