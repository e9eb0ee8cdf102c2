package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

func TestMnemonicKeyDerivation(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	assert.True(t, ValidateMnemonic(mnemonic))

	a, err := KeyFromMnemonic(mnemonic, "pass")
	require.NoError(t, err)
	b, err := KeyFromMnemonic(mnemonic, "pass")
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	// A different passphrase yields a different key.
	c, err := KeyFromMnemonic(mnemonic, "other")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())

	_, err = KeyFromMnemonic("not a mnemonic", "")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	data := []byte("secret key material")
	blob, err := encrypt(data, []byte("hunter2"))
	require.NoError(t, err)

	back, err := decrypt(blob, []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, data, back)

	_, err = decrypt(blob, []byte("wrong"))
	assert.Error(t, err)

	blob[len(blob)-1] ^= 0x01
	_, err = decrypt(blob, []byte("hunter2"))
	assert.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.key")
	require.NoError(t, SaveKey(key, path, []byte("pw")))

	loaded, err := LoadKey(path, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())

	_, err = LoadKey(path, []byte("nope"))
	assert.Error(t, err)
}

func TestBuildSpend(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := crypto.Hash([]byte("them"))

	txid := crypto.Hash([]byte("funding"))
	entries := []UTXOEntry{
		{TxHash: txid.String(), Index: 0, Output: tx.Output{PKHash: key.PubKeyHash(), Value: 60}},
		{TxHash: txid.String(), Index: 1, Output: tx.Output{PKHash: key.PubKeyHash(), Value: 40}},
		{TxHash: txid.String(), Index: 2, Output: tx.Output{PKHash: key.PubKeyHash(), Value: 10}},
	}

	stx, err := BuildSpend(key, entries, recipient, 45, 5)
	require.NoError(t, err)

	// Smallest-first selection: 10 + 40 covers 45+5 exactly, no change.
	require.Len(t, stx.Transaction.Inputs, 2)
	require.Len(t, stx.Transaction.Outputs, 1)
	assert.Equal(t, recipient, stx.Transaction.Outputs[0].PKHash)
	assert.Equal(t, uint64(45), stx.Transaction.Outputs[0].Value)
	assert.Equal(t, uint32(5), stx.Fee)
	assert.Len(t, stx.Witnesses, 2)

	// The witnesses verify against the selected outputs.
	resolved := []tx.Output{entries[2].Output, entries[1].Output}
	assert.NoError(t, stx.Verify(resolved))
}

func TestBuildSpendChange(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := crypto.Hash([]byte("them"))

	txid := crypto.Hash([]byte("funding"))
	entries := []UTXOEntry{
		{TxHash: txid.String(), Index: 0, Output: tx.Output{PKHash: key.PubKeyHash(), Value: 100}},
	}

	stx, err := BuildSpend(key, entries, recipient, 30, 10)
	require.NoError(t, err)
	require.Len(t, stx.Transaction.Outputs, 2)
	assert.Equal(t, uint64(30), stx.Transaction.Outputs[0].Value)
	assert.Equal(t, key.PubKeyHash(), stx.Transaction.Outputs[1].PKHash)
	assert.Equal(t, uint64(60), stx.Transaction.Outputs[1].Value)
}

func TestBuildSpendInsufficient(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = BuildSpend(key, nil, types.Hash{}, 1, 0)
	assert.Error(t, err)
}
