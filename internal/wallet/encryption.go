package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// saltSize is the Argon2id salt length.
const saltSize = 32

// Encrypted format: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const headerSize = saltSize + 4 + 4 + 1

// encryptionParams holds Argon2id parameters, stored alongside the
// ciphertext so old key files stay readable when defaults change.
type encryptionParams struct {
	memory      uint32 // KiB
	iterations  uint32
	parallelism uint8
}

func defaultParams() encryptionParams {
	return encryptionParams{
		memory:      64 * 1024,
		iterations:  3,
		parallelism: 4,
	}
}

func deriveKey(password, salt []byte, params encryptionParams) []byte {
	return argon2.IDKey(password, salt,
		params.iterations, params.memory, params.parallelism,
		chacha20poly1305.KeySize)
}

// encrypt seals data under a password with Argon2id + XChaCha20-Poly1305.
func encrypt(data, password []byte) ([]byte, error) {
	params := defaultParams()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(password, salt, params))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.memory)
	out = binary.LittleEndian.AppendUint32(out, params.iterations)
	out = append(out, params.parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// decrypt opens a blob produced by encrypt.
func decrypt(blob, password []byte) ([]byte, error) {
	if len(blob) < headerSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("key file too short")
	}

	salt := blob[:saltSize]
	params := encryptionParams{
		memory:      binary.LittleEndian.Uint32(blob[saltSize:]),
		iterations:  binary.LittleEndian.Uint32(blob[saltSize+4:]),
		parallelism: blob[saltSize+8],
	}
	rest := blob[headerSize:]
	nonce := rest[:chacha20poly1305.NonceSizeX]
	ciphertext := rest[chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(deriveKey(password, salt, params))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	data, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wrong passphrase or corrupt key file")
	}
	return data, nil
}
