// Package storage provides the key-value store abstraction used for
// node-local state (the peer store). Chain state is never persisted.
package storage

import "errors"

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix. The callback
	// receives a copy of the key; the value may share memory with the store
	// and must not be modified or retained after the callback returns.
	// Returning a non-nil error stops iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
