// Package storage provides the key-value backends behind the ledger.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in ascending
	// key order. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// ForEachFrom is ForEach starting at the first key >= start.
	ForEachFrom(prefix, start []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together by Commit.
// Either every write in the batch lands or none does.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// Store is a DB with atomic batch support. The ledger requires one.
type Store interface {
	DB
	Batcher
}
