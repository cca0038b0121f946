package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB is the on-disk Store used by launchpadd.
type BadgerDB struct {
	db *badger.DB
}

// BadgerOption adjusts the Badger options before the database is opened.
type BadgerOption func(*badger.Options)

// WithSyncWrites makes every commit fsync before returning.
func WithSyncWrites() BadgerOption {
	return func(o *badger.Options) { o.SyncWrites = true }
}

// NewBadger opens or creates a Badger database in dir.
func NewBadger(dir string, opts ...BadgerOption) (*BadgerDB, error) {
	o := badger.DefaultOptions(dir).WithLogger(nil)
	for _, fn := range opts {
		fn(&o)
	}
	db, err := badger.Open(o)
	if err != nil {
		if isLockError(err) {
			return nil, fmt.Errorf("database at %s is locked by another process (is another launchpadd running?): %w", dir, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	return &BadgerDB{db: db}, nil
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "resource temporarily unavailable")
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

// Has reports whether key exists.
func (b *BadgerDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (b *BadgerDB) Put(key, value []byte) error {
	return b.update("put", func(txn *badger.Txn) error { return txn.Set(key, value) })
}

func (b *BadgerDB) Delete(key []byte) error {
	return b.update("delete", func(txn *badger.Txn) error { return txn.Delete(key) })
}

func (b *BadgerDB) update(op string, fn func(*badger.Txn) error) error {
	if err := b.db.Update(fn); err != nil {
		return fmt.Errorf("badger %s: %w", op, err)
	}
	return nil
}

// ForEach visits the keys under prefix in ascending order.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.ForEachFrom(prefix, nil, fn)
}

// ForEachFrom seeks to start and visits the keys under prefix from there.
func (b *BadgerDB) ForEachFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	// Seeking below the prefix would land outside it and end the scan.
	if bytes.Compare(start, prefix) < 0 {
		start = prefix
	}
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()
		for it.Seek(start); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// NewBatch returns a batch that commits as one Badger transaction.
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{db: b.db}
}

// badgerBatch records writes and replays them inside a single Update at
// Commit, so nothing is visible to readers until then. A nil value marks
// a delete.
type badgerBatch struct {
	db     *badger.DB
	keys   [][]byte
	values [][]byte
}

func (wb *badgerBatch) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	wb.keys = append(wb.keys, append([]byte(nil), key...))
	wb.values = append(wb.values, append([]byte{}, value...))
	return nil
}

func (wb *badgerBatch) Delete(key []byte) error {
	wb.keys = append(wb.keys, append([]byte(nil), key...))
	wb.values = append(wb.values, nil)
	return nil
}

func (wb *badgerBatch) Commit() error {
	err := wb.db.Update(func(txn *badger.Txn) error {
		for i, k := range wb.keys {
			if wb.values[i] == nil {
				if err := txn.Delete(k); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(k, wb.values[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger batch commit: %w", err)
	}
	wb.keys, wb.values = nil, nil
	return nil
}
