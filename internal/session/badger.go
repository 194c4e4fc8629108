package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// keyValue is the record stored per key.
type keyValue struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// BadgerBackend stores session keys in a badgerhold database directory.
type BadgerBackend struct {
	store *badgerhold.Store
}

// OpenBadger opens (creating if needed) the database at dir. It fails when
// another process holds the directory lock.
func OpenBadger(dir string) (*BadgerBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	return &BadgerBackend{store: store}, nil
}

// Get returns the value for key or ErrKeyNotFound.
func (b *BadgerBackend) Get(key string) (string, error) {
	var kv keyValue
	err := b.store.Get(key, &kv)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return kv.Value, nil
}

// Set upserts key.
func (b *BadgerBackend) Set(key, value string) error {
	kv := keyValue{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := b.store.Upsert(key, &kv); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; a missing key is ErrKeyNotFound.
func (b *BadgerBackend) Delete(key string) error {
	err := b.store.Delete(key, keyValue{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}
