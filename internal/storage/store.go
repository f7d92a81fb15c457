package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nicolagi/difftrack/internal/config"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotImplemented = errors.New("not implemented")
	ErrReadOnly       = errors.New("read-only store")
)

// Key names a value in a store. Keys produced by KeyFor are 64 hex
// digits, which is what the paired store requires.
type Key string

// KeyFor derives the key under which data about the named item is stored.
func KeyFor(name string) Key {
	sum := sha256.Sum256([]byte(name))
	return Key(hex.EncodeToString(sum[:]))
}

type Value []byte

type Store interface {
	Get(Key) (Value, error)
	Put(Key, Value) error
	// Delete succeeds if the key is not in the store.
	Delete(Key) error
}

// NewStore creates the store selected by the configuration.
func NewStore(c *config.C) (Store, error) {
	switch c.Storage {
	case "disk":
		return NewDiskStore(c.DiskStoreDir), nil
	case "null":
		return NullStore{}, nil
	case "s3":
		return newS3Store(c)
	case "paired":
		slow, err := newS3Store(c)
		if err != nil {
			return nil, err
		}
		return NewPaired(NewDiskStore(c.DiskStoreDir), slow, c.PropagationLogFilePath())
	default:
		return nil, fmt.Errorf("%q: %w", c.Storage, ErrNotImplemented)
	}
}
