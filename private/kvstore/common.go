// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package kvstore defines the ephemeral key/value cache port used by the
// registry. Implementations are best-effort accelerators: callers must
// tolerate a store that is slow, empty or entirely unavailable.
package kvstore

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

var (
	// ErrKeyNotFound is returned when a key has no value in the store.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used in Put or Delete.
	ErrEmptyKey = errs.Class("empty key")
)

// Key is the type for the keys in a Store.
type Key string

// Value is the type for the values in a Store.
type Value []byte

// Store describes TTL-aware key/value caches like redis.
type Store interface {
	// Get gets a value from the store.
	Get(ctx context.Context, key Key) (Value, error)
	// Put adds a value to the store. A non-positive ttl stores the value
	// without expiration.
	Put(ctx context.Context, key Key, value Value, ttl time.Duration) error
	// Delete deletes the key and its value.
	Delete(ctx context.Context, key Key) error
	// Exists checks whether the key has a value.
	Exists(ctx context.Context, key Key) (bool, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close closes the store.
	Close() error
}

// IsZero returns true if the key is empty.
func (key Key) IsZero() bool { return len(key) == 0 }

// IsZero returns true if the value is empty.
func (value Value) IsZero() bool { return len(value) == 0 }

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }
