// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory kvstore.Store for tests.
package teststore

import (
	"context"
	"sync"
	"time"

	"sol.dev/sol/private/kvstore"
)

type entry struct {
	value   kvstore.Value
	expires time.Time
}

// Store implements kvstore.Store in memory with TTL support.
type Store struct {
	mu   sync.Mutex
	data map[kvstore.Key]entry

	// nowFn can be overridden in tests to control expiration.
	nowFn func() time.Time

	CallCount struct {
		Get    int
		Put    int
		Delete int
	}

	// ForceError makes every operation fail when set, simulating an
	// unavailable cache backend.
	ForceError bool
}

var errForced = kvstore.ErrKeyNotFound.New("store forced error")

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		data:  map[kvstore.Key]entry{},
		nowFn: time.Now,
	}
}

// SetNow overrides the time source used for expiration checks.
func (store *Store) SetNow(now func() time.Time) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nowFn = now
}

// Get gets a value from the store.
func (store *Store) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Get++

	if store.ForceError {
		return nil, errForced
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	e, ok := store.data[key]
	if !ok || store.expired(e) {
		delete(store.data, key)
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return append(kvstore.Value{}, e.value...), nil
}

// Put adds a value to the store.
func (store *Store) Put(ctx context.Context, key kvstore.Key, value kvstore.Value, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Put++

	if store.ForceError {
		return errForced
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	e := entry{value: append(kvstore.Value{}, value...)}
	if ttl > 0 {
		e.expires = store.nowFn().Add(ttl)
	}
	store.data[key] = e
	return nil
}

// Delete deletes the key and its value.
func (store *Store) Delete(ctx context.Context, key kvstore.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Delete++

	if store.ForceError {
		return errForced
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	delete(store.data, key)
	return nil
}

// Exists checks whether the key has a value.
func (store *Store) Exists(ctx context.Context, key kvstore.Key) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.ForceError {
		return false, errForced
	}

	e, ok := store.data[key]
	if ok && store.expired(e) {
		delete(store.data, key)
		ok = false
	}
	return ok, nil
}

// Ping implements kvstore.Store.
func (store *Store) Ping(ctx context.Context) error {
	if store.ForceError {
		return errForced
	}
	return nil
}

// Close closes the store.
func (store *Store) Close() error { return nil }

func (store *Store) expired(e entry) bool {
	return !e.expires.IsZero() && store.nowFn().After(e.expires)
}
