// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory blobstore.Blobs for tests.
package teststore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"sol.dev/sol/registry/blobstore"
)

type blob struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// Store implements blobstore.Blobs in memory.
type Store struct {
	mu    sync.Mutex
	blobs map[string]blob

	// FailPuts makes Put fail when set, simulating a degraded backend.
	FailPuts bool
}

// New creates a new in-memory blob store.
func New() *Store {
	return &Store{blobs: map[string]blob{}}
}

// Put stores data under path.
func (store *Store) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.FailPuts {
		return blobstore.Error.New("put failed: %q", path)
	}

	store.blobs[path] = blob{
		data:        append([]byte{}, data...),
		contentType: contentType,
		metadata:    metadata,
		modified:    time.Now(),
	}
	return nil
}

// Get returns the bytes stored under path.
func (store *Store) Get(ctx context.Context, path string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	b, ok := store.blobs[path]
	if !ok {
		return nil, blobstore.ErrNotFound.New("%q", path)
	}
	return append([]byte{}, b.data...), nil
}

// Exists reports whether a blob exists at path.
func (store *Store) Exists(ctx context.Context, path string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	_, ok := store.blobs[path]
	return ok, nil
}

// Stat returns metadata for the blob at path.
func (store *Store) Stat(ctx context.Context, path string) (blobstore.Meta, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	b, ok := store.blobs[path]
	if !ok {
		return blobstore.Meta{}, blobstore.ErrNotFound.New("%q", path)
	}

	digest := sha256.Sum256(b.data)
	return blobstore.Meta{
		Size:         int64(len(b.data)),
		ETag:         hex.EncodeToString(digest[:16]),
		ContentType:  b.contentType,
		LastModified: b.modified,
	}, nil
}

// Delete removes the blob at path.
func (store *Store) Delete(ctx context.Context, path string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.blobs, path)
	return nil
}
