// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package blobstore defines the durable blob storage port used for
// distribution file bytes.
package blobstore

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is the default blobstore error class.
	Error = errs.Class("blobstore")

	// ErrNotFound is returned when a blob does not exist at the given path.
	ErrNotFound = errs.Class("blob not found")
)

// Meta describes a stored blob.
type Meta struct {
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Blobs is the blob storage interface. Keys follow the convention
// {normalized_project}/{version}/{filename}.
type Blobs interface {
	// Put stores data under path. It must complete before any catalog row
	// referencing path is written.
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error
	// Get returns the bytes stored under path.
	Get(ctx context.Context, path string) ([]byte, error)
	// Exists reports whether a blob exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Stat returns metadata for the blob at path.
	Stat(ctx context.Context, path string) (Meta, error)
	// Delete removes the blob at path.
	Delete(ctx context.Context, path string) error
}
