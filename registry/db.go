// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import "context"

// DB is the durable catalog port. Implementations must enforce unique
// constraints on projects.normalized_name, (project_id, version) and
// (release_id, filename) atomically, surfacing violations as ErrConflict.
//
// architecture: Master Database
type DB interface {
	// Projects is a getter for Projects repository.
	Projects() Projects
	// Releases is a getter for Releases repository.
	Releases() Releases
	// Files is a getter for Files repository.
	Files() Files
	// Users is a getter for Users repository.
	Users() Users
	// APIKeys is a getter for APIKeys repository.
	APIKeys() APIKeys

	// MigrateToLatest initializes the schema.
	MigrateToLatest(ctx context.Context) error
	// Close closes the database.
	Close() error
}
