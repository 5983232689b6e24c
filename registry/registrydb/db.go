// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package registrydb implements registry.DB on PostgreSQL through the pgx
// driver.
package registrydb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"sol.dev/sol/registry"
)

var (
	// Error is the default error class for this package.
	Error = errs.Class("registrydb")

	mon = monkit.Package()
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// DB implements registry.DB on PostgreSQL.
//
// architecture: Database
type DB struct {
	log *zap.Logger
	db  *sql.DB
}

// Open connects to the catalog database and verifies the connection.
func Open(ctx context.Context, log *zap.Logger, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, Error.New("opening database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Combine(Error.New("pinging database: %v", err), db.Close())
	}

	return &DB{log: log, db: db}, nil
}

// Projects implements registry.DB.
func (db *DB) Projects() registry.Projects { return &projects{db: db.db} }

// Releases implements registry.DB.
func (db *DB) Releases() registry.Releases { return &releases{db: db.db} }

// Files implements registry.DB.
func (db *DB) Files() registry.Files { return &files{db: db.db} }

// Users implements registry.DB.
func (db *DB) Users() registry.Users { return &users{db: db.db} }

// APIKeys implements registry.DB.
func (db *DB) APIKeys() registry.APIKeys { return &apikeys{db: db.db} }

// Close closes the database connection.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// MigrateToLatest creates the schema. The unique constraints back the
// conflict semantics that concurrent writers rely on.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	db.log.Info("migrating catalog schema")

	for _, statement := range []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			normalized_name text NOT NULL UNIQUE,
			description text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS releases (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			project_id uuid NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
			version text NOT NULL,
			requires_python text NOT NULL DEFAULT '',
			is_prerelease boolean NOT NULL DEFAULT false,
			yanked boolean NOT NULL DEFAULT false,
			yank_reason text NOT NULL DEFAULT '',
			uploaded_at timestamptz NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}',
			UNIQUE (project_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			release_id uuid NOT NULL REFERENCES releases (id) ON DELETE CASCADE,
			filename text NOT NULL,
			size bigint NOT NULL,
			sha256_digest text NOT NULL,
			md5_digest text NOT NULL DEFAULT '',
			blake2b_256_digest text NOT NULL DEFAULT '',
			path text NOT NULL,
			content_type text NOT NULL DEFAULT '',
			package_type text NOT NULL DEFAULT '',
			python_version text NOT NULL DEFAULT '',
			requires_python text NOT NULL DEFAULT '',
			has_signature boolean NOT NULL DEFAULT false,
			has_metadata boolean NOT NULL DEFAULT false,
			metadata_sha256 text NOT NULL DEFAULT '',
			provenance text NOT NULL DEFAULT '',
			yanked boolean NOT NULL DEFAULT false,
			yank_reason text NOT NULL DEFAULT '',
			upload_time timestamptz NOT NULL,
			uploaded_by text NOT NULL DEFAULT '',
			downloads bigint NOT NULL DEFAULT 0,
			metadata jsonb NOT NULL DEFAULT '{}',
			UNIQUE (release_id, filename)
		)`,
		`CREATE INDEX IF NOT EXISTS files_path_index ON files (path)`,
		`CREATE TABLE IF NOT EXISTS users (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			username text NOT NULL,
			email text NOT NULL DEFAULT '',
			full_name text NOT NULL DEFAULT '',
			provider_id text NOT NULL,
			provider text NOT NULL,
			scopes jsonb NOT NULL DEFAULT '[]',
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL,
			UNIQUE (provider_id, provider)
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id uuid NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			key_id text NOT NULL DEFAULT '',
			key_hash text NOT NULL DEFAULT '',
			key_salt text NOT NULL DEFAULT '',
			legacy_key text NOT NULL DEFAULT '',
			scopes jsonb NOT NULL DEFAULT '[]',
			description text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL,
			expires_at timestamptz NOT NULL,
			last_used_at timestamptz,
			revoked boolean NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS api_keys_key_id_index ON api_keys (key_id)`,
	} {
		if _, err := db.db.ExecContext(ctx, statement); err != nil {
			return Error.New("migration failed: %v", err)
		}
	}
	return nil
}

// convertError maps driver errors onto the registry error taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ErrNotFound.Wrap(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return registry.ErrConflict.New("%s", pgErr.ConstraintName)
	}
	return Error.Wrap(err)
}
