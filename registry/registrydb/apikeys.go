// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"sol.dev/sol/registry"
)

// apikeys implements registry.APIKeys.
type apikeys struct {
	db *sql.DB
}

func (repo *apikeys) Insert(ctx context.Context, info *registry.APIKeyInfo) (_ *registry.APIKeyInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	scopes, err := json.Marshal(info.Scopes)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	created := *info
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (user_id, key_id, key_hash, key_salt,
			legacy_key, scopes, description, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		info.UserID, info.KeyID, info.KeyHash, info.KeySalt,
		info.LegacyKey, scopes, info.Description,
		info.CreatedAt, info.ExpiresAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, convertError(err)
	}
	return &created, nil
}

func (repo *apikeys) GetByKeyID(ctx context.Context, keyID string) (_ *registry.APIKeyInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := scanAPIKey(repo.db.QueryRowContext(ctx,
		apiKeyColumns+`WHERE key_id = $1 AND NOT revoked`, keyID))
	if err != nil {
		return nil, convertError(err)
	}
	return info, nil
}

func (repo *apikeys) GetByLegacyKey(ctx context.Context, key string) (_ *registry.APIKeyInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := scanAPIKey(repo.db.QueryRowContext(ctx,
		apiKeyColumns+`WHERE legacy_key = $1 AND legacy_key != '' AND NOT revoked`, key))
	if err != nil {
		return nil, convertError(err)
	}
	return info, nil
}

func (repo *apikeys) GetByUserAndDescription(ctx context.Context, userID uuid.UUID, description string) (_ *registry.APIKeyInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := scanAPIKey(repo.db.QueryRowContext(ctx,
		apiKeyColumns+`WHERE user_id = $1 AND description = $2 AND NOT revoked`,
		userID, description))
	if err != nil {
		return nil, convertError(err)
	}
	return info, nil
}

func (repo *apikeys) UpdateLastUsed(ctx context.Context, id uuid.UUID, when time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, when)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "api key %q", id)
}

func (repo *apikeys) Revoke(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "api key %q", id)
}

const apiKeyColumns = `
	SELECT id, user_id, key_id, key_hash, key_salt, legacy_key,
		scopes, description, created_at, expires_at, last_used_at, revoked
	FROM api_keys
`

func scanAPIKey(row rowScanner) (*registry.APIKeyInfo, error) {
	var info registry.APIKeyInfo
	var scopes []byte
	var lastUsed sql.NullTime
	err := row.Scan(&info.ID, &info.UserID, &info.KeyID, &info.KeyHash,
		&info.KeySalt, &info.LegacyKey, &scopes, &info.Description,
		&info.CreatedAt, &info.ExpiresAt, &lastUsed, &info.Revoked)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		info.LastUsedAt = lastUsed.Time
	}
	if err := json.Unmarshal(scopes, &info.Scopes); err != nil {
		return nil, Error.Wrap(err)
	}
	return &info, nil
}
