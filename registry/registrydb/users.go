// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"sol.dev/sol/registry"
)

// users implements registry.Users.
type users struct {
	db *sql.DB
}

func (repo *users) Get(ctx context.Context, id uuid.UUID) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := scanUser(repo.db.QueryRowContext(ctx,
		userColumns+`WHERE id = $1`, id))
	if err != nil {
		return nil, convertError(err)
	}
	return user, nil
}

func (repo *users) GetByProvider(ctx context.Context, providerID, provider string) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := scanUser(repo.db.QueryRowContext(ctx,
		userColumns+`WHERE provider_id = $1 AND provider = $2`,
		providerID, provider))
	if err != nil {
		return nil, convertError(err)
	}
	return user, nil
}

func (repo *users) Insert(ctx context.Context, user *registry.User) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	scopes, err := json.Marshal(user.Scopes)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	created := *user
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name,
			provider_id, provider, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		user.Username, user.Email, user.FullName,
		user.ProviderID, user.Provider, scopes,
		user.CreatedAt, user.UpdatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, convertError(err)
	}
	return &created, nil
}

func (repo *users) Update(ctx context.Context, user *registry.User) (err error) {
	defer mon.Task()(&ctx)(&err)

	scopes, err := json.Marshal(user.Scopes)
	if err != nil {
		return Error.Wrap(err)
	}

	result, err := repo.db.ExecContext(ctx, `
		UPDATE users SET username = $2, email = $3, scopes = $4, updated_at = $5
		WHERE id = $1`,
		user.ID, user.Username, user.Email, scopes, user.UpdatedAt)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "user %q", user.ID)
}

const userColumns = `
	SELECT id, username, email, full_name,
		provider_id, provider, scopes, created_at, updated_at
	FROM users
`

func scanUser(row rowScanner) (*registry.User, error) {
	var user registry.User
	var scopes []byte
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.ProviderID, &user.Provider, &scopes,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &user.Scopes); err != nil {
		return nil, Error.Wrap(err)
	}
	return &user, nil
}
