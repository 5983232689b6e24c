// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"sol.dev/sol/registry"
)

// projects implements registry.Projects.
type projects struct {
	db *sql.DB
}

func (repo *projects) Insert(ctx context.Context, project *registry.Project) (_ *registry.Project, err error) {
	defer mon.Task()(&ctx)(&err)

	created := *project
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO projects (name, normalized_name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		project.Name, project.NormalizedName, project.Description,
		project.CreatedAt, project.UpdatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, convertError(err)
	}
	return &created, nil
}

func (repo *projects) GetByNormalizedName(ctx context.Context, normalizedName string) (_ *registry.Project, err error) {
	defer mon.Task()(&ctx)(&err)

	var project registry.Project
	err = repo.db.QueryRowContext(ctx, `
		SELECT id, name, normalized_name, description, created_at, updated_at
		FROM projects
		WHERE normalized_name = $1`,
		normalizedName,
	).Scan(&project.ID, &project.Name, &project.NormalizedName,
		&project.Description, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, convertError(err)
	}
	return &project, nil
}

func (repo *projects) GetAll(ctx context.Context) (_ []registry.Project, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, name, normalized_name, description, created_at, updated_at
		FROM projects
		ORDER BY normalized_name`)
	if err != nil {
		return nil, convertError(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	all := []registry.Project{}
	for rows.Next() {
		var project registry.Project
		err := rows.Scan(&project.ID, &project.Name, &project.NormalizedName,
			&project.Description, &project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			return nil, convertError(err)
		}
		all = append(all, project)
	}
	return all, convertError(rows.Err())
}

func (repo *projects) Update(ctx context.Context, project *registry.Project) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE projects SET description = $2, updated_at = $3 WHERE id = $1`,
		project.ID, project.Description, project.UpdatedAt)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "project %q", project.ID)
}

func (repo *projects) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "project %q", id)
}

// affectedOne turns a zero row count into ErrNotFound.
func affectedOne(result sql.Result, format string, args ...any) error {
	count, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if count == 0 {
		return registry.ErrNotFound.New(format, args...)
	}
	return nil
}
