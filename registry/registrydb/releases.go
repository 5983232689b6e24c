// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"sol.dev/sol/registry"
)

// releases implements registry.Releases.
type releases struct {
	db *sql.DB
}

func (repo *releases) Insert(ctx context.Context, release *registry.Release) (_ *registry.Release, err error) {
	defer mon.Task()(&ctx)(&err)

	metadata, err := json.Marshal(release.Metadata)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	created := *release
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO releases (project_id, version, requires_python,
			is_prerelease, yanked, yank_reason, uploaded_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		release.ProjectID, release.Version, release.RequiresPython,
		release.IsPrerelease, release.Yanked, release.YankReason,
		release.UploadedAt, metadata,
	).Scan(&created.ID)
	if err != nil {
		return nil, convertError(err)
	}
	return &created, nil
}

func (repo *releases) GetByVersion(ctx context.Context, projectID uuid.UUID, version string) (_ *registry.Release, err error) {
	defer mon.Task()(&ctx)(&err)

	release, err := scanRelease(repo.db.QueryRowContext(ctx,
		releaseColumns+`WHERE project_id = $1 AND version = $2`,
		projectID, version))
	if err != nil {
		return nil, convertError(err)
	}
	return release, nil
}

func (repo *releases) GetAllByProject(ctx context.Context, projectID uuid.UUID) (_ []registry.Release, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := repo.db.QueryContext(ctx,
		releaseColumns+`WHERE project_id = $1 ORDER BY uploaded_at`,
		projectID)
	if err != nil {
		return nil, convertError(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	all := []registry.Release{}
	for rows.Next() {
		release, err := scanRelease(rows)
		if err != nil {
			return nil, convertError(err)
		}
		all = append(all, *release)
	}
	return all, convertError(rows.Err())
}

func (repo *releases) SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE releases SET yanked = $2, yank_reason = $3 WHERE id = $1`,
		id, yanked, reason)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "release %q", id)
}

const releaseColumns = `
	SELECT id, project_id, version, requires_python, is_prerelease,
		yanked, yank_reason, uploaded_at, metadata
	FROM releases
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelease(row rowScanner) (*registry.Release, error) {
	var release registry.Release
	var metadata []byte
	err := row.Scan(&release.ID, &release.ProjectID, &release.Version,
		&release.RequiresPython, &release.IsPrerelease,
		&release.Yanked, &release.YankReason, &release.UploadedAt, &metadata)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &release.Metadata); err != nil {
		return nil, Error.Wrap(err)
	}
	return &release, nil
}
