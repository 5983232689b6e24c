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

// files implements registry.Files.
type files struct {
	db *sql.DB
}

func (repo *files) Insert(ctx context.Context, file *registry.File) (_ *registry.File, err error) {
	defer mon.Task()(&ctx)(&err)

	metadata, err := json.Marshal(file.Metadata)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	created := *file
	err = repo.db.QueryRowContext(ctx, `
		INSERT INTO files (release_id, filename, size,
			sha256_digest, md5_digest, blake2b_256_digest,
			path, content_type, package_type, python_version, requires_python,
			has_signature, has_metadata, metadata_sha256, provenance,
			yanked, yank_reason, upload_time, uploaded_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`,
		file.ReleaseID, file.Filename, file.Size,
		file.SHA256Digest, file.MD5Digest, file.Blake2b256Digest,
		file.Path, file.ContentType, file.PackageType, file.PythonVersion,
		file.RequiresPython, file.HasSignature, file.HasMetadata,
		file.MetadataSHA256, file.Provenance, file.Yanked, file.YankReason,
		file.UploadTime, file.UploadedBy, metadata,
	).Scan(&created.ID)
	if err != nil {
		return nil, convertError(err)
	}
	return &created, nil
}

func (repo *files) GetByFilename(ctx context.Context, releaseID uuid.UUID, filename string) (_ *registry.File, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := scanFile(repo.db.QueryRowContext(ctx,
		fileColumns+`WHERE release_id = $1 AND filename = $2`,
		releaseID, filename))
	if err != nil {
		return nil, convertError(err)
	}
	return file, nil
}

func (repo *files) GetByPath(ctx context.Context, path string) (_ *registry.File, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := scanFile(repo.db.QueryRowContext(ctx,
		fileColumns+`WHERE path = $1`, path))
	if err != nil {
		return nil, convertError(err)
	}
	return file, nil
}

func (repo *files) GetAllByRelease(ctx context.Context, releaseID uuid.UUID) (_ []registry.File, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := repo.db.QueryContext(ctx,
		fileColumns+`WHERE release_id = $1 ORDER BY filename`,
		releaseID)
	if err != nil {
		return nil, convertError(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	all := []registry.File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, convertError(err)
		}
		all = append(all, *file)
	}
	return all, convertError(rows.Err())
}

func (repo *files) SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE files SET yanked = $2, yank_reason = $3 WHERE id = $1`,
		id, yanked, reason)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "file %q", id)
}

func (repo *files) IncrementDownloads(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := repo.db.ExecContext(ctx, `
		UPDATE files SET downloads = downloads + 1 WHERE id = $1`, id)
	if err != nil {
		return convertError(err)
	}
	return affectedOne(result, "file %q", id)
}

const fileColumns = `
	SELECT id, release_id, filename, size,
		sha256_digest, md5_digest, blake2b_256_digest,
		path, content_type, package_type, python_version, requires_python,
		has_signature, has_metadata, metadata_sha256, provenance,
		yanked, yank_reason, upload_time, uploaded_by, downloads, metadata
	FROM files
`

func scanFile(row rowScanner) (*registry.File, error) {
	var file registry.File
	var metadata []byte
	err := row.Scan(&file.ID, &file.ReleaseID, &file.Filename, &file.Size,
		&file.SHA256Digest, &file.MD5Digest, &file.Blake2b256Digest,
		&file.Path, &file.ContentType, &file.PackageType, &file.PythonVersion,
		&file.RequiresPython, &file.HasSignature, &file.HasMetadata,
		&file.MetadataSHA256, &file.Provenance, &file.Yanked, &file.YankReason,
		&file.UploadTime, &file.UploadedBy, &file.Downloads, &metadata)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &file.Metadata); err != nil {
		return nil, Error.Wrap(err)
	}
	return &file, nil
}
