// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// File is a distribution file belonging to a release.
type File struct {
	ID        uuid.UUID `json:"id"`
	ReleaseID uuid.UUID `json:"releaseID"`

	// Filename is unique within the release.
	Filename string `json:"filename"`

	// Size must equal the byte length of the blob at Path.
	Size int64 `json:"size"`

	// SHA256Digest is the canonical identity hash and is always present.
	SHA256Digest string `json:"sha256Digest"`
	// MD5Digest is kept for backward compatibility only.
	MD5Digest string `json:"md5Digest,omitempty"`
	// Blake2b256Digest is optional.
	Blake2b256Digest string `json:"blake2b256Digest,omitempty"`

	// Path is the blob store key: {normalized_project}/{version}/{filename}.
	Path string `json:"path"`

	ContentType    string `json:"contentType"`
	PackageType    string `json:"packageType"`
	PythonVersion  string `json:"pythonVersion"`
	RequiresPython string `json:"requiresPython,omitempty"`

	HasSignature   bool   `json:"hasSignature"`
	HasMetadata    bool   `json:"hasMetadata"`
	MetadataSHA256 string `json:"metadataSHA256,omitempty"`

	// Provenance is a PEP 740 attestation URL, rendered only when valid.
	Provenance string `json:"provenance,omitempty"`

	// Yanked at file level overrides and augments the release-level flag.
	Yanked     bool   `json:"yanked"`
	YankReason string `json:"yankReason,omitempty"`

	UploadTime time.Time `json:"uploadTime"`
	UploadedBy string    `json:"uploadedBy,omitempty"`

	Downloads int64 `json:"downloads"`

	Metadata
}

// Hashes returns all available digests keyed the way PEP 691 names them.
func (file *File) Hashes() map[string]string {
	hashes := map[string]string{}
	if file.MD5Digest != "" {
		hashes["md5"] = file.MD5Digest
	}
	if file.SHA256Digest != "" {
		hashes["sha256"] = file.SHA256Digest
	}
	if file.Blake2b256Digest != "" {
		hashes["blake2b_256"] = file.Blake2b256Digest
	}
	return hashes
}

// Files exposes methods to manage the files table.
//
// architecture: Database
type Files interface {
	// Insert adds a file. It fails with ErrConflict when
	// (release id, filename) already exists.
	Insert(ctx context.Context, file *File) (*File, error)
	// GetByFilename queries a file by release id and filename.
	GetByFilename(ctx context.Context, releaseID uuid.UUID, filename string) (*File, error)
	// GetByPath queries a file by its blob store path.
	GetByPath(ctx context.Context, path string) (*File, error)
	// GetAllByRelease returns all files of a release.
	GetAllByRelease(ctx context.Context, releaseID uuid.UUID) ([]File, error)
	// SetYanked updates the PEP 592 yank flag and reason.
	SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) error
	// IncrementDownloads adds one to the download counter.
	IncrementDownloads(ctx context.Context, id uuid.UUID) error
}
