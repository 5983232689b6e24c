// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Metadata holds the PEP 566 core metadata fields carried by releases and
// duplicated at file granularity.
type Metadata struct {
	Summary                string            `json:"summary,omitempty"`
	Description            string            `json:"description,omitempty"`
	DescriptionContentType string            `json:"descriptionContentType,omitempty"`
	Author                 string            `json:"author,omitempty"`
	AuthorEmail            string            `json:"authorEmail,omitempty"`
	Maintainer             string            `json:"maintainer,omitempty"`
	MaintainerEmail        string            `json:"maintainerEmail,omitempty"`
	License                string            `json:"license,omitempty"`
	Keywords               string            `json:"keywords,omitempty"`
	Classifiers            []string          `json:"classifiers,omitempty"`
	Platform               string            `json:"platform,omitempty"`
	HomePage               string            `json:"homePage,omitempty"`
	DownloadURL            string            `json:"downloadURL,omitempty"`
	RequiresDist           []string          `json:"requiresDist,omitempty"`
	ProvidesDist           []string          `json:"providesDist,omitempty"`
	ObsoletesDist          []string          `json:"obsoletesDist,omitempty"`
	RequiresExternal       []string          `json:"requiresExternal,omitempty"`
	ProjectURLs            map[string]string `json:"projectURLs,omitempty"`
}

// Release is a specific version of a project.
type Release struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"projectID"`

	// Version is an opaque string, unique within the project.
	Version string `json:"version"`

	RequiresPython string `json:"requiresPython,omitempty"`
	IsPrerelease   bool   `json:"isPrerelease"`

	// Yanked marks the release as discouraged per PEP 592. It is a
	// reversible flag, not a delete.
	Yanked     bool   `json:"yanked"`
	YankReason string `json:"yankReason,omitempty"`

	UploadedAt time.Time `json:"uploadedAt"`

	Metadata
}

// Releases exposes methods to manage the releases table.
//
// architecture: Database
type Releases interface {
	// Insert adds a release. It fails with ErrConflict when
	// (project id, version) already exists.
	Insert(ctx context.Context, release *Release) (*Release, error)
	// GetByVersion queries a release by project id and version.
	GetByVersion(ctx context.Context, projectID uuid.UUID, version string) (*Release, error)
	// GetAllByProject returns all releases of a project ordered by upload
	// time.
	GetAllByProject(ctx context.Context, projectID uuid.UUID) ([]Release, error)
	// SetYanked updates the PEP 592 yank flag and reason.
	SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) error
}
