// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Project is a package in the catalog.
type Project struct {
	ID uuid.UUID `json:"id"`

	// Name is the display form with case preserved, immutable once set.
	Name string `json:"name"`
	// NormalizedName is the PEP 503 form derived from Name; all lookups go
	// through it.
	NormalizedName string `json:"normalizedName"`

	Description string `json:"description"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Projects exposes methods to manage the projects table.
//
// architecture: Database
type Projects interface {
	// Insert adds a project to the catalog. It fails with ErrConflict when
	// the normalized name is already taken.
	Insert(ctx context.Context, project *Project) (*Project, error)
	// GetByNormalizedName queries a project by its PEP 503 normalized name.
	GetByNormalizedName(ctx context.Context, normalizedName string) (*Project, error)
	// GetAll returns all projects ordered by normalized name.
	GetAll(ctx context.Context) ([]Project, error)
	// Update updates the mutable project fields.
	Update(ctx context.Context, project *Project) error
	// Delete removes a project and, through ownership, its releases and
	// files.
	Delete(ctx context.Context, id uuid.UUID) error
}
