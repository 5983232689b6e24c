// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package testcatalog implements registry.DB in memory for tests, with the
// same unique-constraint and not-found semantics as the SQL catalog.
package testcatalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sol.dev/sol/registry"
)

// DB implements registry.DB in memory.
type DB struct {
	mu sync.Mutex

	projects map[uuid.UUID]*registry.Project
	releases map[uuid.UUID]*registry.Release
	files    map[uuid.UUID]*registry.File
	users    map[uuid.UUID]*registry.User
	apikeys  map[uuid.UUID]*registry.APIKeyInfo
}

// New creates an empty in-memory catalog.
func New() *DB {
	return &DB{
		projects: map[uuid.UUID]*registry.Project{},
		releases: map[uuid.UUID]*registry.Release{},
		files:    map[uuid.UUID]*registry.File{},
		users:    map[uuid.UUID]*registry.User{},
		apikeys:  map[uuid.UUID]*registry.APIKeyInfo{},
	}
}

// Projects implements registry.DB.
func (db *DB) Projects() registry.Projects { return (*projects)(db) }

// Releases implements registry.DB.
func (db *DB) Releases() registry.Releases { return (*releases)(db) }

// Files implements registry.DB.
func (db *DB) Files() registry.Files { return (*files)(db) }

// Users implements registry.DB.
func (db *DB) Users() registry.Users { return (*users)(db) }

// APIKeys implements registry.DB.
func (db *DB) APIKeys() registry.APIKeys { return (*apikeys)(db) }

// MigrateToLatest implements registry.DB.
func (db *DB) MigrateToLatest(ctx context.Context) error { return nil }

// Close implements registry.DB.
func (db *DB) Close() error { return nil }

type projects DB

func (db *projects) Insert(ctx context.Context, project *registry.Project) (*registry.Project, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.projects {
		if existing.NormalizedName == project.NormalizedName {
			return nil, registry.ErrConflict.New("project %q already exists", project.NormalizedName)
		}
	}

	stored := *project
	stored.ID = uuid.New()
	db.projects[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (db *projects) GetByNormalizedName(ctx context.Context, normalizedName string) (*registry.Project, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, project := range db.projects {
		if project.NormalizedName == normalizedName {
			result := *project
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("project %q", normalizedName)
}

func (db *projects) GetAll(ctx context.Context) ([]registry.Project, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	all := []registry.Project{}
	for _, project := range db.projects {
		all = append(all, *project)
	}
	sortBy(all, func(a, b registry.Project) bool { return a.NormalizedName < b.NormalizedName })
	return all, nil
}

func (db *projects) Update(ctx context.Context, project *registry.Project) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.projects[project.ID]
	if !ok {
		return registry.ErrNotFound.New("project %q", project.ID)
	}
	existing.Description = project.Description
	existing.UpdatedAt = project.UpdatedAt
	return nil
}

func (db *projects) Delete(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.projects[id]; !ok {
		return registry.ErrNotFound.New("project %q", id)
	}
	delete(db.projects, id)
	for rid, release := range db.releases {
		if release.ProjectID == id {
			delete(db.releases, rid)
			for fid, file := range db.files {
				if file.ReleaseID == rid {
					delete(db.files, fid)
				}
			}
		}
	}
	return nil
}

type releases DB

func (db *releases) Insert(ctx context.Context, release *registry.Release) (*registry.Release, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.releases {
		if existing.ProjectID == release.ProjectID && existing.Version == release.Version {
			return nil, registry.ErrConflict.New("release %q already exists", release.Version)
		}
	}

	stored := *release
	stored.ID = uuid.New()
	db.releases[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (db *releases) GetByVersion(ctx context.Context, projectID uuid.UUID, version string) (*registry.Release, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, release := range db.releases {
		if release.ProjectID == projectID && release.Version == version {
			result := *release
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("release %q", version)
}

func (db *releases) GetAllByProject(ctx context.Context, projectID uuid.UUID) ([]registry.Release, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	all := []registry.Release{}
	for _, release := range db.releases {
		if release.ProjectID == projectID {
			all = append(all, *release)
		}
	}
	sortBy(all, func(a, b registry.Release) bool { return a.UploadedAt.Before(b.UploadedAt) })
	return all, nil
}

func (db *releases) SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	release, ok := db.releases[id]
	if !ok {
		return registry.ErrNotFound.New("release %q", id)
	}
	release.Yanked, release.YankReason = yanked, reason
	return nil
}

type files DB

func (db *files) Insert(ctx context.Context, file *registry.File) (*registry.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.files {
		if existing.ReleaseID == file.ReleaseID && existing.Filename == file.Filename {
			return nil, registry.ErrConflict.New("file %q already exists", file.Filename)
		}
	}

	stored := *file
	stored.ID = uuid.New()
	db.files[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (db *files) GetByFilename(ctx context.Context, releaseID uuid.UUID, filename string) (*registry.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, file := range db.files {
		if file.ReleaseID == releaseID && file.Filename == filename {
			result := *file
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("file %q", filename)
}

func (db *files) GetByPath(ctx context.Context, path string) (*registry.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, file := range db.files {
		if file.Path == path {
			result := *file
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("file %q", path)
}

func (db *files) GetAllByRelease(ctx context.Context, releaseID uuid.UUID) ([]registry.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	all := []registry.File{}
	for _, file := range db.files {
		if file.ReleaseID == releaseID {
			all = append(all, *file)
		}
	}
	sortBy(all, func(a, b registry.File) bool { return a.Filename < b.Filename })
	return all, nil
}

func (db *files) SetYanked(ctx context.Context, id uuid.UUID, yanked bool, reason string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	file, ok := db.files[id]
	if !ok {
		return registry.ErrNotFound.New("file %q", id)
	}
	file.Yanked, file.YankReason = yanked, reason
	return nil
}

func (db *files) IncrementDownloads(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	file, ok := db.files[id]
	if !ok {
		return registry.ErrNotFound.New("file %q", id)
	}
	file.Downloads++
	return nil
}

type users DB

func (db *users) Get(ctx context.Context, id uuid.UUID) (*registry.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[id]
	if !ok {
		return nil, registry.ErrNotFound.New("user %q", id)
	}
	result := *user
	return &result, nil
}

func (db *users) GetByProvider(ctx context.Context, providerID, provider string) (*registry.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.users {
		if user.ProviderID == providerID && user.Provider == provider {
			result := *user
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("user %s:%s", provider, providerID)
}

func (db *users) Insert(ctx context.Context, user *registry.User) (*registry.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.users {
		if existing.ProviderID == user.ProviderID && existing.Provider == user.Provider {
			return nil, registry.ErrConflict.New("user %s:%s already exists", user.Provider, user.ProviderID)
		}
	}

	stored := *user
	stored.ID = uuid.New()
	db.users[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (db *users) Update(ctx context.Context, user *registry.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.users[user.ID]
	if !ok {
		return registry.ErrNotFound.New("user %q", user.ID)
	}
	existing.Username = user.Username
	existing.Email = user.Email
	existing.Scopes = user.Scopes
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

type apikeys DB

func (db *apikeys) Insert(ctx context.Context, info *registry.APIKeyInfo) (*registry.APIKeyInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *info
	stored.ID = uuid.New()
	db.apikeys[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (db *apikeys) GetByKeyID(ctx context.Context, keyID string) (*registry.APIKeyInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, info := range db.apikeys {
		if info.KeyID == keyID && !info.Revoked && info.ExpiresAt.After(time.Now()) {
			result := *info
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("api key %q", keyID)
}

func (db *apikeys) GetByLegacyKey(ctx context.Context, key string) (*registry.APIKeyInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, info := range db.apikeys {
		if info.LegacyKey != "" && info.LegacyKey == key && !info.Revoked && info.ExpiresAt.After(time.Now()) {
			result := *info
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("api key")
}

func (db *apikeys) GetByUserAndDescription(ctx context.Context, userID uuid.UUID, description string) (*registry.APIKeyInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, info := range db.apikeys {
		if info.UserID == userID && info.Description == description && !info.Revoked {
			result := *info
			return &result, nil
		}
	}
	return nil, registry.ErrNotFound.New("api key for user %q", userID)
}

func (db *apikeys) UpdateLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	info, ok := db.apikeys[id]
	if !ok {
		return registry.ErrNotFound.New("api key %q", id)
	}
	info.LastUsedAt = when
	return nil
}

func (db *apikeys) Revoke(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	info, ok := db.apikeys[id]
	if !ok {
		return registry.ErrNotFound.New("api key %q", id)
	}
	info.Revoked = true
	return nil
}

func sortBy[T any](items []T, less func(a, b T) bool) {
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
}
