// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"sol.dev/sol/private/kvstore"
	"sol.dev/sol/registry/blobstore"
	"sol.dev/sol/registry/pkgname"
)

// Service orchestrates cache-aside reads and writes over the catalog, the
// cache and the blob store.
//
// Reads go through the cache when available and fall back to the catalog on
// any cache failure; a missing or malformed cache payload is a miss, never an
// error. Writes go to the catalog first and then invalidate the affected
// cache keys; a failed invalidation is logged and not retried.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	db    DB
	cache kvstore.Store // nil when caching is disabled
	blobs blobstore.Blobs

	config Config
	nowFn  func() time.Time
}

// NewService creates a new registry service.
func NewService(log *zap.Logger, db DB, cache kvstore.Store, blobs blobstore.Blobs, config Config) (*Service, error) {
	if log == nil {
		return nil, Error.New("log can't be nil")
	}
	if db == nil {
		return nil, Error.New("db can't be nil")
	}
	if blobs == nil {
		return nil, Error.New("blobs can't be nil")
	}

	return &Service{
		log:    log,
		db:     db,
		cache:  cache,
		blobs:  blobs,
		config: config,
		nowFn:  time.Now,
	}, nil
}

// TestSetNow overrides the service time source.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

func projectKey(normalizedName string) kvstore.Key {
	return kvstore.Key("project:" + normalizedName)
}

func releasesKey(projectID uuid.UUID) kvstore.Key {
	return kvstore.Key("releases:" + projectID.String())
}

func filesKey(releaseID uuid.UUID) kvstore.Key {
	return kvstore.Key("files:" + releaseID.String())
}

func contentKey(path string) kvstore.Key {
	return kvstore.Key("file_content:" + path)
}

const projectListKey = kvstore.Key("all_projects")

// cacheLoad fetches and decodes a cached value into dest. It reports whether
// dest was populated; any failure, including a malformed payload, counts as a
// miss.
func (s *Service) cacheLoad(ctx context.Context, key kvstore.Key, dest any) bool {
	if s.cache == nil {
		return false
	}

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		if !kvstore.ErrKeyNotFound.Has(err) {
			s.log.Error("cache read failed", zap.String("key", key.String()), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(value, dest); err != nil {
		s.log.Warn("malformed cache payload treated as miss",
			zap.String("key", key.String()), zap.Error(err))
		return false
	}
	return true
}

// cacheStore encodes and stores a value best-effort.
func (s *Service) cacheStore(ctx context.Context, key kvstore.Key, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		s.log.Error("cache encode failed", zap.String("key", key.String()), zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, key, encoded, ttl); err != nil {
		s.log.Error("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// cacheInvalidate removes keys best-effort. A failed invalidation is logged,
// not retried, and never fails the surrounding write.
func (s *Service) cacheInvalidate(ctx context.Context, keys ...kvstore.Key) {
	if s.cache == nil {
		return
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.Error("cache invalidation failed",
				zap.String("key", key.String()), zap.Error(err))
		}
	}
}

// GetAllProjects returns every project in the catalog.
func (s *Service) GetAllProjects(ctx context.Context) (_ []Project, err error) {
	defer mon.Task()(&ctx)(&err)

	var projects []Project
	if s.cacheLoad(ctx, projectListKey, &projects) {
		return projects, nil
	}

	projects, err = s.db.Projects().GetAll(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	s.cacheStore(ctx, projectListKey, projects, s.config.ProjectListTTL)
	return projects, nil
}

// GetProject returns the project with the given name. The name is normalized
// before lookup.
func (s *Service) GetProject(ctx context.Context, name string) (_ *Project, err error) {
	defer mon.Task()(&ctx)(&err)

	normalized := pkgname.Normalize(name)

	var project Project
	if s.cacheLoad(ctx, projectKey(normalized), &project) {
		return &project, nil
	}

	found, err := s.db.Projects().GetByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.cacheStore(ctx, projectKey(normalized), found, s.config.ProjectTTL)
	return found, nil
}

// CreateProject validates and inserts a new project, deriving the normalized
// name.
func (s *Service) CreateProject(ctx context.Context, name, description string) (_ *Project, err error) {
	defer mon.Task()(&ctx)(&err)

	if !pkgname.IsValidName(name) {
		return nil, ErrValidation.New("invalid package name: %q", name)
	}

	now := s.nowFn()
	project, err := s.db.Projects().Insert(ctx, &Project{
		Name:           name,
		NormalizedName: pkgname.Normalize(name),
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	s.cacheInvalidate(ctx, projectListKey)
	return project, nil
}

// GetReleases returns all releases of the named project.
func (s *Service) GetReleases(ctx context.Context, projectName string) (_ []Release, err error) {
	defer mon.Task()(&ctx)(&err)

	project, err := s.GetProject(ctx, projectName)
	if err != nil {
		return nil, err
	}

	var releases []Release
	if s.cacheLoad(ctx, releasesKey(project.ID), &releases) {
		return releases, nil
	}

	releases, err = s.db.Releases().GetAllByProject(ctx, project.ID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	s.cacheStore(ctx, releasesKey(project.ID), releases, s.config.ReleaseTTL)
	return releases, nil
}

// CreateRelease validates and inserts a new release of the named project.
func (s *Service) CreateRelease(ctx context.Context, projectName string, release Release) (_ *Release, err error) {
	defer mon.Task()(&ctx)(&err)

	if !pkgname.IsValidVersion(release.Version) {
		return nil, ErrValidation.New("invalid version: %q", release.Version)
	}

	project, err := s.GetProject(ctx, projectName)
	if err != nil {
		return nil, err
	}

	release.ProjectID = project.ID
	if release.UploadedAt.IsZero() {
		release.UploadedAt = s.nowFn()
	}

	created, err := s.db.Releases().Insert(ctx, &release)
	if err != nil {
		return nil, err
	}

	s.cacheInvalidate(ctx, releasesKey(project.ID))
	return created, nil
}

// GetRelease returns a single release of the named project.
func (s *Service) GetRelease(ctx context.Context, projectName, version string) (_ *Release, err error) {
	defer mon.Task()(&ctx)(&err)

	project, err := s.GetProject(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return s.db.Releases().GetByVersion(ctx, project.ID, version)
}

// GetFiles returns all files of one release of the named project.
func (s *Service) GetFiles(ctx context.Context, projectName, version string) (_ []File, err error) {
	defer mon.Task()(&ctx)(&err)

	release, err := s.GetRelease(ctx, projectName, version)
	if err != nil {
		return nil, err
	}

	var files []File
	if s.cacheLoad(ctx, filesKey(release.ID), &files) {
		return files, nil
	}

	files, err = s.db.Files().GetAllByRelease(ctx, release.ID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	s.cacheStore(ctx, filesKey(release.ID), files, s.config.FileTTL)
	return files, nil
}

// UploadOptions carries optional upload metadata.
type UploadOptions struct {
	RequiresPython string
	HasSignature   bool
	HasMetadata    bool
	MetadataSHA256 string
	Provenance     string
	UploadedBy     string
	Metadata       Metadata
}

// UploadFile stores a distribution file. The blob write happens strictly
// before the catalog insert: a catalog row must never reference a missing
// blob, while an orphaned blob after a failed insert is acceptable and left
// for reconciliation.
func (s *Service) UploadFile(ctx context.Context, project *Project, release *Release, filename string, content []byte, contentType string, opts UploadOptions) (_ *File, err error) {
	defer mon.Task()(&ctx)(&err)

	if !pkgname.IsValidFilename(filename) {
		return nil, ErrValidation.New("invalid package filename: %q", filename)
	}

	path := project.NormalizedName + "/" + release.Version + "/" + filename

	sha256Digest := sha256.Sum256(content)
	md5Digest := md5.Sum(content)
	blakeDigest := blake2b.Sum256(content)

	packageType, pythonVersion := pkgname.PackageType(filename)
	if contentType == "" {
		contentType = pkgname.ContentType(filename)
	}

	err = s.blobs.Put(ctx, path, content, contentType, map[string]string{
		"project": project.NormalizedName,
		"version": release.Version,
	})
	if err != nil {
		return nil, ErrDegraded.New("blob write failed: %v", errs.Unwrap(err))
	}

	requiresPython := opts.RequiresPython
	if requiresPython == "" {
		requiresPython = release.RequiresPython
	}

	file, err := s.db.Files().Insert(ctx, &File{
		ReleaseID:        release.ID,
		Filename:         filename,
		Size:             int64(len(content)),
		SHA256Digest:     hex.EncodeToString(sha256Digest[:]),
		MD5Digest:        hex.EncodeToString(md5Digest[:]),
		Blake2b256Digest: hex.EncodeToString(blakeDigest[:]),
		Path:             path,
		ContentType:      contentType,
		PackageType:      packageType,
		PythonVersion:    pythonVersion,
		RequiresPython:   requiresPython,
		HasSignature:     opts.HasSignature,
		HasMetadata:      opts.HasMetadata,
		MetadataSHA256:   opts.MetadataSHA256,
		Provenance:       opts.Provenance,
		UploadTime:       s.nowFn(),
		UploadedBy:       opts.UploadedBy,
		Metadata:         opts.Metadata,
	})
	if err != nil {
		// the blob stays behind as an orphan; reconciliation picks those up.
		return nil, err
	}

	s.cacheInvalidate(ctx, filesKey(release.ID), contentKey(path))
	return file, nil
}

// YankFile sets the PEP 592 yank flag on a single file.
func (s *Service) YankFile(ctx context.Context, projectName, version, filename, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.setFileYanked(ctx, projectName, version, filename, true, reason)
}

// UnyankFile clears the PEP 592 yank flag on a single file.
func (s *Service) UnyankFile(ctx context.Context, projectName, version, filename string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.setFileYanked(ctx, projectName, version, filename, false, "")
}

func (s *Service) setFileYanked(ctx context.Context, projectName, version, filename string, yanked bool, reason string) error {
	release, err := s.GetRelease(ctx, projectName, version)
	if err != nil {
		return err
	}

	file, err := s.db.Files().GetByFilename(ctx, release.ID, filename)
	if err != nil {
		return err
	}

	if err := s.db.Files().SetYanked(ctx, file.ID, yanked, reason); err != nil {
		return Error.Wrap(err)
	}

	s.cacheInvalidate(ctx, filesKey(release.ID))
	return nil
}

// YankRelease sets the PEP 592 yank flag on a release.
func (s *Service) YankRelease(ctx context.Context, projectName, version, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.setReleaseYanked(ctx, projectName, version, true, reason)
}

// UnyankRelease clears the PEP 592 yank flag on a release.
func (s *Service) UnyankRelease(ctx context.Context, projectName, version string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.setReleaseYanked(ctx, projectName, version, false, "")
}

func (s *Service) setReleaseYanked(ctx context.Context, projectName, version string, yanked bool, reason string) error {
	project, err := s.GetProject(ctx, projectName)
	if err != nil {
		return err
	}

	release, err := s.db.Releases().GetByVersion(ctx, project.ID, version)
	if err != nil {
		return err
	}

	if err := s.db.Releases().SetYanked(ctx, release.ID, yanked, reason); err != nil {
		return Error.Wrap(err)
	}

	s.cacheInvalidate(ctx, releasesKey(project.ID))
	return nil
}

// FileContent is the payload served for a file download.
type FileContent struct {
	Content     []byte `json:"content"`
	ContentType string `json:"contentType"`
	ETag        string `json:"etag"`
}

// GetFileContent returns the bytes and serving metadata for a blob path.
// Small bodies are cached; larger ones always hit the blob store.
func (s *Service) GetFileContent(ctx context.Context, path string) (_ *FileContent, err error) {
	defer mon.Task()(&ctx)(&err)

	var cached FileContent
	if s.cacheLoad(ctx, contentKey(path), &cached) {
		return &cached, nil
	}

	content, err := s.blobs.Get(ctx, path)
	if err != nil {
		if blobstore.ErrNotFound.Has(err) {
			return nil, ErrNotFound.New("file %q", path)
		}
		return nil, ErrDegraded.New("blob read failed: %v", errs.Unwrap(err))
	}

	meta, err := s.blobs.Stat(ctx, path)
	if err != nil && !blobstore.ErrNotFound.Has(err) {
		s.log.Error("blob stat failed", zap.String("path", path), zap.Error(err))
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	etag := meta.ETag
	if etag == "" {
		digest := sha256.Sum256(content)
		etag = hex.EncodeToString(digest[:16])
	}

	result := &FileContent{
		Content:     content,
		ContentType: contentType,
		ETag:        etag,
	}

	if int64(len(content)) < s.config.MaxCachedContent {
		s.cacheStore(ctx, contentKey(path), result, s.config.ContentTTL)
	}
	return result, nil
}

// CountDownload increments the download counter for the file stored at path.
// Failures are logged only; download serving never depends on the counter.
func (s *Service) CountDownload(ctx context.Context, path string) {
	file, err := s.db.Files().GetByPath(ctx, path)
	if err != nil {
		if !ErrNotFound.Has(err) {
			s.log.Warn("download count lookup failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	if err := s.db.Files().IncrementDownloads(ctx, file.ID); err != nil {
		s.log.Warn("download count update failed", zap.String("path", path), zap.Error(err))
	}
}
