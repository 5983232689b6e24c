// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sol.dev/sol/private/kvstore"
	kvteststore "sol.dev/sol/private/kvstore/teststore"
	"sol.dev/sol/registry"
	blobteststore "sol.dev/sol/registry/blobstore/teststore"
	"sol.dev/sol/registry/testcatalog"
)

type serviceFixture struct {
	service *registry.Service
	cache   *kvteststore.Store
	blobs   *blobteststore.Store
	db      *testcatalog.DB
}

func newServiceFixture(t *testing.T) *serviceFixture {
	cache := kvteststore.New()
	blobs := blobteststore.New()
	db := testcatalog.New()

	service, err := registry.NewService(zaptest.NewLogger(t), db, cache, blobs, registry.DefaultConfig())
	require.NoError(t, err)

	return &serviceFixture{service: service, cache: cache, blobs: blobs, db: db}
}

func TestService_ProjectLifecycle(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "Flask", "web framework")
	require.NoError(t, err)
	assert.Equal(t, "Flask", project.Name)
	assert.Equal(t, "flask", project.NormalizedName)

	// lookup normalizes the requested name
	found, err := f.service.GetProject(ctx, "FLASK")
	require.NoError(t, err)
	assert.Equal(t, project.ID, found.ID)

	_, err = f.service.GetProject(ctx, "does-not-exist")
	require.True(t, registry.ErrNotFound.Has(err))

	_, err = f.service.CreateProject(ctx, "-bad-", "")
	require.True(t, registry.ErrValidation.Has(err))

	_, err = f.service.CreateProject(ctx, "flask", "duplicate")
	require.True(t, registry.ErrConflict.Has(err))
}

func TestService_ProjectListInvalidation(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "alpha", "")
	require.NoError(t, err)

	projects, err := f.service.GetAllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	// creation invalidates the cached list, so the next read sees both
	_, err = f.service.CreateProject(ctx, "beta", "")
	require.NoError(t, err)

	projects, err = f.service.GetAllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].NormalizedName)
	assert.Equal(t, "beta", projects[1].NormalizedName)
}

func TestService_CachedReadSkipsCatalog(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)

	_, err = f.service.GetProject(ctx, "requests")
	require.NoError(t, err)
	puts := f.cache.CallCount.Put

	// second read is served from cache, nothing new gets stored
	_, err = f.service.GetProject(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, puts, f.cache.CallCount.Put)
}

func TestService_MalformedCachePayloadIsMiss(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)

	require.NoError(t, f.cache.Put(ctx, kvstore.Key("project:requests"), []byte("{not json"), 0))

	found, err := f.service.GetProject(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, "requests", found.NormalizedName)
}

func TestService_DegradedCacheStillServes(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)

	f.cache.ForceError = true

	found, err := f.service.GetProject(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, "requests", found.NormalizedName)

	// writes keep working while invalidation fails
	_, err = f.service.CreateProject(ctx, "flask", "")
	require.NoError(t, err)
}

func TestService_NilCache(t *testing.T) {
	ctx := t.Context()

	service, err := registry.NewService(zaptest.NewLogger(t), testcatalog.New(), nil, blobteststore.New(), registry.DefaultConfig())
	require.NoError(t, err)

	_, err = service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)

	found, err := service.GetProject(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, "requests", found.NormalizedName)
}

func TestService_ReleaseLifecycle(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)

	_, err = f.service.CreateRelease(ctx, "requests", registry.Release{Version: "not a version"})
	require.True(t, registry.ErrValidation.Has(err))

	_, err = f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	_, err = f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.True(t, registry.ErrConflict.Has(err))

	_, err = f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.32.0rc1", IsPrerelease: true})
	require.NoError(t, err)

	releases, err := f.service.GetReleases(ctx, "requests")
	require.NoError(t, err)
	require.Len(t, releases, 2)

	release, err := f.service.GetRelease(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	assert.Equal(t, "2.31.0", release.Version)

	_, err = f.service.GetRelease(ctx, "requests", "9.9.9")
	require.True(t, registry.ErrNotFound.Has(err))
}

func TestService_UploadRoundTrip(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	content := []byte("wheel bytes")
	digest := sha256.Sum256(content)

	file, err := f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", content, "", registry.UploadOptions{
			RequiresPython: ">=3.7",
		})
	require.NoError(t, err)
	assert.Equal(t, "requests/2.31.0/requests-2.31.0-py3-none-any.whl", file.Path)
	assert.Equal(t, int64(len(content)), file.Size)
	assert.Equal(t, hex.EncodeToString(digest[:]), file.SHA256Digest)
	assert.Equal(t, "bdist_wheel", file.PackageType)
	assert.Equal(t, "py3", file.PythonVersion)

	files, err := f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.SHA256Digest, files[0].SHA256Digest)
	assert.Equal(t, file.Size, files[0].Size)

	body, err := f.service.GetFileContent(ctx, file.Path)
	require.NoError(t, err)
	assert.Equal(t, content, body.Content)
	assert.Equal(t, "application/wheel+zip", body.ContentType)
	assert.NotEmpty(t, body.ETag)
}

func TestService_UploadValidation(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	_, err = f.service.UploadFile(ctx, project, release, "requests.exe", []byte("x"), "", registry.UploadOptions{})
	require.True(t, registry.ErrValidation.Has(err))

	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.NoError(t, err)

	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.True(t, registry.ErrConflict.Has(err))
}

func TestService_BlobWriteFailureLeavesNoCatalogRow(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	f.blobs.FailPuts = true
	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.True(t, registry.ErrDegraded.Has(err))

	files, err := f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestService_UploadInvalidatesFileList(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.NoError(t, err)

	files, err := f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0.tar.gz", []byte("sdist"), "", registry.UploadOptions{})
	require.NoError(t, err)

	// the cached list was invalidated by the second upload
	files, err = f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestService_YankFile(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)
	_, err = f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.NoError(t, err)

	require.NoError(t, f.service.YankFile(ctx, "requests", "2.31.0",
		"requests-2.31.0-py3-none-any.whl", "CVE-2024-1234"))

	files, err := f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Yanked)
	assert.Equal(t, "CVE-2024-1234", files[0].YankReason)

	require.NoError(t, f.service.UnyankFile(ctx, "requests", "2.31.0",
		"requests-2.31.0-py3-none-any.whl"))

	files, err = f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	assert.False(t, files[0].Yanked)
	assert.Empty(t, files[0].YankReason)

	err = f.service.YankFile(ctx, "requests", "2.31.0", "missing.whl", "")
	require.True(t, registry.ErrNotFound.Has(err))
}

func TestService_YankRelease(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	_, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	_, err = f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)

	require.NoError(t, f.service.YankRelease(ctx, "requests", "2.31.0", "broken build"))

	releases, err := f.service.GetReleases(ctx, "requests")
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.True(t, releases[0].Yanked)
	assert.Equal(t, "broken build", releases[0].YankReason)

	require.NoError(t, f.service.UnyankRelease(ctx, "requests", "2.31.0"))

	releases, err = f.service.GetReleases(ctx, "requests")
	require.NoError(t, err)
	assert.False(t, releases[0].Yanked)
}

func TestService_GetFileContentCachesSmallBodies(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)
	file, err := f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("small"), "", registry.UploadOptions{})
	require.NoError(t, err)

	_, err = f.service.GetFileContent(ctx, file.Path)
	require.NoError(t, err)

	// served from cache even after the blob disappears
	require.NoError(t, f.blobs.Delete(ctx, file.Path))

	body, err := f.service.GetFileContent(ctx, file.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), body.Content)

	_, err = f.service.GetFileContent(ctx, "requests/2.31.0/missing.whl")
	require.True(t, registry.ErrNotFound.Has(err))
}

func TestService_CountDownload(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)
	file, err := f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.NoError(t, err)

	f.service.CountDownload(ctx, file.Path)
	f.service.CountDownload(ctx, file.Path)
	// unknown paths are ignored
	f.service.CountDownload(ctx, "nope/1.0/nope.whl")

	files, err := f.service.GetFiles(ctx, "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(2), files[0].Downloads)
}

func TestService_TestSetNow(t *testing.T) {
	ctx := t.Context()
	f := newServiceFixture(t)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.service.TestSetNow(func() time.Time { return fixed })

	project, err := f.service.CreateProject(ctx, "requests", "")
	require.NoError(t, err)
	assert.Equal(t, fixed, project.CreatedAt)

	release, err := f.service.CreateRelease(ctx, "requests", registry.Release{Version: "2.31.0"})
	require.NoError(t, err)
	assert.Equal(t, fixed, release.UploadedAt)

	file, err := f.service.UploadFile(ctx, project, release,
		"requests-2.31.0-py3-none-any.whl", []byte("x"), "", registry.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, fixed, file.UploadTime)
}
