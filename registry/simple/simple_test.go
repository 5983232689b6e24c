// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package simple_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/simple"
)

func TestNegotiateFormat(t *testing.T) {
	type testcase struct {
		accept      string
		formatParam string
		format      simple.Format
		contentType string
	}

	for _, tc := range []testcase{
		{accept: "", formatParam: "", format: simple.FormatHTML, contentType: simple.MediaTypeLegacyHTML},
		{accept: "text/html", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		{accept: "application/vnd.pypi.simple.v1+html", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		{accept: "application/vnd.pypi.simple.v1+json", format: simple.FormatJSON, contentType: simple.MediaTypeJSON},
		// quality values decide, not header order
		{accept: "application/vnd.pypi.simple.v1+json;q=0.9, text/html;q=1.0", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		{accept: "text/html;q=0.5, application/vnd.pypi.simple.v1+json", format: simple.FormatJSON, contentType: simple.MediaTypeJSON},
		// zero quality entries are discarded
		{accept: "application/vnd.pypi.simple.v1+json;q=0, text/html", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		// a malformed quality drops the entry
		{accept: "application/vnd.pypi.simple.v1+json;q=abc, text/html", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		// the format parameter wins over any Accept header
		{accept: "text/html", formatParam: "json", format: simple.FormatJSON, contentType: simple.MediaTypeJSON},
		{accept: "application/vnd.pypi.simple.v1+json", formatParam: "html", format: simple.FormatHTML, contentType: simple.MediaTypeHTML},
		{accept: "application/xml", formatParam: "JSON", format: simple.FormatJSON, contentType: simple.MediaTypeJSON},
	} {
		format, contentType, err := simple.NegotiateFormat(tc.accept, tc.formatParam)
		require.NoError(t, err, "accept=%q format=%q", tc.accept, tc.formatParam)
		assert.Equal(t, tc.format, format, "accept=%q format=%q", tc.accept, tc.formatParam)
		assert.Equal(t, tc.contentType, contentType, "accept=%q format=%q", tc.accept, tc.formatParam)
	}
}

func TestNegotiateFormat_NotAcceptable(t *testing.T) {
	_, _, err := simple.NegotiateFormat("application/xml", "")
	require.True(t, simple.ErrNotAcceptable.Has(err))

	_, _, err = simple.NegotiateFormat("text/html;q=0", "")
	require.True(t, simple.ErrNotAcceptable.Has(err))

	// an unknown format parameter falls through to header negotiation
	_, _, err = simple.NegotiateFormat("application/xml", "yaml")
	require.True(t, simple.ErrNotAcceptable.Has(err))
}

func testProject(name, normalized string) *registry.Project {
	return &registry.Project{Name: name, NormalizedName: normalized}
}

func TestRenderProjectListHTML(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))

	html := r.RenderProjectListHTML([]registry.Project{
		*testProject("Flask", "flask"),
		*testProject("zope.interface", "zope-interface"),
	})

	assert.Contains(t, html, `<meta name="pypi:repository-version" content="1.3">`)
	assert.Contains(t, html, `<a href="/simple/flask/">Flask</a>`)
	assert.Contains(t, html, `<a href="/simple/zope-interface/">zope.interface</a>`)
}

func TestRenderProjectListJSON(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))

	body, err := r.RenderProjectListJSON([]registry.Project{
		*testProject("Flask", "flask"),
	}, map[string][]string{"flask": {"3.0.0"}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	meta := decoded["meta"].(map[string]any)
	assert.Equal(t, "1.3", meta["api-version"])

	projects := decoded["projects"].([]any)
	require.Len(t, projects, 1)
	assert.Equal(t, "Flask", projects[0].(map[string]any)["name"])

	versions := decoded["versions"].(map[string]any)
	assert.Len(t, versions["flask"], 1)

	tracks := decoded["tracks"].(map[string]any)
	assert.Contains(t, tracks, "default")
	assert.Contains(t, tracks, "stable")
	assert.Contains(t, tracks, "prerelease")
}

func TestRenderProjectDetailHTML(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))
	project := testProject("Django-REST-Framework", "django-rest-framework")

	digest := strings.Repeat("ab", 32)
	html := r.RenderProjectDetailHTML(project, []registry.File{{
		Filename:       "x-1.0.tar.gz",
		Path:           "django-rest-framework/1.0/x-1.0.tar.gz",
		SHA256Digest:   digest,
		RequiresPython: ">=3.8",
		HasSignature:   true,
		HasMetadata:    true,
		MetadataSHA256: "deadbeef",
	}})

	assert.Contains(t, html, `<meta name="pypi:repository-version" content="1.3">`)
	assert.Contains(t, html, `href="/files/django-rest-framework/1.0/x-1.0.tar.gz#sha256=`+digest+`"`)
	assert.Contains(t, html, `data-requires-python="&gt;=3.8"`)
	assert.Contains(t, html, `data-gpg-sig="true"`)
	assert.Contains(t, html, `data-core-metadata="sha256=deadbeef"`)
	assert.Contains(t, html, `data-dist-info-metadata="sha256=deadbeef"`)
	assert.Contains(t, html, `>x-1.0.tar.gz</a>`)
	assert.NotContains(t, html, "data-yanked")
	assert.NotContains(t, html, "data-provenance")
}

func TestRenderProjectDetailHTML_Yanked(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))
	project := testProject("requests", "requests")

	html := r.RenderProjectDetailHTML(project, []registry.File{
		{Filename: "requests-1.0.tar.gz", Path: "requests/1.0/requests-1.0.tar.gz", Yanked: true, YankReason: "CVE-2024-x"},
		{Filename: "requests-1.1.tar.gz", Path: "requests/1.1/requests-1.1.tar.gz", Yanked: true},
	})

	assert.Contains(t, html, `data-yanked="CVE-2024-x"`)
	assert.Contains(t, html, `data-yanked="true"`)
}

func TestRenderProjectDetailHTML_Leniency(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))
	project := testProject("requests", "requests")

	html := r.RenderProjectDetailHTML(project, []registry.File{{
		Filename:       "requests-1.0.tar.gz",
		Path:           "requests/1.0/requests-1.0.tar.gz",
		RequiresPython: "not-a-version",
		Provenance:     "ftp://example.com/attestation",
	}})

	// a malformed requires-python is rendered anyway
	assert.Contains(t, html, `data-requires-python="not-a-version"`)
	// an invalid provenance url is dropped
	assert.NotContains(t, html, "data-provenance")

	html = r.RenderProjectDetailHTML(project, []registry.File{{
		Filename:   "requests-1.0.tar.gz",
		Path:       "requests/1.0/requests-1.0.tar.gz",
		Provenance: "https://example.com/attestation",
	}})
	assert.Contains(t, html, `data-provenance="https://example.com/attestation"`)
}

func TestRenderProjectDetailJSON(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))
	project := testProject("Django-REST-Framework", "django-rest-framework")

	digest := strings.ToUpper(strings.Repeat("ab", 32))
	body, err := r.RenderProjectDetailJSON(project, []registry.File{{
		Filename:       "x-1.0.tar.gz",
		Path:           "django-rest-framework/1.0/x-1.0.tar.gz",
		Size:           1234,
		SHA256Digest:   digest,
		MD5Digest:      "ABCD",
		RequiresPython: ">=3.8",
		Yanked:         true,
		YankReason:     "CVE-2024-x",
		HasMetadata:    true,
		HasSignature:   true,
		UploadTime:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Provenance:     "https://example.com/attestation",
	}}, []string{"1.0"})
	require.NoError(t, err)

	var decoded struct {
		Meta struct {
			APIVersion string `json:"api-version"`
		} `json:"meta"`
		Name  string `json:"name"`
		Files []struct {
			Filename       string            `json:"filename"`
			URL            string            `json:"url"`
			Hashes         map[string]string `json:"hashes"`
			Size           int64             `json:"size"`
			RequiresPython string            `json:"requires-python"`
			Yanked         any               `json:"yanked"`
			CoreMetadata   any               `json:"core-metadata"`
			MetadataLegacy any               `json:"dist-info-metadata"`
			GPGSig         bool              `json:"gpg-sig"`
			UploadTime     string            `json:"upload-time"`
			Provenance     string            `json:"provenance"`
		} `json:"files"`
		Versions []string `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "1.3", decoded.Meta.APIVersion)
	assert.Equal(t, "django-rest-framework", decoded.Name)
	assert.Equal(t, []string{"1.0"}, decoded.Versions)

	require.Len(t, decoded.Files, 1)
	file := decoded.Files[0]
	assert.Equal(t, "x-1.0.tar.gz", file.Filename)
	assert.Equal(t, "/files/django-rest-framework/1.0/x-1.0.tar.gz", file.URL)
	assert.Equal(t, strings.ToLower(digest), file.Hashes["sha256"])
	assert.Equal(t, "abcd", file.Hashes["md5"])
	assert.Equal(t, int64(1234), file.Size)
	assert.Equal(t, ">=3.8", file.RequiresPython)
	assert.Equal(t, "CVE-2024-x", file.Yanked)
	assert.Equal(t, true, file.CoreMetadata)
	assert.Equal(t, true, file.MetadataLegacy)
	assert.True(t, file.GPGSig)
	assert.Equal(t, "2025-06-01T12:00:00Z", file.UploadTime)
	assert.Equal(t, "https://example.com/attestation", file.Provenance)
}

func TestRenderProjectDetailJSON_YankedBoolAndMetadataHash(t *testing.T) {
	r := simple.NewRenderer(zaptest.NewLogger(t))
	project := testProject("requests", "requests")

	body, err := r.RenderProjectDetailJSON(project, []registry.File{{
		Filename:       "requests-1.0.tar.gz",
		Path:           "requests/1.0/requests-1.0.tar.gz",
		Size:           10,
		SHA256Digest:   "ff",
		Yanked:         true,
		HasMetadata:    true,
		MetadataSHA256: "DEADBEEF",
	}}, nil)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	files := decoded["files"].([]any)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)

	assert.Equal(t, true, file["yanked"])
	assert.Equal(t, map[string]any{"sha256": "deadbeef"}, file["core-metadata"])
	assert.Equal(t, map[string]any{"sha256": "deadbeef"}, file["dist-info-metadata"])

	// versions is always a list, never null
	assert.Equal(t, []any{}, decoded["versions"])
}
