// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package pkgname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "flask", Normalize("Flask"))
	assert.Equal(t, "zope-interface", Normalize("zope.interface"))
	assert.Equal(t, "a-b-c", Normalize("A__B..C"))
	assert.Equal(t, "django-rest-framework", Normalize("Django-REST-Framework"))
	assert.Equal(t, "sqlalchemy-utils", Normalize("sqlalchemy_utils"))
	assert.Equal(t, "numpy", Normalize("NUMPY"))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, name := range []string{"Flask", "zope.interface", "A__B..C", "a-b-c", "x"} {
		once := Normalize(name)
		require.Equal(t, once, Normalize(once))
	}
}

func TestIsValidName(t *testing.T) {
	valid := []string{"a", "A0", "requests", "zope.interface", "Django-REST-Framework", "a_b"}
	for _, name := range valid {
		assert.True(t, IsValidName(name), name)
	}

	invalid := []string{"", "-leading", "trailing-", ".dot", "a b", "na!me"}
	for _, name := range invalid {
		assert.False(t, IsValidName(name), name)
	}
}

func TestIsValidVersion(t *testing.T) {
	valid := []string{"1", "1.0", "2.28.1", "1.0a1", "1.0.post1", "1.0-rc.1"}
	for _, version := range valid {
		assert.True(t, IsValidVersion(version), version)
	}

	invalid := []string{"", "v1.0", ".1", "one.two"}
	for _, version := range invalid {
		assert.False(t, IsValidVersion(version), version)
	}
}

func TestIsValidFilename(t *testing.T) {
	valid := []string{
		"pkg-1.0.tar.gz",
		"pkg-1.0.zip",
		"pkg-1.0-py2.7.egg",
		"pkg-1.0-py3-none-any.whl",
	}
	for _, filename := range valid {
		assert.True(t, IsValidFilename(filename), filename)
	}

	invalid := []string{
		"pkg.tar.gz",
		"pkg-1.0.whl",
		"pkg-1.0-py3.whl",
		"pkg-1.0.rar",
		"README.md",
	}
	for _, filename := range invalid {
		assert.False(t, IsValidFilename(filename), filename)
	}
}

func TestValidRequiresPython(t *testing.T) {
	valid := []string{"", "*", ">=3.7", "3.6", "!=3.0.*, !=3.1.*", ">=2.7, !=3.0.*", "~=3.8", ">=3.7,<4"}
	for _, spec := range valid {
		assert.True(t, ValidRequiresPython(spec), spec)
	}

	invalid := []string{"not-a-version", ">=abc", "python3", "=>3.7"}
	for _, spec := range invalid {
		assert.False(t, ValidRequiresPython(spec), spec)
	}
}

func TestValidProvenanceURL(t *testing.T) {
	assert.True(t, ValidProvenanceURL("https://example.com/attestation.json"))
	assert.True(t, ValidProvenanceURL("http://localhost/attestation.json"))
	assert.True(t, ValidProvenanceURL("http://localhost:8080/attestation.json"))

	assert.False(t, ValidProvenanceURL(""))
	assert.False(t, ValidProvenanceURL("http://example.com/attestation.json"))
	assert.False(t, ValidProvenanceURL("ftp://example.com/x"))
	assert.False(t, ValidProvenanceURL("/relative/path"))
	assert.False(t, ValidProvenanceURL("example.com/no-scheme"))
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;&amp;&#39;&lt;/a&gt;", EscapeHTML(`<a href="x">&'</a>`))
	assert.Equal(t, "plain", EscapeHTML("plain"))
}

func TestPackageType(t *testing.T) {
	ptype, pyver := PackageType("pkg-1.0.tar.gz")
	assert.Equal(t, "sdist", ptype)
	assert.Equal(t, "source", pyver)

	ptype, pyver = PackageType("pkg-1.0-py3-none-any.whl")
	assert.Equal(t, "bdist_wheel", ptype)
	assert.Equal(t, "py3", pyver)

	ptype, pyver = PackageType("pkg-1.0-py2.7.egg")
	assert.Equal(t, "bdist_egg", ptype)
	assert.Equal(t, "py2.7", pyver)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-tar", ContentType("pkg-1.0.tar.gz"))
	assert.Equal(t, "application/zip", ContentType("pkg-1.0.zip"))
	assert.Equal(t, "application/wheel+zip", ContentType("pkg-1.0-py3-none-any.whl"))
	assert.Equal(t, "application/octet-stream", ContentType("pkg-1.0-py2.7.egg"))
}
