// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package pkgname implements PEP 503 package name normalization and the
// filename, version and specifier validation rules used across the registry.
package pkgname

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	separatorRuns = regexp.MustCompile(`[-_.]+`)

	nameRe    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*[a-zA-Z0-9.-]*$`)

	// Simplified PEP 440 specifier matching. This intentionally covers the
	// common forms (operator clauses, bare versions, exclusion lists) and is
	// not a full parser.
	specifierRe   = regexp.MustCompile(`^\s*(?:(?:<=|>=|<|>|!=|==|~=)\s*[0-9]+(?:\.[0-9]+)*(?:\.\*)?(?:(?:a|b|rc)[0-9]+)?(?:\.post[0-9]+)?(?:\.dev[0-9]+)?(?:\s*,\s*)?)+\s*$`)
	versionOnlyRe = regexp.MustCompile(`^\s*[0-9]+(?:\.[0-9]+)*(?:(?:a|b|rc)[0-9]+)?(?:\.post[0-9]+)?(?:\.dev[0-9]+)?\s*$`)
	exclusionRe   = regexp.MustCompile(`^\s*(?:!=\s*[0-9]+(?:\.[0-9]+)*\.\*\s*,?\s*)+$`)

	eggPyTagRe = regexp.MustCompile(`py([0-9.]+)`)
)

// Normalize returns the PEP 503 canonical form of a package name: lowercase
// with every run of '-', '_' and '.' collapsed to a single '-'.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	return separatorRuns.ReplaceAllString(strings.ToLower(name), "-")
}

// IsValidName reports whether name is a valid package name per PEP 508.
func IsValidName(name string) bool {
	return nameRe.MatchString(name)
}

// IsValidVersion reports whether version looks like a valid version string.
// It uses simplified PEP 440 rules: digits separated by dots, optionally
// followed by an alphanumeric pre-release suffix. It is not a full parser.
func IsValidVersion(version string) bool {
	return versionRe.MatchString(version)
}

// IsValidFilename reports whether filename is an acceptable distribution
// filename: a known extension and at least two hyphen separated segments,
// four for wheels.
func IsValidFilename(filename string) bool {
	switch {
	case strings.HasSuffix(filename, ".whl"):
		return len(strings.Split(filename, "-")) >= 4
	case strings.HasSuffix(filename, ".tar.gz"),
		strings.HasSuffix(filename, ".zip"),
		strings.HasSuffix(filename, ".egg"):
		return len(strings.Split(filename, "-")) >= 2
	}
	return false
}

// ValidRequiresPython reports whether spec is a well-formed requires-python
// specifier. The empty string and "*" are valid (no constraint). Callers are
// expected to render invalid values anyway and only log; see the simple
// package.
func ValidRequiresPython(spec string) bool {
	if strings.TrimSpace(spec) == "" || strings.TrimSpace(spec) == "*" {
		return true
	}
	return specifierRe.MatchString(spec) ||
		versionOnlyRe.MatchString(spec) ||
		exclusionRe.MatchString(spec)
}

// ValidProvenanceURL reports whether rawurl is acceptable as a PEP 740
// provenance URL: absolute, https, with an exception for localhost.
func ValidProvenanceURL(rawurl string) bool {
	if rawurl == "" {
		return false
	}
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == "https" {
		return true
	}
	return u.Scheme == "http" && u.Hostname() == "localhost"
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML special characters in text. It is used for
// all user supplied text interpolated into Simple API HTML.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

// PackageType derives the package type and python version tag from a
// distribution filename.
func PackageType(filename string) (packagetype, pythonVersion string) {
	packagetype, pythonVersion = "sdist", "source"

	switch {
	case strings.HasSuffix(filename, ".whl"):
		packagetype = "bdist_wheel"
		// package-1.0-py3-none-any.whl: the python tag is third from the end.
		parts := strings.Split(filename, "-")
		if len(parts) >= 3 {
			pythonVersion = parts[len(parts)-3]
		}
	case strings.HasSuffix(filename, ".egg"):
		packagetype = "bdist_egg"
		if m := eggPyTagRe.FindStringSubmatch(filename); m != nil {
			pythonVersion = "py" + m[1]
		}
	}
	return packagetype, pythonVersion
}

// ContentType returns the MIME type to store alongside a distribution file.
func ContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".tar.gz"):
		return "application/x-tar"
	case strings.HasSuffix(filename, ".whl"):
		return "application/wheel+zip"
	case strings.HasSuffix(filename, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
