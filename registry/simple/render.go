// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package simple

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/pkgname"
)

// Renderer builds protocol response bodies. It is stateless per request; the
// logger carries the leniency warnings required by the field validation
// rules.
type Renderer struct {
	log *zap.Logger
}

// NewRenderer creates a renderer.
func NewRenderer(log *zap.Logger) *Renderer {
	return &Renderer{log: log}
}

// Meta is the PEP 691 response metadata block.
type Meta struct {
	APIVersion string `json:"api-version"`
}

// ProjectEntry names one project in the project list.
type ProjectEntry struct {
	Name string `json:"name"`
}

// ProjectList is the PEP 691 body of the repository index.
type ProjectList struct {
	Meta     Meta                       `json:"meta"`
	Projects []ProjectEntry             `json:"projects"`
	Versions map[string][]string        `json:"versions"`
	Tracks   map[string]map[string]bool `json:"tracks"`
}

// FileEntry is one file of the PEP 691 project detail body. Yanked and the
// metadata fields are boolean-or-value per the PEPs, hence untyped.
type FileEntry struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	Size           int64             `json:"size"`
	RequiresPython string            `json:"requires-python,omitempty"`
	Yanked         any               `json:"yanked,omitempty"`
	CoreMetadata   any               `json:"core-metadata,omitempty"`
	MetadataLegacy any               `json:"dist-info-metadata,omitempty"`
	GPGSig         bool              `json:"gpg-sig,omitempty"`
	UploadTime     string            `json:"upload-time,omitempty"`
	Provenance     string            `json:"provenance,omitempty"`
}

// ProjectDetail is the PEP 691 body of a single project page.
type ProjectDetail struct {
	Meta     Meta                       `json:"meta"`
	Name     string                     `json:"name"`
	Files    []FileEntry                `json:"files"`
	Versions []string                   `json:"versions"`
	Tracks   map[string]map[string]bool `json:"tracks"`
}

const repositoryVersion = "1.3"

func defaultTracks() map[string]map[string]bool {
	return map[string]map[string]bool{
		"default":    {"stable": true},
		"stable":     {"stable": true},
		"prerelease": {"dev": true, "a": true, "b": true, "rc": true},
	}
}

// RenderProjectListHTML renders the PEP 503 repository index.
func (r *Renderer) RenderProjectListHTML(projects []registry.Project) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n  <head>\n")
	b.WriteString(`    <meta name="pypi:repository-version" content="` + repositoryVersion + "\">\n")
	b.WriteString("  </head>\n  <body>\n")

	for _, project := range projects {
		b.WriteString(`    <a href="/simple/` + project.NormalizedName + `/">`)
		b.WriteString(pkgname.EscapeHTML(project.Name))
		b.WriteString("</a>\n")
	}

	b.WriteString("  </body>\n</html>\n")
	return b.String()
}

// RenderProjectListJSON renders the PEP 691 repository index. versions maps
// normalized project names to their known version strings.
func (r *Renderer) RenderProjectListJSON(projects []registry.Project, versions map[string][]string) ([]byte, error) {
	entries := make([]ProjectEntry, 0, len(projects))
	for _, project := range projects {
		entries = append(entries, ProjectEntry{Name: project.Name})
	}
	if versions == nil {
		versions = map[string][]string{}
	}

	body, err := json.Marshal(ProjectList{
		Meta:     Meta{APIVersion: repositoryVersion},
		Projects: entries,
		Versions: versions,
		Tracks:   defaultTracks(),
	})
	return body, Error.Wrap(err)
}

// RenderProjectDetailHTML renders the PEP 503 project page. Files must be
// sorted by filename by the caller.
func (r *Renderer) RenderProjectDetailHTML(project *registry.Project, files []registry.File) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n  <head>\n")
	b.WriteString(`    <meta name="pypi:repository-version" content="` + repositoryVersion + "\">\n")
	b.WriteString("  </head>\n  <body>\n")
	b.WriteString("    <h1>" + pkgname.EscapeHTML(project.Name) + "</h1>\n")

	for i := range files {
		file := &files[i]

		b.WriteString(`    <a href="/files/` + file.Path)
		if file.SHA256Digest != "" {
			b.WriteString("#sha256=" + strings.ToLower(file.SHA256Digest))
		}
		b.WriteString(`"`)

		if file.RequiresPython != "" {
			// rendered even when malformed, the field is too widely
			// hand-written to reject
			if !pkgname.ValidRequiresPython(file.RequiresPython) {
				r.log.Warn("invalid requires-python rendered as-is",
					zap.String("filename", file.Filename),
					zap.String("requiresPython", file.RequiresPython))
			}
			b.WriteString(` data-requires-python="` + pkgname.EscapeHTML(file.RequiresPython) + `"`)
		}

		if file.Yanked {
			if file.YankReason != "" {
				b.WriteString(` data-yanked="` + pkgname.EscapeHTML(file.YankReason) + `"`)
			} else {
				b.WriteString(` data-yanked="true"`)
			}
		}

		if file.HasMetadata {
			value := "true"
			if file.MetadataSHA256 != "" {
				value = "sha256=" + strings.ToLower(file.MetadataSHA256)
			}
			b.WriteString(` data-core-metadata="` + value + `"`)
			b.WriteString(` data-dist-info-metadata="` + value + `"`)
		}

		if file.HasSignature {
			b.WriteString(` data-gpg-sig="true"`)
		}

		if file.Provenance != "" {
			if pkgname.ValidProvenanceURL(file.Provenance) {
				b.WriteString(` data-provenance="` + pkgname.EscapeHTML(file.Provenance) + `"`)
			} else {
				r.log.Warn("invalid provenance url dropped",
					zap.String("filename", file.Filename),
					zap.String("provenance", file.Provenance))
			}
		}

		b.WriteString(">" + pkgname.EscapeHTML(file.Filename) + "</a>\n")
	}

	b.WriteString("  </body>\n</html>\n")
	return b.String()
}

// RenderProjectDetailJSON renders the PEP 691 project page. Files must be
// sorted by filename by the caller.
func (r *Renderer) RenderProjectDetailJSON(project *registry.Project, files []registry.File, versions []string) ([]byte, error) {
	entries := make([]FileEntry, 0, len(files))
	for i := range files {
		entries = append(entries, r.fileEntry(&files[i]))
	}
	if versions == nil {
		versions = []string{}
	}

	body, err := json.Marshal(ProjectDetail{
		Meta:     Meta{APIVersion: repositoryVersion},
		Name:     project.NormalizedName,
		Files:    entries,
		Versions: versions,
		Tracks:   defaultTracks(),
	})
	return body, Error.Wrap(err)
}

func (r *Renderer) fileEntry(file *registry.File) FileEntry {
	hashes := map[string]string{}
	for algorithm, digest := range file.Hashes() {
		hashes[algorithm] = strings.ToLower(digest)
	}

	if file.Size == 0 {
		// the field is mandatory since API v1.1, zero is better than absent
		r.log.Error("file has no recorded size", zap.String("filename", file.Filename))
	}

	entry := FileEntry{
		Filename: file.Filename,
		URL:      "/files/" + file.Path,
		Hashes:   hashes,
		Size:     file.Size,
	}

	if file.RequiresPython != "" {
		if !pkgname.ValidRequiresPython(file.RequiresPython) {
			r.log.Warn("invalid requires-python rendered as-is",
				zap.String("filename", file.Filename),
				zap.String("requiresPython", file.RequiresPython))
		}
		entry.RequiresPython = file.RequiresPython
	}

	if file.Yanked {
		if file.YankReason != "" {
			entry.Yanked = file.YankReason
		} else {
			entry.Yanked = true
		}
	}

	if file.HasMetadata {
		var value any = true
		if file.MetadataSHA256 != "" {
			value = map[string]string{"sha256": strings.ToLower(file.MetadataSHA256)}
		}
		entry.CoreMetadata = value
		entry.MetadataLegacy = value
	}

	entry.GPGSig = file.HasSignature

	if !file.UploadTime.IsZero() {
		entry.UploadTime = file.UploadTime.UTC().Format(time.RFC3339)
	}

	if file.Provenance != "" {
		if pkgname.ValidProvenanceURL(file.Provenance) {
			entry.Provenance = file.Provenance
		} else {
			r.log.Warn("invalid provenance url dropped",
				zap.String("filename", file.Filename),
				zap.String("provenance", file.Provenance))
		}
	}

	return entry
}
