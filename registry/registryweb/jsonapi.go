// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registryweb

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sol.dev/sol/registry"
)

// The /pypi JSON endpoints are not covered by a PEP but are widely used by
// tooling, mirroring PyPI's own /pypi/{project}/json surface.

type projectInfo struct {
	Name                   string            `json:"name"`
	Version                string            `json:"version"`
	Summary                string            `json:"summary,omitempty"`
	Description            string            `json:"description,omitempty"`
	DescriptionContentType string            `json:"description_content_type,omitempty"`
	Author                 string            `json:"author,omitempty"`
	AuthorEmail            string            `json:"author_email,omitempty"`
	Maintainer             string            `json:"maintainer,omitempty"`
	MaintainerEmail        string            `json:"maintainer_email,omitempty"`
	License                string            `json:"license,omitempty"`
	Keywords               string            `json:"keywords,omitempty"`
	Classifiers            []string          `json:"classifiers"`
	Platform               string            `json:"platform,omitempty"`
	HomePage               string            `json:"home_page,omitempty"`
	DownloadURL            string            `json:"download_url,omitempty"`
	RequiresPython         string            `json:"requires_python,omitempty"`
	RequiresDist           []string          `json:"requires_dist"`
	ProjectURLs            map[string]string `json:"project_urls"`
	Yanked                 bool              `json:"yanked"`
	YankedReason           string            `json:"yanked_reason,omitempty"`
}

type fileInfo struct {
	Filename          string            `json:"filename"`
	URL               string            `json:"url"`
	Size              int64             `json:"size"`
	Digests           map[string]string `json:"digests"`
	PythonVersion     string            `json:"python_version"`
	PackageType       string            `json:"packagetype"`
	HasSig            bool              `json:"has_sig"`
	UploadTime        string            `json:"upload_time,omitempty"`
	UploadTimeISO8601 string            `json:"upload_time_iso_8601,omitempty"`
	RequiresPython    string            `json:"requires_python,omitempty"`
	Yanked            bool              `json:"yanked"`
	YankedReason      string            `json:"yanked_reason,omitempty"`
	Downloads         int64             `json:"downloads"`
}

func (server *Server) handleProjectJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectName := mux.Vars(r)["project"]

	project, err := server.service.GetProject(ctx, projectName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	releases, err := server.service.GetReleases(ctx, projectName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	releaseFiles := map[string][]fileInfo{}
	for _, release := range releases {
		files, err := server.service.GetFiles(ctx, projectName, release.Version)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		releaseFiles[release.Version] = fileInfos(files)
	}

	// the latest release by upload time carries the detail metadata
	var latest *registry.Release
	for i := range releases {
		if latest == nil || releases[i].UploadedAt.After(latest.UploadedAt) {
			latest = &releases[i]
		}
	}

	var urls []fileInfo
	if latest != nil {
		urls = releaseFiles[latest.Version]
	}

	server.serveJSON(w, http.StatusOK, map[string]any{
		"info":        buildProjectInfo(project, latest),
		"last_serial": 1,
		"releases":    releaseFiles,
		"urls":        urls,
	})
}

func (server *Server) handleReleaseJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	projectName, version := vars["project"], vars["version"]

	project, err := server.service.GetProject(ctx, projectName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	release, err := server.service.GetRelease(ctx, projectName, version)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	files, err := server.service.GetFiles(ctx, projectName, version)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.serveJSON(w, http.StatusOK, map[string]any{
		"info":        buildProjectInfo(project, release),
		"last_serial": 1,
		"urls":        fileInfos(files),
	})
}

func buildProjectInfo(project *registry.Project, release *registry.Release) projectInfo {
	info := projectInfo{
		Name:         project.Name,
		Description:  project.Description,
		Classifiers:  []string{},
		RequiresDist: []string{},
		ProjectURLs:  map[string]string{},
	}
	if release == nil {
		return info
	}

	info.Version = release.Version
	info.Summary = release.Summary
	info.DescriptionContentType = release.DescriptionContentType
	info.Author = release.Author
	info.AuthorEmail = release.AuthorEmail
	info.Maintainer = release.Maintainer
	info.MaintainerEmail = release.MaintainerEmail
	info.License = release.License
	info.Keywords = release.Keywords
	info.Platform = release.Platform
	info.HomePage = release.HomePage
	info.DownloadURL = release.DownloadURL
	info.RequiresPython = release.RequiresPython
	info.Yanked = release.Yanked
	if release.Description != "" {
		info.Description = release.Description
	}
	if release.Classifiers != nil {
		info.Classifiers = release.Classifiers
	}
	if release.RequiresDist != nil {
		info.RequiresDist = release.RequiresDist
	}
	if release.ProjectURLs != nil {
		info.ProjectURLs = release.ProjectURLs
	}
	if release.Yanked {
		info.YankedReason = release.YankReason
	}
	return info
}

func fileInfos(files []registry.File) []fileInfo {
	infos := make([]fileInfo, 0, len(files))
	for i := range files {
		file := &files[i]
		info := fileInfo{
			Filename:       file.Filename,
			URL:            "/files/" + file.Path,
			Size:           file.Size,
			Digests:        file.Hashes(),
			PythonVersion:  file.PythonVersion,
			PackageType:    file.PackageType,
			HasSig:         file.HasSignature,
			RequiresPython: file.RequiresPython,
			Yanked:         file.Yanked,
			Downloads:      file.Downloads,
		}
		if !file.UploadTime.IsZero() {
			info.UploadTime = file.UploadTime.UTC().Format("2006-01-02 15:04:05")
			info.UploadTimeISO8601 = file.UploadTime.UTC().Format(time.RFC3339)
		}
		if file.Yanked {
			info.YankedReason = file.YankReason
		}
		infos = append(infos, info)
	}
	return infos
}
