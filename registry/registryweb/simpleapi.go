// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registryweb

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/simple"
)

func (server *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, contentType, err := simple.NegotiateFormat(r.Header.Get("Accept"), r.URL.Query().Get("format"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	projects, err := server.service.GetAllProjects(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	switch format {
	case simple.FormatJSON:
		versions := map[string][]string{}
		for _, project := range projects {
			releases, err := server.service.GetReleases(ctx, project.NormalizedName)
			if err != nil {
				server.serveError(w, r, err)
				return
			}
			versions[project.NormalizedName] = releaseVersions(releases)
		}

		body, err := server.renderer.RenderProjectListJSON(projects, versions)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		server.serveBody(w, contentType, body)

	default:
		server.serveBody(w, contentType, []byte(server.renderer.RenderProjectListHTML(projects)))
	}
}

func (server *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectName := mux.Vars(r)["project"]

	format, contentType, err := simple.NegotiateFormat(r.Header.Get("Accept"), r.URL.Query().Get("format"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}

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

	var files []registry.File
	for _, release := range releases {
		releaseFiles, err := server.service.GetFiles(ctx, projectName, release.Version)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		files = append(files, releaseFiles...)
	}
	sort.Slice(files, func(i, k int) bool { return files[i].Filename < files[k].Filename })

	switch format {
	case simple.FormatJSON:
		body, err := server.renderer.RenderProjectDetailJSON(project, files, releaseVersions(releases))
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		server.serveBody(w, contentType, body)

	default:
		server.serveBody(w, contentType, []byte(server.renderer.RenderProjectDetailHTML(project, files)))
	}
}

func (server *Server) serveBody(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		server.log.Debug("writing response failed")
	}
}

func releaseVersions(releases []registry.Release) []string {
	versions := make([]string, 0, len(releases))
	for _, release := range releases {
		versions = append(versions, release.Version)
	}
	return versions
}
