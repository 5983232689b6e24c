// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registryweb

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/regauth"
)

// handleUpload implements the legacy twine-compatible upload endpoint. The
// multipart form carries the distribution file plus its core metadata as
// flat fields.
func (server *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFromContext(ctx)

	if err := regauth.RequireScope(user, registry.ScopeUpload); err != nil {
		server.serveError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(server.config.MaxUploadSize); err != nil {
		server.serveError(w, r, registry.ErrValidation.New("invalid multipart form: %v", err))
		return
	}

	name := r.FormValue("name")
	version := r.FormValue("version")
	if name == "" || version == "" {
		server.serveError(w, r, registry.ErrValidation.New("name and version are required"))
		return
	}

	formFile, header, err := r.FormFile("content")
	if err != nil {
		server.serveError(w, r, registry.ErrValidation.New("content file is required"))
		return
	}
	defer func() { _ = formFile.Close() }()

	content, err := io.ReadAll(formFile)
	if err != nil {
		server.serveError(w, r, Error.Wrap(err))
		return
	}

	md5Sum := md5.Sum(content)
	sha256Sum := sha256.Sum256(content)
	md5Digest := hex.EncodeToString(md5Sum[:])
	sha256Digest := hex.EncodeToString(sha256Sum[:])

	if claimed := r.FormValue("md5_digest"); claimed != "" && !strings.EqualFold(claimed, md5Digest) {
		server.serveError(w, r, registry.ErrValidation.New("md5 digest mismatch"))
		return
	}
	if claimed := r.FormValue("sha256_digest"); claimed != "" && !strings.EqualFold(claimed, sha256Digest) {
		server.serveError(w, r, registry.ErrValidation.New("sha256 digest mismatch"))
		return
	}

	project, err := server.service.GetProject(ctx, name)
	if registry.ErrNotFound.Has(err) {
		project, err = server.service.CreateProject(ctx, name, r.FormValue("summary"))
	}
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	release, err := server.service.GetRelease(ctx, name, version)
	if registry.ErrNotFound.Has(err) {
		release, err = server.service.CreateRelease(ctx, name, registry.Release{
			Version:        version,
			RequiresPython: r.FormValue("requires_python"),
			Metadata:       metadataFromForm(r),
		})
	}
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file, err := server.service.UploadFile(ctx, project, release, header.Filename, content, contentType, registry.UploadOptions{
		RequiresPython: r.FormValue("requires_python"),
		HasSignature:   r.FormValue("gpg_signature") != "",
		UploadedBy:     user.Username,
		Metadata:       metadataFromForm(r),
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.serveJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file": map[string]any{
			"name":          file.Filename,
			"size":          file.Size,
			"md5_digest":    file.MD5Digest,
			"sha256_digest": file.SHA256Digest,
			"content_type":  file.ContentType,
			"url":           "/files/" + file.Path,
		},
	})
}

func metadataFromForm(r *http.Request) registry.Metadata {
	return registry.Metadata{
		Summary:                r.FormValue("summary"),
		Description:            r.FormValue("description"),
		DescriptionContentType: r.FormValue("description_content_type"),
		Author:                 r.FormValue("author"),
		AuthorEmail:            r.FormValue("author_email"),
		Maintainer:             r.FormValue("maintainer"),
		MaintainerEmail:        r.FormValue("maintainer_email"),
		License:                r.FormValue("license"),
		Keywords:               r.FormValue("keywords"),
		Classifiers:            r.Form["classifiers"],
		Platform:               r.FormValue("platform"),
		HomePage:               r.FormValue("home_page"),
		DownloadURL:            r.FormValue("download_url"),
		RequiresDist:           r.Form["requires_dist"],
	}
}
