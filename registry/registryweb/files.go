// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registryweb

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/regauth"
)

func (server *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFromContext(ctx)

	if err := regauth.RequireScope(user, registry.ScopeDownload); err != nil {
		server.serveError(w, r, err)
		return
	}

	path := mux.Vars(r)["path"]
	content, err := server.service.GetFileContent(ctx, path)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.service.CountDownload(ctx, path)

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Content)))
	if content.ETag != "" {
		w.Header().Set("ETag", `"`+content.ETag+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Content)
}
