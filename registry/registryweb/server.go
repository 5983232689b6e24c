// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package registryweb implements the HTTP surface of the registry: the
// Simple API, the JSON API, file downloads and the legacy upload endpoint.
package registryweb

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/admission"
	"sol.dev/sol/registry/regauth"
	"sol.dev/sol/registry/simple"
)

var (
	// Error is the default error class for this package.
	Error = errs.Class("registryweb")

	mon = monkit.Package()
)

// Config holds the HTTP server settings.
type Config struct {
	Address string `help:"address to listen on" default:":8080"`

	ShutdownTimeout time.Duration `help:"how long to wait for inflight requests on shutdown" default:"10s"`

	// MaxUploadSize bounds the accepted multipart upload body.
	MaxUploadSize int64 `help:"maximum accepted upload size in bytes" default:"104857600"`
}

// Server wires the admission layer, the registry service and the protocol
// renderer into an HTTP endpoint.
//
// architecture: Endpoint
type Server struct {
	log *zap.Logger

	config   Config
	service  *registry.Service
	auth     *regauth.Service
	limiter  *admission.Limiter
	renderer *simple.Renderer

	server   http.Server
	listener net.Listener
}

// NewServer creates a new registry HTTP server.
func NewServer(log *zap.Logger, config Config, service *registry.Service, auth *regauth.Service, limiter *admission.Limiter, listener net.Listener) *Server {
	server := &Server{
		log:      log,
		config:   config,
		service:  service,
		auth:     auth,
		limiter:  limiter,
		renderer: simple.NewRenderer(log.Named("renderer")),
		listener: listener,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", server.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/simple/", server.handleProjectList).Methods(http.MethodGet)
	router.HandleFunc("/simple/{project}/", server.handleProjectDetail).Methods(http.MethodGet)

	router.HandleFunc("/pypi/{project}/json", server.handleProjectJSON).Methods(http.MethodGet)
	router.HandleFunc("/pypi/{project}/{version}/json", server.handleReleaseJSON).Methods(http.MethodGet)

	router.HandleFunc("/files/{path:.+}", server.handleDownload).Methods(http.MethodGet)
	router.HandleFunc("/legacy/", server.handleUpload).Methods(http.MethodPost)

	router.Use(server.recoveryMiddleware, server.rateLimitMiddleware, server.identityMiddleware)

	server.server = http.Server{
		Handler: router,
	}
	return server
}

// Run starts the server and blocks until ctx is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer shutdownCancel()
		return Error.Wrap(server.server.Shutdown(shutdownCtx))
	})
	group.Go(func() error {
		defer cancel()
		server.log.Info("registry server listening", zap.String("address", server.listener.Addr().String()))
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close shuts the server down without waiting for inflight requests.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// TestHandler exposes the router for httptest-based tests.
func (server *Server) TestHandler() http.Handler {
	return server.server.Handler
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	server.serveJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveJSON writes a JSON body with the given status.
func (server *Server) serveJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		server.log.Debug("writing response failed", zap.Error(err))
	}
}

// serveError maps an error onto the response taxonomy. Everything
// unexpected is logged with context and collapsed to a generic internal
// error so implementation detail never reaches the client.
func (server *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case registry.ErrNotFound.Has(err):
		server.serveJSON(w, http.StatusNotFound, map[string]string{"detail": errs.Unwrap(err).Error()})
	case registry.ErrValidation.Has(err):
		server.serveJSON(w, http.StatusBadRequest, map[string]string{"detail": errs.Unwrap(err).Error()})
	case registry.ErrConflict.Has(err):
		server.serveJSON(w, http.StatusConflict, map[string]string{"detail": errs.Unwrap(err).Error()})
	case registry.ErrAuthFailed.Has(err):
		server.serveJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
	case simple.ErrNotAcceptable.Has(err):
		server.serveJSON(w, http.StatusNotAcceptable, map[string]string{"detail": "not acceptable"})
	default:
		server.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		server.serveJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal server error"})
	}
}
