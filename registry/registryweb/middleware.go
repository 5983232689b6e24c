// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registryweb

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"sol.dev/sol/registry"
	"sol.dev/sol/registry/admission"
)

type contextKey int

const userContextKey contextKey = iota

// withUser attaches the resolved identity to the request context.
func withUser(ctx context.Context, user *registry.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// userFromContext returns the resolved identity, or the anonymous identity
// when the request skipped the middleware chain.
func userFromContext(ctx context.Context) *registry.User {
	if user, ok := ctx.Value(userContextKey).(*registry.User); ok {
		return user
	}
	return registry.AnonymousUser()
}

// recoveryMiddleware turns handler panics into logged internal errors.
func (server *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				server.log.Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", recovered))
				server.serveJSON(w, http.StatusInternalServerError,
					map[string]string{"detail": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware admits or rejects requests before any identity
// verification work happens. The tier is picked by credential header
// presence alone; the client key prefers credentials over hashed addresses.
func (server *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if server.limiter == nil || server.limiter.Exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authenticated := r.Header.Get("Authorization") != "" || r.Header.Get("X-API-Key") != ""
		// admission runs before identity resolution, so no user id is
		// available here; the parameter exists for direct callers that
		// already know the user.
		clientKey := admission.ClientKey("",
			r.Header.Get("X-API-Key"),
			r.Header.Get("X-Forwarded-For"),
			r.RemoteAddr)

		decision := server.limiter.Allow(clientKey, authenticated, server.limiter.Cost(r.URL.Path))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(decision.Limit)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(decision.Remaining)))
		reset := int64(0)
		if !decision.Reset.IsZero() {
			reset = decision.Reset.Unix()
		}
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if !decision.Allowed {
			server.serveJSON(w, http.StatusTooManyRequests,
				map[string]string{"detail": "too many requests, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identityMiddleware resolves the request credentials to a user. Requests
// without credentials proceed as the anonymous download identity; invalid
// credentials end the request here.
func (server *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := server.auth.Authenticate(r.Context(),
			r.Header.Get("Authorization"), r.Header.Get("X-API-Key"))
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}
