// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package regauth verifies credentials: HMAC-signed access tokens, salted
// hashed API keys and OAuth provider tokens. Every failure collapses to the
// uniform registry.ErrAuthFailed so callers cannot tell which check failed;
// the root cause only goes to the log.
package regauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"sol.dev/sol/private/kvstore"
	"sol.dev/sol/registry"
)

var mon = monkit.Package()

// Config holds the credential verification settings.
type Config struct {
	TokenSecret string        `help:"HMAC secret for access tokens"`
	TokenTTL    time.Duration `help:"access token lifetime" default:"30m"`

	APIKeyTTL time.Duration `help:"api key lifetime" default:"8760h"`

	UserCacheTTL time.Duration `help:"how long resolved users are cached" default:"5m"`
	KeyCacheTTL  time.Duration `help:"how long verified api keys are cached" default:"5m"`

	GithubBaseURL    string `help:"github api base url" default:"https://api.github.com"`
	GoogleBaseURL    string `help:"google userinfo base url" default:"https://www.googleapis.com"`
	MicrosoftBaseURL string `help:"microsoft graph base url" default:"https://graph.microsoft.com"`
}

// DefaultConfig returns the credential defaults.
func DefaultConfig() Config {
	return Config{
		TokenTTL:         30 * time.Minute,
		APIKeyTTL:        365 * 24 * time.Hour,
		UserCacheTTL:     5 * time.Minute,
		KeyCacheTTL:      5 * time.Minute,
		GithubBaseURL:    "https://api.github.com",
		GoogleBaseURL:    "https://www.googleapis.com",
		MicrosoftBaseURL: "https://graph.microsoft.com",
	}
}

// Service verifies credentials against the catalog, with the cache as a
// best-effort accelerator.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	db    registry.DB
	cache kvstore.Store // nil when caching is disabled

	config Config
	client *http.Client
	nowFn  func() time.Time
}

// NewService creates a credential verification service.
func NewService(log *zap.Logger, db registry.DB, cache kvstore.Store, config Config) (*Service, error) {
	if log == nil {
		return nil, registry.Error.New("log can't be nil")
	}
	if db == nil {
		return nil, registry.Error.New("db can't be nil")
	}
	if config.TokenSecret == "" {
		return nil, registry.Error.New("token secret is required")
	}

	return &Service{
		log:    log,
		db:     db,
		cache:  cache,
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		nowFn:  time.Now,
	}, nil
}

// TestSetNow overrides the service time source.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

func userKey(id uuid.UUID) kvstore.Key {
	return kvstore.Key("user:" + id.String())
}

// GetUser resolves a user by id, cached for a few minutes.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache != nil {
		if value, err := s.cache.Get(ctx, userKey(id)); err == nil {
			var user registry.User
			if err := json.Unmarshal(value, &user); err == nil {
				return &user, nil
			}
		}
	}

	user, err := s.db.Users().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheUser(ctx, user)
	return user, nil
}

func (s *Service) cacheUser(ctx context.Context, user *registry.User) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.cache.Put(ctx, userKey(user.ID), encoded, s.config.UserCacheTTL); err != nil {
		s.log.Warn("user cache write failed", zap.Error(err))
	}
}

// Authenticate resolves the identity of a request from its credential
// headers. An API key header wins over a bearer token. A request without
// credentials is not an error: it resolves to the implicit anonymous
// identity, which carries the download scope only.
func (s *Service) Authenticate(ctx context.Context, authorization, apiKey string) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	if apiKey != "" {
		user, _, err := s.VerifyAPIKey(ctx, apiKey)
		return user, err
	}

	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		return s.VerifyAccessToken(ctx, token)
	}

	return registry.AnonymousUser(), nil
}

// RequireScope fails with ErrAuthFailed unless the user carries the scope.
func RequireScope(user *registry.User, scope string) error {
	if user == nil || !user.HasScope(scope) {
		return registry.ErrAuthFailed.New("invalid credentials")
	}
	return nil
}
