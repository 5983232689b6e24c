// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package regauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sol.dev/sol/registry"
)

// OAuth providers supported for token exchange.
const (
	ProviderGithub    = "github"
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// providerUser is the normalized identity returned by a provider adapter.
type providerUser struct {
	ProviderID string
	Username   string
	Name       string
	Email      string
}

// VerifyOAuthToken exchanges a provider access token for user info and
// finds or creates the matching local account, syncing username and email
// on drift. New accounts get the download scope.
func (s *Service) VerifyOAuthToken(ctx context.Context, token, provider string) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	var identity *providerUser
	switch provider {
	case ProviderGithub:
		identity, err = s.githubUser(ctx, token)
	case ProviderGoogle:
		identity, err = s.googleUser(ctx, token)
	case ProviderMicrosoft:
		identity, err = s.microsoftUser(ctx, token)
	default:
		s.log.Warn("unsupported oauth provider", zap.String("provider", provider))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	if err != nil {
		s.log.Debug("oauth token exchange failed",
			zap.String("provider", provider), zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	user, err := s.findOrCreateUser(ctx, identity, provider)
	if err != nil {
		s.log.Error("oauth user resolution failed",
			zap.String("provider", provider), zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	return user, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, identity *providerUser, provider string) (*registry.User, error) {
	user, err := s.db.Users().GetByProvider(ctx, identity.ProviderID, provider)
	switch {
	case err == nil:
		if user.Username != identity.Username || user.Email != identity.Email {
			user.Username = identity.Username
			user.Email = identity.Email
			user.UpdatedAt = s.nowFn()
			if err := s.db.Users().Update(ctx, user); err != nil {
				return nil, err
			}
		}

	case registry.ErrNotFound.Has(err):
		now := s.nowFn()
		user, err = s.db.Users().Insert(ctx, &registry.User{
			Username:   identity.Username,
			Email:      identity.Email,
			FullName:   identity.Name,
			ProviderID: identity.ProviderID,
			Provider:   provider,
			Scopes:     []string{registry.ScopeDownload},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	s.cacheUser(ctx, user)
	return user, nil
}

func (s *Service) githubUser(ctx context.Context, token string) (*providerUser, error) {
	var account struct {
		ID    json.Number `json:"id"`
		Login string      `json:"login"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	}
	if err := s.providerGet(ctx, s.config.GithubBaseURL+"/user", "token "+token, &account); err != nil {
		return nil, err
	}

	// the account email can be private, the emails endpoint has the
	// primary one
	email := account.Email
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := s.providerGet(ctx, s.config.GithubBaseURL+"/user/emails", "token "+token, &emails); err == nil {
		for _, entry := range emails {
			if entry.Primary {
				email = entry.Email
				break
			}
		}
	}

	return &providerUser{
		ProviderID: account.ID.String(),
		Username:   account.Login,
		Name:       account.Name,
		Email:      email,
	}, nil
}

func (s *Service) googleUser(ctx context.Context, token string) (*providerUser, error) {
	var account struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := s.providerGet(ctx, s.config.GoogleBaseURL+"/oauth2/v3/userinfo", "Bearer "+token, &account); err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.ReplaceAll(account.Name, " ", ""))
	if username == "" {
		username = account.Sub
	}

	return &providerUser{
		ProviderID: account.Sub,
		Username:   username,
		Name:       account.Name,
		Email:      account.Email,
	}, nil
}

func (s *Service) microsoftUser(ctx context.Context, token string) (*providerUser, error) {
	var account struct {
		ID                string `json:"id"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
	}
	if err := s.providerGet(ctx, s.config.MicrosoftBaseURL+"/v1.0/me", "Bearer "+token, &account); err != nil {
		return nil, err
	}

	username, _, _ := strings.Cut(account.UserPrincipalName, "@")
	if username == "" {
		username = account.ID
	}
	email := account.Mail
	if email == "" {
		email = account.UserPrincipalName
	}

	return &providerUser{
		ProviderID: account.ID,
		Username:   username,
		Name:       account.DisplayName,
		Email:      email,
	}, nil
}

func (s *Service) providerGet(ctx context.Context, url, authorization string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return registry.Error.Wrap(err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return registry.Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return registry.Error.New("provider returned status %d", resp.StatusCode)
	}
	return registry.Error.Wrap(json.NewDecoder(resp.Body).Decode(dest))
}
