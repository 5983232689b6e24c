// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package regauth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sol.dev/sol/registry"
)

// CreateAccessToken issues an HMAC-SHA256 signed token carrying the user id
// as subject plus issued-at and expiration claims.
func (s *Service) CreateAccessToken(ctx context.Context, userID uuid.UUID) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	now := s.nowFn()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"iat": now.Unix(),
		"exp": now.Add(s.config.TokenTTL).Unix(),
	})

	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return "", registry.Error.Wrap(err)
	}
	return signed, nil
}

// VerifyAccessToken verifies a token and resolves its user. Missing, expired
// and malformed tokens all fail the same way.
func (s *Service) VerifyAccessToken(ctx context.Context, raw string) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, registry.ErrAuthFailed.New("unexpected signing method")
		}
		return []byte(s.config.TokenSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.nowFn))
	if err != nil || !token.Valid {
		s.log.Debug("access token rejected", zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		s.log.Debug("access token has no subject", zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		s.log.Debug("access token subject is not a user id", zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		s.log.Debug("access token user lookup failed", zap.Error(err))
		return nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	return user, nil
}
