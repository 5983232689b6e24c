// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package regauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"

	"sol.dev/sol/private/kvstore"
	"sol.dev/sol/registry"
)

// API keys look like sol_{base64url(uuid)}_{base64url(32 random bytes)}.
// The public key id is the first 8 characters of the uuid part; the raw key
// is returned exactly once at creation and only its PBKDF2 hash is stored.
const (
	apiKeyPrefix = "sol"

	pbkdf2Iterations = 100000
	pbkdf2KeyLength  = 32
	saltLength       = 16
	keyIDLength      = 8
)

// CreatedKey is the result of key creation, including the raw key.
type CreatedKey struct {
	Key  string
	Info *registry.APIKeyInfo
}

// CreateAPIKey generates a new API key for a user. When a non-empty
// description matches an existing key of the same user, that key is revoked
// first so the description stays unique per user.
func (s *Service) CreateAPIKey(ctx context.Context, userID uuid.UUID, scopes []string, description string) (_ *CreatedKey, err error) {
	defer mon.Task()(&ctx)(&err)

	uuidPart := base64.RawURLEncoding.EncodeToString(uuidBytes(uuid.New()))
	randomPart, err := randomToken(32)
	if err != nil {
		return nil, registry.Error.Wrap(err)
	}
	raw := apiKeyPrefix + "_" + uuidPart + "_" + randomPart

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, registry.Error.Wrap(err)
	}
	hash := pbkdf2.Key([]byte(raw), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)

	if description != "" {
		existing, err := s.db.APIKeys().GetByUserAndDescription(ctx, userID, description)
		if err == nil {
			if err := s.db.APIKeys().Revoke(ctx, existing.ID); err != nil {
				return nil, registry.Error.Wrap(err)
			}
		} else if !registry.ErrNotFound.Has(err) {
			return nil, registry.Error.Wrap(err)
		}
	}

	now := s.nowFn()
	info, err := s.db.APIKeys().Insert(ctx, &registry.APIKeyInfo{
		UserID:      userID,
		KeyID:       uuidPart[:keyIDLength],
		KeyHash:     hex.EncodeToString(hash),
		KeySalt:     hex.EncodeToString(salt),
		Scopes:      scopes,
		Description: description,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.APIKeyTTL),
	})
	if err != nil {
		return nil, err
	}

	return &CreatedKey{Key: raw, Info: info}, nil
}

// verifiedKey is the cached result of a successful verification, keyed by a
// digest of the raw key so the key itself never reaches the cache.
type verifiedKey struct {
	UserID   uuid.UUID `json:"userID"`
	APIKeyID uuid.UUID `json:"apiKeyID"`
	Scopes   []string  `json:"scopes"`
}

func verifiedKeyCacheKey(raw string) kvstore.Key {
	digest := sha256.Sum256([]byte(raw))
	return kvstore.Key("api_key_hash:" + hex.EncodeToString(digest[:]))
}

// VerifyAPIKey verifies a raw API key and resolves its user. The returned
// user carries the key's scopes, not the account's. Keys that do not match
// the structured format fall back to a legacy direct lookup.
func (s *Service) VerifyAPIKey(ctx context.Context, raw string) (_ *registry.User, _ *registry.APIKeyInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	parts := strings.Split(raw, "_")
	if len(parts) != 3 || parts[0] != apiKeyPrefix || len(parts[1]) < keyIDLength {
		return s.verifyLegacyKey(ctx, raw)
	}
	keyID := parts[1][:keyIDLength]

	if cached, ok := s.loadVerifiedKey(ctx, raw); ok {
		user, err := s.GetUser(ctx, cached.UserID)
		if err != nil {
			return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
		}
		s.touchKey(ctx, cached.APIKeyID)
		return keyScopedUser(user, cached.Scopes), &registry.APIKeyInfo{ID: cached.APIKeyID, UserID: cached.UserID, KeyID: keyID, Scopes: cached.Scopes}, nil
	}

	info, err := s.db.APIKeys().GetByKeyID(ctx, keyID)
	if err != nil {
		s.log.Debug("api key lookup failed", zap.String("keyID", keyID), zap.Error(err))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	if info.ExpiresAt.Before(s.nowFn()) || info.Revoked {
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	storedHash, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		s.log.Error("stored api key hash is not hex", zap.String("keyID", keyID))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	salt, err := hex.DecodeString(info.KeySalt)
	if err != nil {
		s.log.Error("stored api key salt is not hex", zap.String("keyID", keyID))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	hash := pbkdf2.Key([]byte(raw), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	if !hmac.Equal(hash, storedHash) {
		s.log.Debug("api key hash mismatch", zap.String("keyID", keyID))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	user, err := s.GetUser(ctx, info.UserID)
	if err != nil {
		s.log.Debug("api key user lookup failed", zap.Error(err))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	s.touchKey(ctx, info.ID)
	s.storeVerifiedKey(ctx, raw, verifiedKey{UserID: info.UserID, APIKeyID: info.ID, Scopes: info.Scopes})

	return keyScopedUser(user, info.Scopes), info, nil
}

// verifyLegacyKey looks up pre-migration rows that still store the raw key.
func (s *Service) verifyLegacyKey(ctx context.Context, raw string) (*registry.User, *registry.APIKeyInfo, error) {
	info, err := s.db.APIKeys().GetByLegacyKey(ctx, raw)
	if err != nil {
		s.log.Debug("legacy api key lookup failed", zap.Error(err))
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}
	if info.ExpiresAt.Before(s.nowFn()) || info.Revoked {
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	user, err := s.GetUser(ctx, info.UserID)
	if err != nil {
		return nil, nil, registry.ErrAuthFailed.New("invalid credentials")
	}

	s.touchKey(ctx, info.ID)
	return keyScopedUser(user, info.Scopes), info, nil
}

// RevokeAPIKey revokes a key. The verified-key cache entry cannot be removed
// because its key is derived from the raw key, which is never stored; the
// entry ages out within KeyCacheTTL.
func (s *Service) RevokeAPIKey(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.APIKeys().Revoke(ctx, id)
}

// touchKey updates the key's last-used timestamp best-effort.
func (s *Service) touchKey(ctx context.Context, id uuid.UUID) {
	if err := s.db.APIKeys().UpdateLastUsed(ctx, id, s.nowFn()); err != nil {
		s.log.Warn("api key last-used update failed", zap.Error(err))
	}
}

func (s *Service) loadVerifiedKey(ctx context.Context, raw string) (verifiedKey, bool) {
	if s.cache == nil {
		return verifiedKey{}, false
	}
	value, err := s.cache.Get(ctx, verifiedKeyCacheKey(raw))
	if err != nil {
		return verifiedKey{}, false
	}
	var cached verifiedKey
	if err := json.Unmarshal(value, &cached); err != nil {
		return verifiedKey{}, false
	}
	return cached, true
}

func (s *Service) storeVerifiedKey(ctx context.Context, raw string, cached verifiedKey) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.cache.Put(ctx, verifiedKeyCacheKey(raw), encoded, s.config.KeyCacheTTL); err != nil {
		s.log.Warn("verified key cache write failed", zap.Error(err))
	}
}

// keyScopedUser returns a copy of the user restricted to the key's scopes.
func keyScopedUser(user *registry.User, scopes []string) *registry.User {
	scoped := *user
	if len(scopes) > 0 {
		scoped.Scopes = scopes
	}
	return &scoped
}

func uuidBytes(id uuid.UUID) []byte {
	return id[:]
}

func randomToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
