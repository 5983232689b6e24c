// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// APIKeyInfo describes an API key row. The raw key is never persisted: only
// the PBKDF2 hash and the salt are stored, and the raw key is returned to the
// caller exactly once, at creation.
type APIKeyInfo struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userID"`

	// KeyID is the public identifier, derived from the key at creation.
	KeyID string `json:"keyID"`

	// KeyHash and KeySalt hold the PBKDF2-HMAC-SHA256 digest and its salt,
	// hex encoded.
	KeyHash string `json:"-"`
	KeySalt string `json:"-"`

	// LegacyKey holds the raw key for unsalted rows that predate hashing.
	// Kept only as a migration fallback lookup path.
	LegacyKey string `json:"-"`

	Scopes      []string `json:"scopes"`
	Description string   `json:"description,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`

	Revoked bool `json:"revoked"`
}

// APIKeys exposes methods to manage the api_keys table.
//
// architecture: Database
type APIKeys interface {
	// Insert adds an api key row.
	Insert(ctx context.Context, info *APIKeyInfo) (*APIKeyInfo, error)
	// GetByKeyID queries a non-revoked, non-expired key row by its public
	// key id.
	GetByKeyID(ctx context.Context, keyID string) (*APIKeyInfo, error)
	// GetByLegacyKey queries an unsalted legacy row by the raw key.
	GetByLegacyKey(ctx context.Context, key string) (*APIKeyInfo, error)
	// GetByUserAndDescription queries a key row by owner and description.
	GetByUserAndDescription(ctx context.Context, userID uuid.UUID, description string) (*APIKeyInfo, error)
	// UpdateLastUsed records when the key last authenticated a request.
	UpdateLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error
	// Revoke marks the key as revoked.
	Revoke(ctx context.Context, id uuid.UUID) error
}
