// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Scopes a credential can carry.
const (
	ScopeUpload   = "upload"
	ScopeDownload = "download"
)

// User is an account resolved through an OAuth provider.
type User struct {
	ID uuid.UUID `json:"id"`

	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`

	// ProviderID and Provider identify the account at the OAuth provider.
	ProviderID string `json:"providerID"`
	Provider   string `json:"provider"`

	Scopes []string `json:"scopes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasScope reports whether the user carries the given scope.
func (user *User) HasScope(scope string) bool {
	for _, s := range user.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AnonymousUser is the implicit identity used for unauthenticated downloads.
func AnonymousUser() *User {
	return &User{
		Username: "anonymous",
		Scopes:   []string{ScopeDownload},
	}
}

// IsAnonymous reports whether the user is the implicit anonymous identity.
func (user *User) IsAnonymous() bool {
	return user.ID == uuid.Nil
}

// Users exposes methods to manage the users table.
//
// architecture: Database
type Users interface {
	// Get queries a user by id.
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByProvider queries a user by provider id and provider name.
	GetByProvider(ctx context.Context, providerID, provider string) (*User, error)
	// Insert adds a user.
	Insert(ctx context.Context, user *User) (*User, error)
	// Update updates username, email and scopes.
	Update(ctx context.Context, user *User) error
}
