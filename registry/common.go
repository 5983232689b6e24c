// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package registry contains the package catalog domain model, the storage
// port interfaces and the cache-aside repository service.
package registry

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default registry error class.
	Error = errs.Class("registry")

	// ErrNotFound is returned when a project, release, file or credential
	// does not exist.
	ErrNotFound = errs.Class("not found")

	// ErrValidation is returned when input fails boundary validation.
	ErrValidation = errs.Class("validation")

	// ErrConflict is returned when a write loses a unique-constraint race.
	// Callers may choose to treat "already exists" as success.
	ErrConflict = errs.Class("conflict")

	// ErrAuthFailed is the single error surfaced for every credential
	// failure, regardless of the root cause.
	ErrAuthFailed = errs.Class("invalid credentials")

	// ErrDegraded is returned when a required backend is unreachable and no
	// fallback can serve the request.
	ErrDegraded = errs.Class("dependency degraded")
)
