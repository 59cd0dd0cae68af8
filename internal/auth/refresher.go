// Package auth implements the Single-Token and Multi-Token credential
// lifecycle managers and the two upstream refresh protocols (Desktop Auth,
// OIDC).
package auth

import (
	"context"
	"time"
)

// RefreshResult is the camelCase response shared by both refresh protocols
// (spec.md §4.B).
type RefreshResult struct {
	AccessToken  string
	RefreshToken string // optional; empty means "unchanged"
	ExpiresIn    time.Duration
	ProfileArn   string
}

// RefreshError carries the upstream HTTP status so callers can distinguish
// 4xx (reload-and-retry path) from other failures.
type RefreshError struct {
	Status int
	Err    error
}

func (e *RefreshError) Error() string { return e.Err.Error() }
func (e *RefreshError) Unwrap() error { return e.Err }

// Refresher exchanges a refresh token for a new access token against one
// of the two upstream protocols.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (RefreshResult, error)
}
