// Package credential holds the Token/Envelope types and the persistence
// backends (JSON file, embedded SQL KV table) that load and save them.
package credential

import "time"

// Token is the in-memory record tracked by the auth managers. Invariant
// (spec.md §3): if AccessToken is non-empty, ExpiresAt is non-zero and
// already carries the 60s safety margin below the upstream-reported expiry.
type Token struct {
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
	FailureCount int
	LastFailure  time.Time
	LastRefresh  time.Time
	Failed       bool
	ProfileArn   string
}

// IsFreshFor reports whether the token is valid for at least d past now.
func (t Token) IsFreshFor(d time.Duration) bool {
	if t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(d).Before(t.ExpiresAt)
}

// IsExpired reports whether the token's true expiry has already passed.
func (t Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(t.ExpiresAt)
}

// Masked returns a copy with RefreshToken truncated to its first 8 chars,
// safe for status export (spec.md §4.C: "refresh tokens are never exported
// in the clear").
func (t Token) Masked() Token {
	m := t
	if len(m.RefreshToken) > 8 {
		m.RefreshToken = m.RefreshToken[:8] + "…"
	}
	m.AccessToken = ""
	return m
}

// Envelope is the persisted form of a credential (spec.md §3).
type Envelope struct {
	RefreshToken   string
	AccessToken    string
	ExpiresAt      time.Time
	ProfileArn     string
	Region         string
	ClientID       string // set when issued by a device-flow authority
	ClientSecret   string
	ClientIDHash   string // set when pointing at a sibling registration instead
}

// refreshSafetyMargin is subtracted from the upstream-reported expiry.
const refreshSafetyMargin = 60 * time.Second

// ComputeExpiry returns now + expiresIn - the safety margin.
func ComputeExpiry(now time.Time, expiresIn time.Duration) time.Time {
	return now.Add(expiresIn).Add(-refreshSafetyMargin)
}
