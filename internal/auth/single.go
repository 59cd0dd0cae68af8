package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/credential"
)

// SingleTokenManager holds one refresh credential and serialises every
// mutation through a single mutex, per spec.md §4.B and §5 ("the gate MUST
// be acquired before the 'is expiring soon' test, to close the
// check-then-act race"). Grounded on original_source/kiro/auth.py's
// KiroAuthManager.
type SingleTokenManager struct {
	mu sync.Mutex

	store     credential.Store
	refresher Refresher
	token     credential.Token
	clientID  string
	clientSec string
	sqlBacked bool

	refreshThreshold time.Duration
	bgInterval       time.Duration

	logger *zap.Logger
	stopCh chan struct{}
}

// NewSingleTokenManager constructs a manager seeded from the envelope that
// store.Load returns at construction time. It takes no refresh token from
// any other source; if the store has no envelope, the manager starts empty.
func NewSingleTokenManager(store credential.Store, refresher Refresher, sqlBacked bool, refreshThreshold, bgInterval time.Duration, logger *zap.Logger) *SingleTokenManager {
	m := &SingleTokenManager{
		store:            store,
		refresher:        refresher,
		sqlBacked:        sqlBacked,
		refreshThreshold: refreshThreshold,
		bgInterval:       bgInterval,
		logger:           logger,
		stopCh:           make(chan struct{}),
	}
	if env, ok, _ := store.Load(); ok {
		m.applyEnvelopeLocked(env)
	}
	return m
}

func (m *SingleTokenManager) applyEnvelopeLocked(env credential.Envelope) {
	m.token = credential.Token{
		RefreshToken: env.RefreshToken,
		AccessToken:  env.AccessToken,
		ExpiresAt:    env.ExpiresAt,
		ProfileArn:   env.ProfileArn,
	}
	m.clientID = env.ClientID
	m.clientSec = env.ClientSecret
}

// GetAccessToken returns a token valid for at least refreshThreshold,
// implementing the full algorithm of spec.md §4.B.
func (m *SingleTokenManager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.IsFreshFor(m.refreshThreshold) {
		return m.token.AccessToken, nil
	}

	if m.sqlBacked {
		if env, ok, _ := m.store.Load(); ok {
			m.applyEnvelopeLocked(env)
			if m.token.IsFreshFor(m.refreshThreshold) {
				return m.token.AccessToken, nil
			}
		}
	}

	if err := m.refreshLocked(ctx); err != nil {
		var refreshErr *RefreshError
		if m.sqlBacked && asRefreshError(err, &refreshErr) && refreshErr.Status >= 400 && refreshErr.Status < 500 {
			if env, ok, _ := m.store.Load(); ok {
				m.applyEnvelopeLocked(env)
			}
			if retryErr := m.refreshLocked(ctx); retryErr != nil {
				if !m.token.IsExpired() && m.token.AccessToken != "" {
					m.logger.Warn("refresh failed twice, serving stale-but-usable token")
					return m.token.AccessToken, nil
				}
				return "", apperrors.Wrap(apperrors.CredentialsStale, "credential refresh failed and no usable token remains", retryErr)
			}
			return m.token.AccessToken, nil
		}
		return "", apperrors.Wrap(apperrors.CredentialsStale, "credential refresh failed", err)
	}
	return m.token.AccessToken, nil
}

func asRefreshError(err error, target **RefreshError) bool {
	for err != nil {
		if re, ok := err.(*RefreshError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ApplyEnvelope replaces the manager's in-memory token with one loaded
// from an externally-updated envelope (the credential hot-reload path).
func (m *SingleTokenManager) ApplyEnvelope(env credential.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyEnvelopeLocked(env)
}

// ProfileArn returns the profile ARN associated with the current token, if
// the refresh response ever supplied one.
func (m *SingleTokenManager) ProfileArn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.ProfileArn
}

// SingleStatus mirrors spec.md §4.B's single-account status export, masking
// the refresh token by never including it.
type SingleStatus struct {
	HasAccessToken bool
	ExpiresAt      time.Time
	LastRefresh    time.Time
	IsFailed       bool
	FailureCount   int
	ProfileArn     string
}

// Status reports the manager's current token health.
func (m *SingleTokenManager) Status() SingleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SingleStatus{
		HasAccessToken: m.token.AccessToken != "",
		ExpiresAt:      m.token.ExpiresAt,
		LastRefresh:    m.token.LastRefresh,
		IsFailed:       m.token.Failed,
		FailureCount:   m.token.FailureCount,
		ProfileArn:     m.token.ProfileArn,
	}
}

// ForceRefresh unconditionally refreshes and returns the new access token.
func (m *SingleTokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return "", apperrors.Wrap(apperrors.CredentialsStale, "forced refresh failed", err)
	}
	return m.token.AccessToken, nil
}

// IsFreshForStreaming reports whether the token is valid for at least
// minSeconds past now (default 600s per spec.md §4.B).
func (m *SingleTokenManager) IsFreshForStreaming(minSeconds time.Duration) bool {
	if minSeconds == 0 {
		minSeconds = 600 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.IsFreshFor(minSeconds)
}

// refreshLocked performs the HTTP refresh call and persists the result.
// Caller must hold m.mu. Never releases the lock across the call, per
// spec.md §5.
func (m *SingleTokenManager) refreshLocked(ctx context.Context) error {
	result, err := m.refresher.Refresh(ctx, m.token.RefreshToken, m.clientID, m.clientSec)
	if err != nil {
		m.token.Failed = true
		m.token.FailureCount++
		m.token.LastFailure = time.Now()
		return err
	}
	m.token.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		m.token.RefreshToken = result.RefreshToken
	}
	m.token.ExpiresAt = credential.ComputeExpiry(time.Now(), result.ExpiresIn)
	if result.ProfileArn != "" {
		m.token.ProfileArn = result.ProfileArn
	}
	m.token.Failed = false
	m.token.FailureCount = 0
	m.token.LastRefresh = time.Now()

	env := credential.Envelope{
		RefreshToken: m.token.RefreshToken,
		AccessToken:  m.token.AccessToken,
		ExpiresAt:    m.token.ExpiresAt,
		ProfileArn:   m.token.ProfileArn,
		ClientID:     m.clientID,
		ClientSecret: m.clientSec,
	}
	if err := m.store.Save(env); err != nil {
		m.logger.Warn("failed to persist refreshed credential", zap.Error(err))
	}
	return nil
}

// BackgroundRefresh runs until Stop is called, waking every bgInterval to
// re-check and refresh under the gate. Waits at least 30s after an error
// to avoid spin (spec.md §5).
func (m *SingleTokenManager) BackgroundRefresh(ctx context.Context) {
	ticker := time.NewTicker(m.bgInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			needsRefresh := !m.token.IsFreshFor(m.refreshThreshold)
			var err error
			if needsRefresh {
				err = m.refreshLocked(ctx)
			}
			m.mu.Unlock()
			if err != nil {
				m.logger.Warn("background refresh failed", zap.Error(err))
				select {
				case <-time.After(30 * time.Second):
				case <-ctx.Done():
					return
				case <-m.stopCh:
					return
				}
			}
		}
	}
}

// Stop terminates BackgroundRefresh.
func (m *SingleTokenManager) Stop() { close(m.stopCh) }
