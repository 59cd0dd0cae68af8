package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/credential"
)

// slot is one pool entry: a token plus the client credentials needed to
// refresh it (OIDC mode may differ per token).
type slot struct {
	token     credential.Token
	clientID  string
	clientSec string
}

// MultiTokenManager rotates across a pool of refresh tokens with
// exponential backoff keyed by per-token failure count (spec.md §4.C).
// Grounded on original_source/kiro/auth_multi.py's TokenInfo fields; the
// rotation loop itself is reconstructed from spec.md's prose since the
// retrieved source kept only the dataclass/enum scaffolding.
type MultiTokenManager struct {
	mu sync.Mutex

	slots     []slot
	active    int
	refresher Refresher

	refreshThreshold time.Duration
	bgInterval       time.Duration

	logger *zap.Logger
	stopCh chan struct{}
}

// NewMultiTokenManager builds a pool from the given refresh tokens.
func NewMultiTokenManager(refreshTokens []string, clientID, clientSecret string, refresher Refresher, refreshThreshold, bgInterval time.Duration, logger *zap.Logger) *MultiTokenManager {
	slots := make([]slot, len(refreshTokens))
	for i, rt := range refreshTokens {
		slots[i] = slot{token: credential.Token{RefreshToken: rt}, clientID: clientID, clientSec: clientSecret}
	}
	return &MultiTokenManager{
		slots:            slots,
		refresher:        refresher,
		refreshThreshold: refreshThreshold,
		bgInterval:       bgInterval,
		logger:           logger,
		stopCh:           make(chan struct{}),
	}
}

// backoffFor returns the backoff duration for a given failure count.
func backoffFor(failureCount int) time.Duration {
	switch {
	case failureCount <= 1:
		return 5 * time.Minute
	case failureCount == 2:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}

func (m *MultiTokenManager) inBackoffLocked(s slot) bool {
	if !s.token.Failed {
		return false
	}
	return time.Since(s.token.LastFailure) < backoffFor(s.token.FailureCount)
}

// rotateLocked scans cyclically from just after the active index, skipping
// slots in backoff. If every slot is in backoff, resets every Failed flag
// and keeps the previous active index (spec.md §4.C: "permit a new sweep").
// Returns false when the pool is empty or when every slot was in backoff
// (the reset has then already happened, and the active index is unchanged).
func (m *MultiTokenManager) rotateLocked() bool {
	n := len(m.slots)
	if n == 0 {
		return false
	}
	for i := 1; i <= n; i++ {
		idx := (m.active + i) % n
		if !m.inBackoffLocked(m.slots[idx]) {
			m.active = idx
			return true
		}
	}
	for i := range m.slots {
		m.slots[i].token.Failed = false
	}
	m.logger.Warn("all tokens in backoff, resetting pool for a new sweep")
	return false
}

// GetAccessToken refreshes the active token if expiring; on failure it
// rotates and retries, raising only after every pool member has failed in
// one sweep.
func (m *MultiTokenManager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.slots) == 0 {
		return "", apperrors.New(apperrors.CredentialsMissing, "no refresh tokens configured")
	}

	attempts := 0
	maxAttempts := len(m.slots)
	for attempts <= maxAttempts {
		s := &m.slots[m.active]
		if s.token.IsFreshFor(m.refreshThreshold) {
			return s.token.AccessToken, nil
		}
		if err := m.refreshSlotLocked(s); err == nil {
			return s.token.AccessToken, nil
		}
		attempts++
		if !m.rotateLocked() {
			break
		}
	}
	return "", apperrors.New(apperrors.CredentialsStale, "every token in the pool failed during this sweep")
}

func (m *MultiTokenManager) refreshSlotLocked(s *slot) error {
	result, err := m.refresher.Refresh(context.Background(), s.token.RefreshToken, s.clientID, s.clientSec)
	if err != nil {
		s.token.Failed = true
		s.token.FailureCount++
		s.token.LastFailure = time.Now()
		return err
	}
	s.token.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		s.token.RefreshToken = result.RefreshToken
	}
	s.token.ExpiresAt = credential.ComputeExpiry(time.Now(), result.ExpiresIn)
	if result.ProfileArn != "" {
		s.token.ProfileArn = result.ProfileArn
	}
	s.token.Failed = false
	s.token.FailureCount = 0
	s.token.LastRefresh = time.Now()
	return nil
}

// ProfileArn returns the active slot's profile ARN, if any.
func (m *MultiTokenManager) ProfileArn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slots) == 0 {
		return ""
	}
	return m.slots[m.active].token.ProfileArn
}

// SlotStatus mirrors the token-status export of spec.md §4.C.
type SlotStatus struct {
	Active         bool
	HasAccessToken bool
	ExpiresAt      time.Time
	LastRefresh    time.Time
	IsFailed       bool
	FailureCount   int
}

// Status lists the per-slot status, masking refresh tokens by never
// including them.
func (m *MultiTokenManager) Status() []SlotStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlotStatus, len(m.slots))
	for i, s := range m.slots {
		out[i] = SlotStatus{
			Active:         i == m.active,
			HasAccessToken: s.token.AccessToken != "",
			ExpiresAt:      s.token.ExpiresAt,
			LastRefresh:    s.token.LastRefresh,
			IsFailed:       s.token.Failed,
			FailureCount:   s.token.FailureCount,
		}
	}
	return out
}

// RefreshAll refreshes every token, one goroutine per token, and returns
// per-token healthy/failed status, clearing Failed and zeroing FailureCount
// on success. Each goroutine holds the manager mutex for its whole refresh
// call, so the refresh calls run one at a time.
func (m *MultiTokenManager) RefreshAll(ctx context.Context) []bool {
	m.mu.Lock()
	n := len(m.slots)
	m.mu.Unlock()

	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			m.mu.Lock()
			s := &m.slots[idx]
			err := m.refreshSlotLocked(s)
			m.mu.Unlock()
			results[idx] = err == nil
		}(i)
	}
	wg.Wait()
	return results
}

// BackgroundRefresh runs refresh_all every bgInterval after an initial
// 60-second warmup, until Stop is called (spec.md §4.C).
func (m *MultiTokenManager) BackgroundRefresh(ctx context.Context) {
	select {
	case <-time.After(60 * time.Second):
	case <-ctx.Done():
		return
	case <-m.stopCh:
		return
	}
	ticker := time.NewTicker(m.bgInterval)
	defer ticker.Stop()
	for {
		results := m.RefreshAll(ctx)
		healthy := 0
		for _, ok := range results {
			if ok {
				healthy++
			}
		}
		m.logger.Info("multi-token pool refresh sweep complete", zap.Int("healthy", healthy), zap.Int("total", len(results)))
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Stop terminates BackgroundRefresh.
func (m *MultiTokenManager) Stop() { close(m.stopCh) }
