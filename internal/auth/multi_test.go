package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeRefresher struct {
	calls   int32
	fail    map[string]bool
	onRefresh func(refreshToken string) (RefreshResult, error)
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken, _, _ string) (RefreshResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onRefresh != nil {
		return f.onRefresh(refreshToken)
	}
	if f.fail[refreshToken] {
		return RefreshResult{}, &RefreshError{Status: 401, Err: errors.New("unauthorized")}
	}
	return RefreshResult{AccessToken: "access-" + refreshToken, ExpiresIn: time.Hour}, nil
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, 5*time.Minute, backoffFor(0))
	assert.Equal(t, 5*time.Minute, backoffFor(1))
	assert.Equal(t, 30*time.Minute, backoffFor(2))
	assert.Equal(t, 2*time.Hour, backoffFor(3))
	assert.Equal(t, 2*time.Hour, backoffFor(10))
}

func TestMultiTokenManagerRotatesOnFailure(t *testing.T) {
	refresher := &fakeRefresher{fail: map[string]bool{"bad": true}}
	m := NewMultiTokenManager([]string{"bad", "good"}, "", "", refresher, time.Hour, time.Hour, zap.NewNop())

	tok, err := m.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "access-good", tok)
}

func TestMultiTokenManagerFailsAfterFullSweep(t *testing.T) {
	refresher := &fakeRefresher{fail: map[string]bool{"a": true, "b": true}}
	m := NewMultiTokenManager([]string{"a", "b"}, "", "", refresher, time.Hour, time.Hour, zap.NewNop())

	_, err := m.GetAccessToken(context.Background())
	assert.Error(t, err)
}

func TestMultiTokenManagerRefreshAllReportsPerTokenStatus(t *testing.T) {
	refresher := &fakeRefresher{fail: map[string]bool{"bad": true}}
	m := NewMultiTokenManager([]string{"good", "bad"}, "", "", refresher, time.Hour, time.Hour, zap.NewNop())

	results := m.RefreshAll(context.Background())
	assert.Equal(t, []bool{true, false}, results)
}

func TestMultiTokenManagerStatusMasksSecrets(t *testing.T) {
	refresher := &fakeRefresher{}
	m := NewMultiTokenManager([]string{"a", "b"}, "", "", refresher, time.Hour, time.Hour, zap.NewNop())
	_, _ = m.GetAccessToken(context.Background())

	status := m.Status()
	assert.Len(t, status, 2)
	assert.True(t, status[0].Active)
	assert.True(t, status[0].HasAccessToken)
}
