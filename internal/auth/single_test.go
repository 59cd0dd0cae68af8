package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/credential"
)

type memStore struct {
	env   credential.Envelope
	ok    bool
	saved []credential.Envelope
}

func (s *memStore) Load() (credential.Envelope, bool, error) { return s.env, s.ok, nil }
func (s *memStore) Save(e credential.Envelope) error {
	s.saved = append(s.saved, e)
	s.env = e
	return nil
}

func TestSingleTokenManagerRefreshesWhenStale(t *testing.T) {
	store := &memStore{}
	refresher := &fakeRefresher{}
	m := NewSingleTokenManager(store, refresher, false, time.Hour, time.Hour, zap.NewNop())

	tok, err := m.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "access-", tok)
	assert.Len(t, store.saved, 1)
}

func TestSingleTokenManagerReturnsCachedWhenFresh(t *testing.T) {
	store := &memStore{}
	refresher := &fakeRefresher{}
	m := NewSingleTokenManager(store, refresher, false, time.Minute, time.Hour, zap.NewNop())
	m.token = credential.Token{AccessToken: "cached", ExpiresAt: time.Now().Add(time.Hour)}

	tok, err := m.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Equal(t, int32(0), refresher.calls)
}

func TestSingleTokenManagerGracefulDegradationOnSQLBadRequest(t *testing.T) {
	store := &memStore{}
	refresher := &fakeRefresher{onRefresh: func(string) (RefreshResult, error) {
		return RefreshResult{}, &RefreshError{Status: 400, Err: errors.New("bad request")}
	}}
	m := NewSingleTokenManager(store, refresher, true, time.Hour, time.Hour, zap.NewNop())
	m.token = credential.Token{AccessToken: "stale-but-usable", ExpiresAt: time.Now().Add(time.Minute)}

	tok, err := m.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "stale-but-usable", tok)
}

func TestSingleTokenManagerIsFreshForStreamingDefaultWindow(t *testing.T) {
	store := &memStore{}
	m := NewSingleTokenManager(store, &fakeRefresher{}, false, time.Hour, time.Hour, zap.NewNop())
	m.token = credential.Token{AccessToken: "a", ExpiresAt: time.Now().Add(700 * time.Second)}
	assert.True(t, m.IsFreshForStreaming(0))

	m.token.ExpiresAt = time.Now().Add(100 * time.Second)
	assert.False(t, m.IsFreshForStreaming(0))
}
