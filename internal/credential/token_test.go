package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeExpiryAppliesSafetyMargin(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ComputeExpiry(now, 10*time.Minute)
	want := now.Add(10*time.Minute - refreshSafetyMargin)
	assert.Equal(t, want, got)
}

func TestTokenIsFreshFor(t *testing.T) {
	tok := Token{
		AccessToken: "a",
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	}
	assert.True(t, tok.IsFreshFor(1*time.Minute))
	assert.False(t, tok.IsFreshFor(10*time.Minute))
}

func TestTokenIsFreshForRequiresAccessToken(t *testing.T) {
	tok := Token{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, tok.IsFreshFor(time.Second))
}

func TestTokenMaskedHidesSecrets(t *testing.T) {
	tok := Token{RefreshToken: "abcdefghijklmnop", AccessToken: "secret"}
	m := tok.Masked()
	assert.Equal(t, "abcdefgh…", m.RefreshToken)
	assert.Empty(t, m.AccessToken)
}

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/credentials.json"
	store := NewJSONStore(path, testLogger())

	env := Envelope{
		RefreshToken: "rt",
		AccessToken:  "at",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		ProfileArn:   "arn:test",
		Region:       "us-east-1",
	}
	assert.NoError(t, store.Save(env))

	loaded, ok, err := store.Load()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, env.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, env.ProfileArn, loaded.ProfileArn)
	assert.WithinDuration(t, env.ExpiresAt, loaded.ExpiresAt, time.Second)
}

func TestJSONStoreMissingFileIsNotAnError(t *testing.T) {
	store := NewJSONStore(t.TempDir()+"/missing.json", testLogger())
	_, ok, err := store.Load()
	assert.NoError(t, err)
	assert.False(t, ok)
}
