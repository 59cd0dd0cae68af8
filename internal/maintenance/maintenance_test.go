package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/auth"
	"github.com/brgw/gateway/internal/truncation"
)

func TestSchedulerStartStopSingleAccount(t *testing.T) {
	cache := truncation.New(time.Minute, 10)
	s, err := New(cache, nil, zap.NewNop())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}

func TestSchedulerRejectsNothingForMultiAccount(t *testing.T) {
	cache := truncation.New(time.Minute, 10)
	multi := auth.NewMultiTokenManager([]string{"a", "b"}, "", "", nil, time.Hour, time.Hour, zap.NewNop())
	_, err := New(cache, multi, zap.NewNop())
	assert.NoError(t, err)
}
