package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

func TestScopeLock(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	scope := models.Chat(time.Now().UnixNano())

	release, ok, err := s.TryLockScope(ctx, scope, "run-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.TryLockScope(ctx, scope, "run-2")
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := s.ScopeLockHolder(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "run-1", holder)

	// Another scope is independent.
	releaseAll, ok, err := s.TryLockScope(ctx, models.Chat(time.Now().UnixNano()+1), "run-3")
	require.NoError(t, err)
	assert.True(t, ok)
	releaseAll()

	release()
	holder, err = s.ScopeLockHolder(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, holder)
}
