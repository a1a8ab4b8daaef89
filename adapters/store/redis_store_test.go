package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/nostr-gate/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, cfg Config) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, cfg), mr
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	s, mr := newTestRedisStore(t, Config{ChallengeTTL: time.Minute})
	ctx := context.Background()

	c, err := s.Create(ctx, core.ChallengeKindLogin)
	require.NoError(t, err)
	assert.Len(t, c.ID, 2*challengeIDBytes)
	assert.Equal(t, time.Minute, mr.TTL(s.prefix+c.ID))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, core.ChallengeKindLogin, got.Kind)
	assert.False(t, got.Verified)
	assert.Equal(t, c.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	status, err := s.Status(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, status)
}

func TestRedisStore_MarkVerifiedOnce(t *testing.T) {
	s, mr := newTestRedisStore(t, Config{ChallengeTTL: time.Minute, VerifiedTTL: 10 * time.Minute})
	ctx := context.Background()

	c, err := s.Create(ctx, core.ChallengeKindLogin)
	require.NoError(t, err)

	require.NoError(t, s.MarkVerified(ctx, c.ID, "alice"))
	assert.ErrorIs(t, s.MarkVerified(ctx, c.ID, "mallory"), core.ErrAlreadyVerified)
	assert.Equal(t, 10*time.Minute, mr.TTL(s.prefix+c.ID))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "alice", got.Pubkey)

	status, err := s.Status(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusVerified, status)
}

func TestRedisStore_Unknown(t *testing.T) {
	s, _ := newTestRedisStore(t, Config{})
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
	assert.ErrorIs(t, s.MarkVerified(ctx, "missing", "alice"), core.ErrChallengeNotFound)

	status, err := s.Status(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotFound, status)
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newTestRedisStore(t, Config{ChallengeTTL: time.Minute})
	ctx := context.Background()

	c, err := s.Create(ctx, core.ChallengeKindLogin)
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	_, err = s.Get(ctx, c.ID)
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
	assert.ErrorIs(t, s.MarkVerified(ctx, c.ID, "alice"), core.ErrChallengeNotFound)
}

func TestRedisStore_ConcurrentMarkVerified(t *testing.T) {
	s, _ := newTestRedisStore(t, Config{})
	ctx := context.Background()

	c, err := s.Create(ctx, core.ChallengeKindLogin)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkVerified(ctx, c.ID, "alice") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisStore_BackendFailure(t *testing.T) {
	s, mr := newTestRedisStore(t, Config{})
	ctx := context.Background()
	mr.Close()

	_, err := s.Create(ctx, core.ChallengeKindLogin)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)

	_, err = s.Status(ctx, "x")
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
}
