package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"monositi/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	t.Cleanup(func() { _ = Close(client) })
	return s, client
}

func TestRedisCodeStore(t *testing.T) {
	s, client := newTestRedis(t)
	repo := NewRedisCodeStore(client)
	ctx := context.Background()

	t.Run("PutAndTake", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "otp:+911", "digest", time.Minute))

		ok, err := repo.TakeIfValid(ctx, "otp:+911", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, s.Exists("otp:+911"), "a mismatch must not consume the code")

		ok, err = repo.TakeIfValid(ctx, "otp:+911", "digest")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.TakeIfValid(ctx, "otp:+911", "digest")
		require.NoError(t, err)
		assert.False(t, ok, "a code verifies once")
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "otp:+912", "digest", time.Minute))
		s.FastForward(2 * time.Minute)

		ok, err := repo.TakeIfValid(ctx, "otp:+912", "digest")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "otp:+913", "digest", time.Minute))
		require.NoError(t, repo.Delete(ctx, "otp:+913"))
		assert.False(t, s.Exists("otp:+913"))
	})

	t.Run("RateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "otp_req:+914", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "otp_req:+914", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = repo.CheckRateLimit(ctx, "otp_req:+914", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "window resets after expiry")
	})

	t.Run("ConcurrentTake", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "otp:+915", "digest", time.Minute))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.TakeIfValid(ctx, "otp:+915", "digest")
				if err == nil && ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisCodeStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisCodeStore(nil)
		assert.Error(t, repo.Put(ctx, "k", "v", time.Minute))
		_, err := repo.TakeIfValid(ctx, "k", "v")
		assert.Error(t, err)
		assert.Error(t, repo.Delete(ctx, "k"))
		_, err = repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		assert.Error(t, err)
	})

	t.Run("ServerDown", func(t *testing.T) {
		s, client := newTestRedis(t)
		repo := NewRedisCodeStore(client)
		s.Close()

		assert.Error(t, repo.Put(ctx, "k", "v", time.Minute))
		_, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		assert.Error(t, err)
		assert.Error(t, Ping(ctx, client))
	})

	t.Run("CloseNil", func(t *testing.T) {
		assert.NoError(t, Close(nil))
	})
}
