package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *mockStore) TakeIfValid(ctx context.Context, key, value string) (bool, error) {
	args := m.Called(ctx, key, value)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverCodeStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverCodeStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("TakeIfValid", ctx, "otp:1", "d").Return(true, nil).Once()

		ok, err := repo.TakeIfValid(ctx, "otp:1", "d")
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Put", ctx, "otp:2", "d", time.Minute).Return(errors.New("fail")).Once()
		fallback.On("Put", ctx, "otp:2", "d", time.Minute).Return(nil).Once()

		err := repo.Put(ctx, "otp:2", "d", time.Minute)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		fallback.On("Delete", ctx, "otp:3").Return(nil).Once()

		assert.NoError(t, repo.Delete(ctx, "otp:3"))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "Delete", ctx, "otp:3")
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("CheckRateLimit", ctx, "otp_req:4", 3, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "otp_req:4", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("TakeIfValid", ctx, "otp:5", "d").Return(false, errors.New("still fail")).Once()
		fallback.On("TakeIfValid", ctx, "otp:5", "d").Return(false, nil).Once()

		_, err := repo.TakeIfValid(ctx, "otp:5", "d")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "otp_req:6", 3, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "otp_req:6", 3, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "otp_req:6", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
	})

	t.Run("FallbackToRealMemoryStore", func(t *testing.T) {
		down := new(mockStore)
		down.On("Put", ctx, "otp:7", "d", time.Minute).Return(errors.New("fail")).Once()
		store := NewFailoverCodeStore(down, NewMemoryCodeStore(), &logger)

		assert.NoError(t, store.Put(ctx, "otp:7", "d", time.Minute))
		ok, err := store.TakeIfValid(ctx, "otp:7", "d")
		assert.NoError(t, err)
		assert.True(t, ok)
	})
}
