package repository

import (
	"context"
	"sync/atomic"
	"time"

	"monositi/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCodeStore serves from primary until it errors, then switches to
// fallback and probes primary again once per recoveryInterval. Codes issued
// before a switch live only in the store that issued them; the user simply
// requests a new one.
type FailoverCodeStore struct {
	primary   domain.CodeStore
	fallback  domain.CodeStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverCodeStore(primary, fallback domain.CodeStore, logger *zerolog.Logger) *FailoverCodeStore {
	return &FailoverCodeStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverCodeStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func (r *FailoverCodeStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary code store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverCodeStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary code store recovered")
	}
}

func (r *FailoverCodeStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Put(ctx, key, value, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Put(ctx, key, value, ttl)
}

func (r *FailoverCodeStore) TakeIfValid(ctx context.Context, key, value string) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.TakeIfValid(ctx, key, value)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.TakeIfValid(ctx, key, value)
}

func (r *FailoverCodeStore) Delete(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Delete(ctx, key)
}

func (r *FailoverCodeStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
