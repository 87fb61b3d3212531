package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/clicktrail/internal/app/model"
	"go.uber.org/zap"
)

const redirectCachePrefix = "redirect:"

// cachedRedirectRepository serves GetByToken from Redis. Redirect targets are
// immutable once issued, so entries never need invalidation.
type cachedRedirectRepository struct {
	RedirectRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRedirectRepository wraps next with a Redis read-through cache.
// Cache failures fall back to next.
func NewCachedRedirectRepository(next RedirectRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) RedirectRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedRedirectRepository{
		RedirectRepository: next,
		client:             client,
		ttl:                ttl,
		logger:             logger,
	}
}

func (r *cachedRedirectRepository) GetByToken(ctx context.Context, token string) (*model.RedirectTarget, error) {
	key := redirectCachePrefix + token

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var target model.RedirectTarget
		if uErr := json.Unmarshal(data, &target); uErr == nil {
			return &target, nil
		}
		r.logger.Warn("discarding malformed cached redirect", zap.String("token", token))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("redirect cache read failed", zap.String("token", token), zap.Error(err))
	}

	target, err := r.RedirectRepository.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if payload, mErr := json.Marshal(target); mErr == nil {
		if sErr := r.client.Set(ctx, key, payload, r.ttl).Err(); sErr != nil {
			r.logger.Warn("redirect cache write failed", zap.String("token", token), zap.Error(sErr))
		}
	}
	return target, nil
}
