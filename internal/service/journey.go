package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

const (
	journeyCachePrefix   = "journey:"
	journeyVersionPrefix = "journey:ver:"
)

// JourneyService assembles the consumer view of a product. Results are cached
// in Redis when a client is configured; the cache is advisory and any Redis
// failure falls back to the store.
type JourneyService struct {
	repos       repository.Repositories
	redisClient *redis.Client
	ttl         time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewJourneyService(repos repository.Repositories, redisClient *redis.Client, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *JourneyService {
	return &JourneyService{repos: repos, redisClient: redisClient, ttl: ttl, metrics: m, log: log}
}

func (s *JourneyService) Lookup(ctx context.Context, code string) (*model.ProductJourney, error) {
	normalized := NormalizeCode(code)
	key := journeyCachePrefix + normalized
	verKey := journeyVersionPrefix + normalized

	// The version is read before the store so a commit that lands in between
	// makes the cache write below a no-op.
	var version int64
	cacheable := s.redisClient != nil
	if s.redisClient != nil {
		data, err := s.redisClient.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var journey model.ProductJourney
			if json.Unmarshal(data, &journey) == nil {
				s.metrics.JourneyLookup(metrics.LookupHit)
				return &journey, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			s.log.Warn("journey cache read failed", "error", err, "key", key)
		}
		if version, err = cacheVersion(ctx, s.redisClient, verKey); err != nil {
			s.log.Warn("journey cache version read failed", "error", err, "key", verKey)
			cacheable = false
		}
	}

	product, err := findByCode(ctx, s.repos.Products, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.JourneyLookup(metrics.LookupNotFound)
		}
		return nil, err
	}
	journey := &model.ProductJourney{Product: *product}
	if journey.TransportLog, err = s.repos.TransportLogs.GetByProductID(ctx, product.ID); err != nil {
		return nil, fmt.Errorf("get transport log: %w", err)
	}
	if journey.RetailLog, err = s.repos.RetailLogs.GetByProductID(ctx, product.ID); err != nil {
		return nil, fmt.Errorf("get retail log: %w", err)
	}
	s.metrics.JourneyLookup(metrics.LookupMiss)

	if cacheable {
		if data, err := json.Marshal(journey); err == nil {
			s.store(ctx, key, verKey, version, data)
		}
	}
	return journey, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func cacheVersion(ctx context.Context, c stringGetter, verKey string) (int64, error) {
	v, err := c.Get(ctx, verKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// store writes the journey only while the product's cache version is still the
// one observed before the store read.
func (s *JourneyService) store(ctx context.Context, key, verKey string, version int64, data []byte) {
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := cacheVersion(ctx, tx, verKey)
		if err != nil {
			return err
		}
		if current != version {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr):
		s.log.Debug("journey changed during lookup, not cached", "key", key)
	default:
		s.log.Warn("journey cache write failed", "error", err, "key", key)
	}
}

// Invalidate drops the cached journey for a product code and bumps its version
// so lookups already in flight do not write their result back.
func (s *JourneyService) Invalidate(ctx context.Context, code string) {
	if s == nil || s.redisClient == nil {
		return
	}
	normalized := NormalizeCode(code)
	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, journeyVersionPrefix+normalized)
		pipe.Del(ctx, journeyCachePrefix+normalized)
		return nil
	})
	if err != nil {
		s.log.Warn("journey cache invalidate failed", "error", err, "code", code)
	}
}
