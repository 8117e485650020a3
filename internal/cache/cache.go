// Package cache puts a redis read-through layer in front of a shortener.Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"url-shortener/internal/shortener"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "link:"

// NewClient connects to redisURL and verifies the connection. A non-empty
// password overrides the one in the URL.
func NewClient(ctx context.Context, redisURL, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}

	rdb := redis.NewClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Store caches FindByCode lookups in redis and evicts entries whose code or
// destination changes. Redis failures degrade to the wrapped store.
//
// Cached links carry the click count from the time they were cached; callers
// that need a current count read it through FindByID or ListByOwner.
type Store struct {
	shortener.Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewStore wraps inner with a cache whose entries live for ttl.
func NewStore(inner shortener.Store, rdb *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *Store {
	return &Store{Store: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func (s *Store) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	key := keyPrefix + code

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var link shortener.Link
		if err := json.Unmarshal(data, &link); err == nil {
			return &link, nil
		}
		s.logger.Warnw("Discarding undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		s.logger.Warnw("Cache read failed", "key", key, "error", err)
	}

	link, err := s.Store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(link); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warnw("Cache write failed", "key", key, "error", err)
		}
	}
	return link, nil
}

func (s *Store) UpdateCode(ctx context.Context, id, ownerID, code string) error {
	return s.evictAfter(ctx, id, func() error {
		return s.Store.UpdateCode(ctx, id, ownerID, code)
	})
}

func (s *Store) UpdateURL(ctx context.Context, id, ownerID, originalURL string) error {
	return s.evictAfter(ctx, id, func() error {
		return s.Store.UpdateURL(ctx, id, ownerID, originalURL)
	})
}

func (s *Store) Delete(ctx context.Context, id, ownerID string) error {
	return s.evictAfter(ctx, id, func() error {
		return s.Store.Delete(ctx, id, ownerID)
	})
}

// evictAfter runs write and then drops the cache entry of the link's
// pre-write short code.
func (s *Store) evictAfter(ctx context.Context, id string, write func() error) error {
	before, err := s.Store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shortener.ErrNotFound) {
			return write()
		}
		return err
	}

	if err := write(); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, keyPrefix+before.ShortCode).Err(); err != nil {
		s.logger.Errorw("Cache eviction failed", "short_code", before.ShortCode, "error", err)
	}
	return nil
}
