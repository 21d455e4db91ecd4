package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

const DefaultTTL = 10 * time.Minute

// AssessmentCache holds question banks in Redis, keyed by id and by code.
type AssessmentCache interface {
	Get(ctx context.Context, id string) (*assessment.Assessment, error)
	IDForCode(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, a assessment.Assessment) error
	Delete(ctx context.Context, a assessment.Assessment) error
}

type assessmentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAssessmentCache(client *redis.Client, ttl time.Duration) AssessmentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &assessmentCache{client: client, ttl: ttl}
}

func (c *assessmentCache) key(id string) string       { return fmt.Sprintf("assessment:%s", id) }
func (c *assessmentCache) codeKey(code string) string { return fmt.Sprintf("assessment:code:%s", code) }

// Get returns nil on a miss.
func (c *assessmentCache) Get(ctx context.Context, id string) (*assessment.Assessment, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a assessment.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// IDForCode returns "" on a miss.
func (c *assessmentCache) IDForCode(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (c *assessmentCache) Set(ctx context.Context, a assessment.Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.key(a.ID), data, c.ttl)
		p.Set(ctx, c.codeKey(a.Code), a.ID, c.ttl)
		return nil
	})
	return err
}

func (c *assessmentCache) Delete(ctx context.Context, a assessment.Assessment) error {
	keys := []string{c.key(a.ID)}
	if a.Code != "" {
		keys = append(keys, c.codeKey(a.Code))
	}
	return c.client.Del(ctx, keys...).Err()
}

// CachedStore reads assessments through the cache. Attempts and students
// always go to the wrapped store. Cache failures are logged and the store
// is used instead.
type CachedStore struct {
	assessment.Store
	cache AssessmentCache
	log   *zap.Logger
}

func NewCachedStore(store assessment.Store, cache AssessmentCache, log *zap.Logger) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{Store: store, cache: cache, log: log}
}

func (s *CachedStore) PutAssessment(ctx context.Context, a assessment.Assessment) error {
	var prev *assessment.Assessment
	if old, err := s.Store.GetAssessment(ctx, a.ID); err == nil {
		prev = &old
	}
	if err := s.Store.PutAssessment(ctx, a); err != nil {
		return err
	}
	if prev != nil {
		s.drop(ctx, *prev)
	}
	s.drop(ctx, a)
	return nil
}

func (s *CachedStore) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	hit, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Warn("assessment cache read failed", zap.String("assessment_id", id), zap.Error(err))
	}
	if hit != nil {
		return *hit, nil
	}
	a, err := s.Store.GetAssessment(ctx, id)
	if err != nil {
		return assessment.Assessment{}, err
	}
	s.fill(ctx, a)
	return a, nil
}

func (s *CachedStore) GetAssessmentByCode(ctx context.Context, code string) (assessment.Assessment, error) {
	id, err := s.cache.IDForCode(ctx, code)
	if err != nil {
		s.log.Warn("assessment cache read failed", zap.String("code", code), zap.Error(err))
	}
	if id != "" {
		if a, err := s.GetAssessment(ctx, id); err == nil && a.Code == code {
			return a, nil
		}
	}
	a, err := s.Store.GetAssessmentByCode(ctx, code)
	if err != nil {
		return assessment.Assessment{}, err
	}
	s.fill(ctx, a)
	return a, nil
}

func (s *CachedStore) fill(ctx context.Context, a assessment.Assessment) {
	if err := s.cache.Set(ctx, a); err != nil {
		s.log.Warn("assessment cache write failed", zap.String("assessment_id", a.ID), zap.Error(err))
	}
}

func (s *CachedStore) drop(ctx context.Context, a assessment.Assessment) {
	if err := s.cache.Delete(ctx, a); err != nil {
		s.log.Warn("assessment cache invalidation failed", zap.String("assessment_id", a.ID), zap.Error(err))
	}
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rdb, nil
}
