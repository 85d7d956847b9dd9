package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/services/concierge/model"
)

const assistantKeyPrefix = "concierge:assistant:"

// AssistantRedis caches another Assistant store in redis. Cache failures are logged
// and the call falls through to the backing store.
type AssistantRedis struct {
	logger *zap.Logger
	client redis.UniversalClient
	next   Assistant
	ttl    time.Duration
}

func NewAssistantRedis(logger *zap.Logger, client redis.UniversalClient, next Assistant, ttl time.Duration) Assistant {
	return &AssistantRedis{
		logger: logger.Named("assistant-cache"),
		client: client,
		next:   next,
		ttl:    ttl,
	}
}

func assistantKey(tenant string) string {
	return assistantKeyPrefix + tenant
}

func (s *AssistantRedis) Get(ctx context.Context, tenant string) (*model.Assistant, error) {
	raw, err := s.client.Get(ctx, assistantKey(tenant)).Bytes()
	switch {
	case err == nil:
		var a model.Assistant
		if err := json.Unmarshal(raw, &a); err == nil {
			return &a, nil
		}
		s.logger.Warn("dropping undecodable cache entry", zap.String("tenant", tenant))
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("failed to read assistant from cache", zap.String("tenant", tenant), zap.Error(err))
	}

	a, err := s.next.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	s.set(ctx, *a)
	return a, nil
}

func (s *AssistantRedis) Save(ctx context.Context, a model.Assistant) error {
	if err := s.next.Save(ctx, a); err != nil {
		return err
	}
	s.set(ctx, a)
	return nil
}

func (s *AssistantRedis) Delete(ctx context.Context, tenant string) error {
	if err := s.client.Del(ctx, assistantKey(tenant)).Err(); err != nil {
		s.logger.Warn("failed to evict assistant from cache", zap.String("tenant", tenant), zap.Error(err))
	}
	return s.next.Delete(ctx, tenant)
}

func (s *AssistantRedis) set(ctx context.Context, a model.Assistant) {
	raw, err := json.Marshal(a)
	if err != nil {
		s.logger.Warn("failed to encode assistant", zap.String("tenant", a.Tenant), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, assistantKey(a.Tenant), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to cache assistant", zap.String("tenant", a.Tenant), zap.Error(err))
	}
}
