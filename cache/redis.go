package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-svc/config"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// IntentStore is a read-through cache in front of an intent store.
// Transitions write to the backing store and then drop the cached copy.
type IntentStore struct {
	next   store.IntentStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIntentStore(next store.IntentStore, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *IntentStore {
	return &IntentStore{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func intentKey(id string) string {
	return fmt.Sprintf("payment_intent:%s", id)
}

func (s *IntentStore) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return s.next.CreateIntent(ctx, intent)
}

func (s *IntentStore) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	data, err := s.rdb.Get(ctx, intentKey(id)).Bytes()
	if err == nil {
		var intent models.PaymentIntent
		if err := json.Unmarshal(data, &intent); err == nil {
			return &intent, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("Cache read failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_intent_id", id),
			zap.Error(err),
		)
	}

	intent, err := s.next.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, intent)
	return intent, nil
}

// GetIntentFresh bypasses the cache. A GET racing a transition can leave a
// stale pending copy behind, so anything that acts on the status reads here.
// Terminal records are final and refresh the cached copy.
func (s *IntentStore) GetIntentFresh(ctx context.Context, id string) (*models.PaymentIntent, error) {
	intent, err := s.next.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Status.Terminal() {
		s.set(ctx, intent)
	}
	return intent, nil
}

func (s *IntentStore) TransitionIntent(ctx context.Context, id string, from, to models.IntentStatus, ref string) (*models.PaymentIntent, error) {
	intent, err := s.next.TransitionIntent(ctx, id, from, to, ref)
	if delErr := s.rdb.Del(ctx, intentKey(id)).Err(); delErr != nil {
		s.logger.Warn("Cache invalidation failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_intent_id", id),
			zap.Error(delErr),
		)
	}
	return intent, err
}

func (s *IntentStore) set(ctx context.Context, intent *models.PaymentIntent) {
	data, err := json.Marshal(intent)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, intentKey(intent.ID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
	}
}
