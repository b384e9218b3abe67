package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// Cache stores completed local analyses in Redis so repeated uploads of the
// same image skip the multi-minute pipeline run.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.ResultCache = (*Cache)(nil)

func NewCache(cfg *config.RedisConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Cache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached analysis for the key, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*domain.LocalAnalysis, error) {
	data, err := c.client.Get(ctx, "ortopan:"+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var analysis domain.LocalAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to unmarshal cached analysis")
		return nil, err
	}

	return &analysis, nil
}

func (c *Cache) Set(ctx context.Context, key string, value *domain.LocalAnalysis) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, "ortopan:"+key, data, c.ttl).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
