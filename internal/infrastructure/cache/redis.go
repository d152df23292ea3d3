package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/stock-ledger/internal/readmodel"
	"github.com/redis/go-redis/v9"
)

const availabilityKeyPrefix = "availability:"

// AvailabilityCache keeps availability read models in Redis with a short
// TTL. The read path tolerates staleness, so a cache hit never consults
// the read store.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func (c *AvailabilityCache) Get(ctx context.Context, resourceID string) (*readmodel.AvailabilityReadModel, bool, error) {
	data, err := c.client.Get(ctx, availabilityKeyPrefix+resourceID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var model readmodel.AvailabilityReadModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, false, err
	}
	return &model, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, model *readmodel.AvailabilityReadModel) error {
	data, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKeyPrefix+model.ResourceID, data, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, resourceID string) error {
	return c.client.Del(ctx, availabilityKeyPrefix+resourceID).Err()
}
