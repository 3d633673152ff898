package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantcart/plantcart/internal/core/domain"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// RedisAdapter is the cache-authoritative stock store: one integer per
// variant key, decremented through a single Lua script so the check and the
// decrement are one atomic step. It also backs request idempotency.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) DecrementIfAvailable(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{stockKeyPrefix + key.String()}, quantity).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, key domain.InventoryKey, quantity int) error {
	return r.client.IncrBy(ctx, stockKeyPrefix+key.String(), int64(quantity)).Err()
}

func (r *RedisAdapter) AvailableStock(ctx context.Context, key domain.InventoryKey) (int, error) {
	count, err := r.client.Get(ctx, stockKeyPrefix+key.String()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, key domain.InventoryKey, count int) error {
	return r.client.Set(ctx, stockKeyPrefix+key.String(), count, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
