package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"bookstore-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each session's cart in a Redis hash keyed by session
// id (field = book id, value = quantity), expiring after the configured
// TTL of inactivity. HIncrBy makes concurrent adds from the same
// session safe without client-side locking.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and returns a cart store
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func (r *RedisStore) Items(ctx context.Context, sessionID string) ([]models.CartItem, error) {
	fields, err := r.rdb.HGetAll(ctx, cartKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	items := make([]models.CartItem, 0, len(fields))
	for field, value := range fields {
		bookID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart field %q: %w", field, err)
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart quantity %q: %w", value, err)
		}
		if qty > 0 {
			items = append(items, models.CartItem{BookID: bookID, Quantity: qty})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].BookID < items[j].BookID })
	return items, nil
}

func (r *RedisStore) Add(ctx context.Context, sessionID string, bookID int64, quantity int) error {
	key := cartKey(sessionID)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, strconv.FormatInt(bookID, 10), int64(quantity))
	pipe.Expire(ctx, key, r.ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add to cart: %w", err)
	}
	return nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID string, bookID int64, quantity int) error {
	if quantity <= 0 {
		return r.Remove(ctx, sessionID, bookID)
	}

	key := cartKey(sessionID)

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(bookID, 10), quantity)
	pipe.Expire(ctx, key, r.ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, sessionID string, bookID int64) error {
	err := r.rdb.HDel(ctx, cartKey(sessionID), strconv.FormatInt(bookID, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to remove from cart: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
