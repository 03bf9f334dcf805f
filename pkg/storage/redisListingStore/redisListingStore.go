// Package redisListingStore keeps the listing projection in Redis using the
// key layout <chainId>:<address>:idx:{lastBlock,activeIds,listing:<id>,lock}.
package redisListingStore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const backendName = "redis"

type RedisListingStore struct {
	client    *redis.Client
	namespace storage.Namespace
	logger    *zap.Logger
}

// NewRedisClientFromUrl parses a redis:// or rediss:// url.
func NewRedisClientFromUrl(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func NewRedisListingStore(client *redis.Client, ns storage.Namespace, l *zap.Logger) *RedisListingStore {
	return &RedisListingStore{
		client:    client,
		namespace: ns,
		logger:    l,
	}
}

func (s *RedisListingStore) wrap(op string, err error) error {
	s.logger.Sugar().Errorw("Redis operation failed",
		zap.String("op", op),
		zap.String("namespace", s.namespace.String()),
		zap.Error(err),
	)
	return storage.NewStorageError(backendName, op, err)
}

// AcquireLock uses SET NX PX so creation and expiry are a single command.
func (s *RedisListingStore) AcquireLock(ctx context.Context, ttl time.Duration) (bool, error) {
	holder := uuid.New().String()
	acquired, err := s.client.SetNX(ctx, s.namespace.LockKey(), holder, ttl).Result()
	if err != nil {
		return false, s.wrap("AcquireLock", err)
	}
	if acquired {
		s.logger.Sugar().Debugw("Acquired sync lock", zap.String("holder", holder))
	}
	return acquired, nil
}

func (s *RedisListingStore) ReleaseLock(ctx context.Context) error {
	if err := s.client.Del(ctx, s.namespace.LockKey()).Err(); err != nil {
		return s.wrap("ReleaseLock", err)
	}
	return nil
}

func (s *RedisListingStore) GetCursor(ctx context.Context) (uint64, error) {
	val, err := s.client.Get(ctx, s.namespace.CursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap("GetCursor", err)
	}
	cursor, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		s.logger.Sugar().Warnw("Stored cursor is not a number, treating as unset",
			zap.String("value", val),
		)
		return 0, nil
	}
	return cursor, nil
}

func (s *RedisListingStore) SetCursor(ctx context.Context, blockNumber uint64) error {
	if err := s.client.Set(ctx, s.namespace.CursorKey(), strconv.FormatUint(blockNumber, 10), 0).Err(); err != nil {
		return s.wrap("SetCursor", err)
	}
	return nil
}

func (s *RedisListingStore) DeleteCursor(ctx context.Context) error {
	if err := s.client.Del(ctx, s.namespace.CursorKey()).Err(); err != nil {
		return s.wrap("DeleteCursor", err)
	}
	return nil
}

func (s *RedisListingStore) UpsertListing(ctx context.Context, listing *storage.ActiveListing) error {
	data, err := listing.Marshal()
	if err != nil {
		return s.wrap("UpsertListing", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.namespace.ListingKey(listing.ListingId), data, 0)
		pipe.SAdd(ctx, s.namespace.ActiveIdsKey(), listing.ListingId)
		return nil
	})
	if err != nil {
		return s.wrap("UpsertListing", err)
	}
	return nil
}

func (s *RedisListingStore) RemoveListing(ctx context.Context, listingId string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.namespace.ListingKey(listingId))
		pipe.SRem(ctx, s.namespace.ActiveIdsKey(), listingId)
		return nil
	})
	if err != nil {
		return s.wrap("RemoveListing", err)
	}
	return nil
}

func (s *RedisListingStore) ListActiveListings(ctx context.Context) ([]*storage.ActiveListing, error) {
	listingIds, err := s.client.SMembers(ctx, s.namespace.ActiveIdsKey()).Result()
	if err != nil {
		return nil, s.wrap("ListActiveListings", err)
	}
	if len(listingIds) == 0 {
		return []*storage.ActiveListing{}, nil
	}

	keys := make([]string, 0, len(listingIds))
	for _, id := range listingIds {
		keys = append(keys, s.namespace.ListingKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.wrap("ListActiveListings", err)
	}

	listings := make([]*storage.ActiveListing, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Sugar().Debugw("Active id has no record", zap.String("listingId", listingIds[i]))
			continue
		}
		listing, err := storage.UnmarshalActiveListing([]byte(raw))
		if err != nil {
			s.logger.Sugar().Debugw("Skipping unreadable listing record",
				zap.String("listingId", listingIds[i]),
				zap.Error(err),
			)
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *RedisListingStore) ClearListings(ctx context.Context) error {
	listingIds, err := s.client.SMembers(ctx, s.namespace.ActiveIdsKey()).Result()
	if err != nil {
		return s.wrap("ClearListings", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range listingIds {
			pipe.Del(ctx, s.namespace.ListingKey(id))
		}
		pipe.Del(ctx, s.namespace.ActiveIdsKey())
		return nil
	})
	if err != nil {
		return s.wrap("ClearListings", err)
	}
	s.logger.Sugar().Infow("Cleared listings", zap.Int("count", len(listingIds)))
	return nil
}

func (s *RedisListingStore) Close() error {
	return s.client.Close()
}
