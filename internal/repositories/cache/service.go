package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"casa/internal/models"

	"github.com/redis/go-redis/v9"
)

type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Key generation
func (s *CacheService) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

// Invoice caching. Invoices are read on every approve/dispute attempt and by
// the timer; the cache is invalidated on every status transition so a stale
// status can never satisfy a guard (guards always hit the database anyway,
// the cache only serves display reads).
func (s *CacheService) CacheInvoice(ctx context.Context, invoice *models.Invoice) error {
	key := s.GenerateKey("invoice", "id", invoice.ID)
	return s.Set(ctx, key, invoice)
}

func (s *CacheService) GetInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	key := s.GenerateKey("invoice", "id", invoiceID)
	var invoice models.Invoice
	found, err := s.Get(ctx, key, &invoice)
	if err != nil || !found {
		return nil, err
	}
	return &invoice, nil
}

func (s *CacheService) InvalidateInvoice(ctx context.Context, invoiceID uint) error {
	return s.Delete(ctx, s.GenerateKey("invoice", "id", invoiceID))
}

// Estimate caching
func (s *CacheService) CacheEstimate(ctx context.Context, estimate *models.Estimate) error {
	key := s.GenerateKey("estimate", "id", estimate.ID)
	return s.Set(ctx, key, estimate)
}

func (s *CacheService) GetEstimate(ctx context.Context, estimateID uint) (*models.Estimate, error) {
	key := s.GenerateKey("estimate", "id", estimateID)
	var estimate models.Estimate
	found, err := s.Get(ctx, key, &estimate)
	if err != nil || !found {
		return nil, err
	}
	return &estimate, nil
}

func (s *CacheService) InvalidateEstimate(ctx context.Context, estimateID uint) error {
	return s.Delete(ctx, s.GenerateKey("estimate", "id", estimateID))
}

// Fee schedule snapshots are cached by version. A version's snapshot is
// immutable so these entries never need invalidation; only the pointer to
// the active version is re-read per request.
func (s *CacheService) CacheFeeSnapshot(ctx context.Context, version int, snapshot []byte) error {
	key := s.GenerateKey("fees", "version", version)
	return s.client.Set(ctx, key, snapshot, 0).Err()
}

func (s *CacheService) GetFeeSnapshot(ctx context.Context, version int) ([]byte, error) {
	key := s.GenerateKey("fees", "version", version)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// FlushAll flushes all keys from the cache
func (s *CacheService) FlushAll(ctx context.Context) error {
	return s.client.FlushAll(ctx).Err()
}

// HealthCheck pings the redis connection.
func (s *CacheService) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// GetStats reports connection pool statistics.
func (s *CacheService) GetStats(ctx context.Context) *redis.PoolStats {
	return s.client.PoolStats()
}

// Close closes the Redis client connection
func (s *CacheService) Close() error {
	return s.client.Close()
}
