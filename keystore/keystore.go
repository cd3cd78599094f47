// Package keystore is the broker's only durable state. Every record lives in
// a TTL-capable Redis keyspace: logical keys are SHA-256 hashed before they
// touch Redis, and values are sealed blobs from the sealbox package, so a
// dump of the store reconstructs neither tokens nor their contents.
package keystore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	brokererrors "github.com/nutrilink/broker/internal/errors"
	"github.com/nutrilink/broker/sealbox"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces all keys, e.g. "broker:".
	KeyPrefix string
}

// Store wraps a Redis client with key hashing and sealed values.
type Store struct {
	client    redis.UniversalClient
	box       *sealbox.Box
	keyPrefix string
}

// consumeScript atomically reads a key, captures its remaining TTL and
// deletes it. A second caller can never observe the same un-consumed value,
// which is what single-use codes and OAuth state rely on. The TTL is returned
// so a record that later fails decryption can be restored in place.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return false
end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
return {v, ttl}
`)

// Dial connects to Redis and verifies the connection before returning a Store.
func Dial(ctx context.Context, cfg Config, box *sealbox.Box) (*Store, error) {
	if box == nil {
		return nil, errors.Wrap(brokererrors.ErrConfiguration, "[keystore.Dial] sealbox is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[keystore.Dial] failed to connect to redis")
	}

	return &Store{client: client, box: box, keyPrefix: cfg.KeyPrefix}, nil
}

// NewWithClient builds a Store around a pre-configured client. Used by tests
// with miniredis.
func NewWithClient(client redis.UniversalClient, box *sealbox.Box, keyPrefix string) *Store {
	return &Store{client: client, box: box, keyPrefix: keyPrefix}
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put seals value and stores it under the hashed key with the given TTL.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	blob, err := s.box.Encrypt(value)
	if err != nil {
		return errors.Wrap(err, "[Store.Put] encrypt")
	}
	if err := s.client.Set(ctx, s.hashKey(key), blob, ttl).Err(); err != nil {
		return errors.Wrap(err, "[Store.Put] redis SET")
	}
	return nil
}

// Get returns the unsealed value for key. A missing key is (nil, false, nil),
// not an error. A record that fails decryption is logged and reported as
// absent rather than surfaced as garbage.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	hashed := s.hashKey(key)

	blob, err := s.client.Get(ctx, hashed).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "[Store.Get] redis GET")
	}

	value, err := s.box.Decrypt(blob)
	if err != nil {
		log.Error().Str("key_hash", hashed).Msg("stored record failed decryption")
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.hashKey(key)).Err(); err != nil {
		return errors.Wrap(err, "[Store.Delete] redis DEL")
	}
	return nil
}

// Consume atomically retrieves and deletes the record for key. The delete is
// final only after the record decrypts: a record that fails decryption is
// restored with its remaining TTL and reported as absent, since destroying it
// would hide a real bug.
func (s *Store) Consume(ctx context.Context, key string) ([]byte, bool, error) {
	hashed := s.hashKey(key)

	result, err := consumeScript.Run(ctx, s.client, []string{hashed}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "[Store.Consume] redis EVAL")
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, false, errors.New("[Store.Consume] unexpected script result shape")
	}
	blob, _ := parts[0].(string)
	pttl, _ := parts[1].(int64)

	value, err := s.box.Decrypt(blob)
	if err != nil {
		s.restore(ctx, hashed, blob, pttl)
		log.Error().Str("key_hash", hashed).Msg("stored record failed decryption, left in place")
		return nil, false, nil
	}
	return value, true, nil
}

// restore puts a raw blob back after a failed decrypt, preserving whatever
// TTL it had left. PTTL of -1 means the key had no expiry.
func (s *Store) restore(ctx context.Context, hashedKey, blob string, pttl int64) {
	ttl := time.Duration(0)
	if pttl > 0 {
		ttl = time.Duration(pttl) * time.Millisecond
	}
	if err := s.client.Set(ctx, hashedKey, blob, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key_hash", hashedKey).Msg("failed to restore undecryptable record")
	}
}

func (s *Store) hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.keyPrefix + hex.EncodeToString(sum[:])
}
