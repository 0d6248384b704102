package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/airenas/whisper-stt/internal/secure"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores encrypted transcripts in Redis
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	crypter *secure.Crypter
}

// NewRedisCache creates a new RedisCache with connection pooling.
func NewRedisCache(connStr string, encryptionKey string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	goapp.Log.Info().Str("redis", opt.Addr).Int("db", opt.DB).Dur("ttl", ttl).Msg("Redis cache")

	crypter, err := secure.NewCrypter(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create crypter: %w", err)
	}
	return &RedisCache{
		client:  redis.NewClient(opt),
		ttl:     ttl,
		crypter: crypter,
	}, nil
}

func (r *RedisCache) keyResult(key string) string {
	return fmt.Sprintf("stt:%s", key)
}

// Ping checks the connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Save stores the result as encrypted JSON
func (r *RedisCache) Save(ctx context.Context, key string, res *domain.TranscriptionResult) error {
	goapp.Log.Trace().Str("key", key).Msg("Save result")
	data, err := r.encode(key, res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.keyResult(key), data, r.ttl).Err()
}

// Get returns the stored result, false when there is none
func (r *RedisCache) Get(ctx context.Context, key string) (*domain.TranscriptionResult, bool, error) {
	goapp.Log.Trace().Str("key", key).Msg("Get result")
	b, err := r.client.Get(ctx, r.keyResult(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get result: %w", err)
	}
	res, err := r.decode(key, b)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (r *RedisCache) encode(key string, res *domain.TranscriptionResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	encrypted, err := r.crypter.Encrypt(key, data)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return encrypted, nil
}

func (r *RedisCache) decode(key string, data []byte) (*domain.TranscriptionResult, error) {
	decrypted, err := r.crypter.Decrypt(key, data)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var res domain.TranscriptionResult
	if err := json.Unmarshal(decrypted, &res); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if res.Segments == nil {
		res.Segments = []domain.Segment{}
	}
	return &res, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
