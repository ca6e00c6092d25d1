package credstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record as one Redis hash. Writes replace the hash
// inside MULTI/EXEC so partial records are never visible.
type RedisStore struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, origin string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, origin)
	s.owned = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Close leaves the client open.
func NewRedisStoreWithClient(client *redis.Client, origin string) *RedisStore {
	return &RedisStore{client: client, prefix: "rocketctl:" + origin + ":"}
}

// Client returns the underlying client so other components can share it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) tokenKey() string { return s.prefix + "token" }
func (s *RedisStore) credKey() string  { return s.prefix + "credential" }

func (s *RedisStore) LoadToken(ctx context.Context) (*TokenRecord, error) {
	m, err := s.client.HGetAll(ctx, s.tokenKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return &TokenRecord{
		Ciphertext:        m["ciphertext"],
		SenderPublicKey:   m["sender_public_key"],
		ReceiverSecretKey: m["receiver_secret_key"],
		Nonce:             m["nonce"],
	}, nil
}

func (s *RedisStore) SaveToken(ctx context.Context, rec *TokenRecord) error {
	return s.replace(ctx, s.tokenKey(), map[string]any{
		"ciphertext":          rec.Ciphertext,
		"sender_public_key":   rec.SenderPublicKey,
		"receiver_secret_key": rec.ReceiverSecretKey,
		"nonce":               rec.Nonce,
	})
}

func (s *RedisStore) DeleteToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadCredential(ctx context.Context) (*Credential, error) {
	m, err := s.client.HGetAll(ctx, s.credKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return &Credential{Email: m["email"], Password: m["password"]}, nil
}

func (s *RedisStore) SaveCredential(ctx context.Context, cred *Credential) error {
	return s.replace(ctx, s.credKey(), map[string]any{
		"email":    cred.Email,
		"password": cred.Password,
	})
}

func (s *RedisStore) DeleteCredential(ctx context.Context) error {
	if err := s.client.Del(ctx, s.credKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *RedisStore) replace(ctx context.Context, key string, fields map[string]any) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
