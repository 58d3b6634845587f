package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix   = "session:"
	accountKeyPrefix = "account-sessions:"
)

// RedisConfig holds the client options used for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// NewRedisClient returns a configured client and verifies connectivity with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps sessions in Redis with the key TTL mirroring ExpiresAt,
// so every instance behind a load balancer sees the same tokens.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func accountKey(accountID int64) string {
	return accountKeyPrefix + strconv.FormatInt(accountID, 10)
}

func (r *RedisStore) Create(ctx context.Context, accountID int64) (*Session, error) {
	s := &Session{
		Token:     newToken(),
		AccountID: accountID,
		ExpiresAt: time.Now().Add(r.ttl),
	}
	if err := r.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// touchAttempts bounds retries when a concurrent write to the same token
// aborts the optimistic transaction.
const touchAttempts = 3

// Touch slides the expiry of a live session. The read and the rewrite run
// under WATCH, so a Revoke landing in between aborts the rewrite instead of
// resurrecting the token.
func (r *RedisStore) Touch(ctx context.Context, token string) (*Session, error) {
	key := tokenKey(token)

	for attempt := 0; attempt < touchAttempts; attempt++ {
		var s Session
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to read session: %w", err)
			}

			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}
			if s.Expired(time.Now()) {
				return ErrNotFound
			}

			s.ExpiresAt = time.Now().Add(r.ttl)
			encoded, err := json.Marshal(&s)
			if err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, r.ttl)
				pipe.Expire(ctx, accountKey(s.AccountID), r.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &s, nil
	}

	// every attempt raced a writer; the next request will see the outcome
	return nil, ErrNotFound
}

func (r *RedisStore) save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, tokenKey(s.Token), raw, r.ttl)
	pipe.SAdd(ctx, accountKey(s.AccountID), s.Token)
	pipe.Expire(ctx, accountKey(s.AccountID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *RedisStore) RevokeAccount(ctx context.Context, accountID int64) error {
	tokens, err := r.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list account sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, tokenKey(token))
	}
	keys = append(keys, accountKey(accountID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke account sessions: %w", err)
	}
	return nil
}
