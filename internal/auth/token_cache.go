package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenExpiryBuffer is how long before expiry a cached token is refreshed.
const TokenExpiryBuffer = 60 * time.Second

// TokenCache represents a cached token with its expiry time
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the token outlives the refresh buffer.
func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// RedisTokenCache shares one service token between all replicas.
type RedisTokenCache struct {
	Client *redis.Client
	Key    string
}

func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = "m2m_token"
	}
	return &RedisTokenCache{Client: client, Key: key}
}

// GetToken returns nil without error when nothing usable is cached.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*TokenCache, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := c.Client.Get(ctx, c.Key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var tokenCache TokenCache
	if err := json.Unmarshal([]byte(tokenJSON), &tokenCache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	if !tokenCache.IsValid(time.Now()) {
		return nil, nil
	}
	return &tokenCache, nil
}

// SetToken stores a token that expires in expiresIn.
func (c *RedisTokenCache) SetToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := json.Marshal(&TokenCache{
		Token:     token,
		ExpiresAt: time.Now().Add(expiresIn),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	if err := c.Client.Set(ctx, c.Key, tokenJSON, expiresIn).Err(); err != nil {
		return fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return nil
}
