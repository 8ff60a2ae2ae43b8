// Package sessions tracks login sessions for authentication principals
// linked to broker records. The lifecycle engine's deactivation hook revokes
// them when a record's active flag is cleared, so a deactivated principal
// cannot keep using an existing session.
package sessions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Revoker is the narrow interface the deactivation hook needs.
type Revoker interface {
	RevokeAllForPrincipal(ctx context.Context, principalID string) error
}

// RedisStore keeps one set of session ids per principal plus one key per
// session, mirroring how the auth layer issues them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func principalKey(principalID string) string {
	return "sessions:principal:" + principalID
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Track registers a session against its principal.
func (s *RedisStore) Track(ctx context.Context, principalID, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, principalKey(principalID), sessionID)
	pipe.Set(ctx, sessionKey(sessionID), principalID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track session: %w", err)
	}
	return nil
}

// Active reports whether the session still exists.
func (s *RedisStore) Active(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

// RevokeAllForPrincipal deletes every session belonging to the principal.
func (s *RedisStore) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	key := principalKey(principalID)
	sessionIDs, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("list principal sessions: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, sessionID := range sessionIDs {
		pipe.Del(ctx, sessionKey(sessionID))
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke principal sessions: %w", err)
	}
	return nil
}
