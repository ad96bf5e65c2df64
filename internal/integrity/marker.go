package integrity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proctorix/examgate/internal/config"
)

// MarkerStore persists the per-session attempt markers that must survive a
// page reload: the lockout marker and the already-submitted marker. Both are
// keyed by (browser session, assignment) so a fresh login starts clean.
type MarkerStore interface {
	SetKicked(ctx context.Context, sid string, assignmentID int, reason string) error
	IsKicked(ctx context.Context, sid string, assignmentID int) (bool, string, error)
	SetSubmitted(ctx context.Context, sid string, assignmentID int, attemptType string) error
	GetSubmitted(ctx context.Context, sid string, assignmentID int) (bool, string, error)
}

const markerTTL = 24 * time.Hour

// RedisMarkerStore keeps markers in Redis with a session-scale TTL.
type RedisMarkerStore struct {
	rdb *redis.Client
}

func NewRedisMarkerStore(rdb *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{rdb: rdb}
}

func (s *RedisMarkerStore) SetKicked(ctx context.Context, sid string, assignmentID int, reason string) error {
	if reason == "" {
		reason = "integrity violation"
	}
	return s.rdb.Set(ctx, config.CacheKey.KickedMarkerKey(sid, assignmentID), reason, markerTTL).Err()
}

func (s *RedisMarkerStore) IsKicked(ctx context.Context, sid string, assignmentID int) (bool, string, error) {
	reason, err := s.rdb.Get(ctx, config.CacheKey.KickedMarkerKey(sid, assignmentID)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, reason, nil
}

func (s *RedisMarkerStore) SetSubmitted(ctx context.Context, sid string, assignmentID int, attemptType string) error {
	return s.rdb.Set(ctx, config.CacheKey.SubmittedMarkerKey(sid, assignmentID), attemptType, markerTTL).Err()
}

func (s *RedisMarkerStore) GetSubmitted(ctx context.Context, sid string, assignmentID int) (bool, string, error) {
	attemptType, err := s.rdb.Get(ctx, config.CacheKey.SubmittedMarkerKey(sid, assignmentID)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, attemptType, nil
}
