package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/model"
	"github.com/redis/go-redis/v9"
)

// credentialTTL bounds how long an idle session's credential survives in
// Redis. Matches the longest upstream refresh-token lifetime we front.
const credentialTTL = 24 * time.Hour

// RedisPersistence stores credentials in Redis keyed by browser session id.
type RedisPersistence struct {
	rdb *redis.Client
}

// NewRedisPersistence creates the Redis-backed credential persistence.
func NewRedisPersistence(rdb *redis.Client) *RedisPersistence {
	return &RedisPersistence{rdb: rdb}
}

func (p *RedisPersistence) SaveCredential(ctx context.Context, sid string, cred model.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return p.rdb.Set(ctx, config.CacheKey.SessionCredentialKey(sid), raw, credentialTTL).Err()
}

func (p *RedisPersistence) LoadCredential(ctx context.Context, sid string) (model.Credential, bool, error) {
	raw, err := p.rdb.Get(ctx, config.CacheKey.SessionCredentialKey(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Credential{}, false, nil
		}
		return model.Credential{}, false, fmt.Errorf("load credential: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return model.Credential{}, false, fmt.Errorf("unmarshal credential: %w", err)
	}
	return cred, true, nil
}

func (p *RedisPersistence) DeleteCredential(ctx context.Context, sid string) error {
	return p.rdb.Del(ctx, config.CacheKey.SessionCredentialKey(sid)).Err()
}
