package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/token"
	"github.com/proctorix/examgate/internal/upstream"
)

var ErrSessionNotFound = errors.New("session not found")

const userTTL = 24 * time.Hour

// SessionService owns the gateway session lifecycle: login proxied upstream,
// the opaque sid, the persisted user summary, the face gate, and logout.
// It also implements guard.SessionReader, so the middleware decides access
// from the same state the service maintains.
type SessionService struct {
	store     *token.Store
	coord     *token.Coordinator
	auth      *upstream.AuthClient
	biometric *upstream.BiometricClient
	rdb       *redis.Client
	log       zerolog.Logger
}

func NewSessionService(
	store *token.Store,
	coord *token.Coordinator,
	auth *upstream.AuthClient,
	biometric *upstream.BiometricClient,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		store:     store,
		coord:     coord,
		auth:      auth,
		biometric: biometric,
		rdb:       rdb,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// Login proxies the credentials upstream and, on success, creates a gateway
// session: a fresh opaque sid, the stored credential, and the user summary.
// The browser only ever sees the sid.
func (s *SessionService) Login(ctx context.Context, req model.LoginRequest) (string, model.User, error) {
	cred, user, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return "", model.User{}, err
	}

	sid := uuid.NewString()
	if err := s.store.Set(ctx, sid, cred); err != nil {
		return "", model.User{}, err
	}
	if err := s.saveUser(ctx, sid, user); err != nil {
		s.store.Clear(ctx, sid)
		return "", model.User{}, err
	}

	s.log.Info().Int("user_id", user.ID).Msg("session created")
	return sid, user, nil
}

// Logout terminates the session through the coordinator so the termination
// hook also closes any live attempt. Idempotent: logging out an unknown sid
// is not an error.
func (s *SessionService) Logout(ctx context.Context, sid string) {
	s.coord.Terminate(ctx, sid)
	if err := s.rdb.Del(ctx, config.CacheKey.SessionUserKey(sid)).Err(); err != nil {
		s.log.Error().Err(err).Msg("failed to delete user summary")
	}
	s.log.Info().Msg("session ended")
}

// Me returns the session's user summary.
func (s *SessionService) Me(ctx context.Context, sid string) (model.User, error) {
	user, ok, err := s.User(ctx, sid)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, ErrSessionNotFound
	}
	return user, nil
}

// VerifyFace runs the session-level biometric gate. On a positive verdict
// the user summary is marked verified, which unlocks the exam flow.
func (s *SessionService) VerifyFace(ctx context.Context, sid, faceImage string) (bool, error) {
	ok, err := s.biometric.Verify(ctx, sid, faceImage, 0)
	if err != nil || !ok {
		return false, err
	}

	user, found, err := s.User(ctx, sid)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrSessionNotFound
	}
	user.FaceVerified = true
	if err := s.saveUser(ctx, sid, user); err != nil {
		return false, err
	}
	s.log.Info().Int("user_id", user.ID).Msg("face verified")
	return true, nil
}

// Credential implements guard.SessionReader.
func (s *SessionService) Credential(ctx context.Context, sid string) (model.Credential, bool, error) {
	cred, ok := s.store.Get(ctx, sid)
	return cred, ok, nil
}

// User implements guard.SessionReader.
func (s *SessionService) User(ctx context.Context, sid string) (model.User, bool, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SessionUserKey(sid)).Result()
	if err == redis.Nil {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}

	var user model.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return model.User{}, false, err
	}
	return user, true, nil
}

func (s *SessionService) saveUser(ctx context.Context, sid string, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, config.CacheKey.SessionUserKey(sid), data, userTTL).Err()
}
