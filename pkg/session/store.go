// Package session implements a redis-backed HTTP session store. Session
// fields are plain strings in a redis hash keyed by a cookie-carried id;
// every read and write is awaited before the handler responds, so an
// acknowledged state change is always durable in the store.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"project-service/pkg/config"
)

// NewRedisClient instantiates a redis client from config and verifies the
// connection with a short ping.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// Store reads and writes sessions against redis.
type Store struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, cfg *config.SessionConfig) *Store {
	return &Store{
		client:     client,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
	}
}

// Session is a loaded session. Values mutations are not durable until Save.
type Session struct {
	ID     string
	Values map[string]string
	isNew  bool
}

// Get returns a value and whether it was present.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set stores a value in the session.
func (s *Session) Set(key, value string) {
	s.Values[key] = value
}

// Delete removes a value from the session.
func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.isNew }

func (s *Store) key(id string) string { return "session:" + id }

// Get loads the session identified by the request cookie, creating a fresh
// one when no cookie is present.
func (s *Store) Get(ctx context.Context, c echo.Context) (*Session, error) {
	cookie, err := c.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return &Session{ID: uuid.New().String(), Values: map[string]string{}, isNew: true}, nil
	}

	values, err := s.client.HGetAll(ctx, s.key(cookie.Value)).Result()
	if err != nil {
		return nil, err
	}
	// A cookie id with no server-side state never gets adopted; issuing a
	// fresh id here keeps a client from fixing its own session id
	if len(values) == 0 {
		return &Session{ID: uuid.New().String(), Values: map[string]string{}, isNew: true}, nil
	}
	return &Session{ID: cookie.Value, Values: values}, nil
}

// Save persists the session to redis and refreshes the cookie. The write is
// completed before returning; callers must not respond before Save returns.
func (s *Store) Save(ctx context.Context, c echo.Context, sess *Session) error {
	key := s.key(sess.ID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(sess.Values) > 0 {
		pipe.HSet(ctx, key, sess.Values)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return nil
}

// TTL returns the remaining lifetime of the session in the store. Zero and
// negative values mean the session has no server-side state.
func (s *Store) TTL(ctx context.Context, sess *Session) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(sess.ID)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Destroy removes the session from redis and expires the cookie.
func (s *Store) Destroy(ctx context.Context, c echo.Context, sess *Session) error {
	if err := s.client.Del(ctx, s.key(sess.ID)).Err(); err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	sess.Values = map[string]string{}
	return nil
}
