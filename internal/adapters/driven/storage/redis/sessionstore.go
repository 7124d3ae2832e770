// Package redis provides a Redis-backed session store for deployments where
// several caseflow processes share one set of user sessions. Refreshes are
// serialised across those processes with a per-user lock key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var (
	_ driven.SessionStore  = (*SessionStore)(nil)
	_ driven.SessionLocker = (*SessionStore)(nil)
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "caseflow"

// Hash fields of one session.
const (
	fieldProvider = "provider"
	fieldAccess   = "access"
	fieldRefresh  = "refresh"
	fieldExpiry   = "expiry_ms"
	fieldCreated  = "created_ms"
	fieldUpdated  = "updated_ms"
)

// SessionStore keeps each session in a hash keyed by user ID, plus a sorted
// set of user IDs scored by expiry for ListExpiring.
type SessionStore struct {
	client goredis.UniversalClient
	prefix string
}

// Connect parses url (redis://...) and returns a pinged client.
// A bare host:port is accepted as an address.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		opt = &goredis.Options{Addr: url}
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewSessionStore creates a session store on client. An empty prefix uses
// DefaultPrefix.
func NewSessionStore(client goredis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) sessionKey(userID string) string {
	return s.prefix + ":session:" + userID
}

func (s *SessionStore) expiryKey() string {
	return s.prefix + ":session-expiry"
}

func (s *SessionStore) lockKey(userID string) string {
	return s.prefix + ":session-lock:" + userID
}

// releaseScript deletes a lock key only while it still holds our token, so a
// lapsed lock taken over by another process is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockSession takes userID's lock with SET NX PX, polling with exponential
// backoff while another process holds it.
func (s *SessionStore) LockSession(ctx context.Context, userID string, ttl time.Duration) (func(), error) {
	key := s.lockKey(userID)
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.Reset()

	for {
		ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("locking session %s: %w", userID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}

	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), s.client, []string{key}, token).Err()
	}, nil
}

// Save stores or replaces a user's session atomically. The creation time of
// an existing session is kept.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	if sess == nil || sess.UserID == "" {
		return domain.ErrInvalidInput
	}
	key := s.sessionKey(sess.UserID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeSession(sess))
		pipe.HSetNX(ctx, key, fieldCreated, millis(sess.CreatedAt))
		if sess.RefreshCiphertext == nil {
			pipe.HDel(ctx, key, fieldRefresh)
		}
		if sess.Expiry.IsZero() {
			pipe.HDel(ctx, key, fieldExpiry)
			pipe.ZRem(ctx, s.expiryKey(), sess.UserID)
		} else {
			pipe.ZAdd(ctx, s.expiryKey(), goredis.Z{Score: float64(sess.Expiry.UnixMilli()), Member: sess.UserID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get retrieves a session by user ID.
func (s *SessionStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	values, err := s.client.HGetAll(ctx, s.sessionKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if len(values) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeSession(userID, values)
}

// Delete removes a session. Missing sessions are ignored.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(userID))
		pipe.ZRem(ctx, s.expiryKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListExpiring returns sessions whose token expires before the given time.
func (s *SessionStore) ListExpiring(ctx context.Context, before time.Time) ([]domain.Session, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying expiring sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// Index entry outlived its hash.
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// encodeSession returns the hash fields written on every save. The creation
// time is written separately so a replace keeps the original.
func encodeSession(sess *domain.Session) map[string]any {
	fields := map[string]any{
		fieldProvider: sess.Provider,
		fieldAccess:   sess.AccessCiphertext,
		fieldUpdated:  millis(sess.UpdatedAt),
	}
	if sess.RefreshCiphertext != nil {
		fields[fieldRefresh] = sess.RefreshCiphertext
	}
	if !sess.Expiry.IsZero() {
		fields[fieldExpiry] = millis(sess.Expiry)
	}
	return fields
}

func decodeSession(userID string, values map[string]string) (*domain.Session, error) {
	sess := &domain.Session{
		UserID:           userID,
		Provider:         values[fieldProvider],
		AccessCiphertext: []byte(values[fieldAccess]),
	}
	if refresh, ok := values[fieldRefresh]; ok {
		sess.RefreshCiphertext = []byte(refresh)
	}
	var err error
	if sess.Expiry, err = parseMillis(values[fieldExpiry]); err != nil {
		return nil, fmt.Errorf("session %s expiry: %w", userID, err)
	}
	if sess.CreatedAt, err = parseMillis(values[fieldCreated]); err != nil {
		return nil, fmt.Errorf("session %s created: %w", userID, err)
	}
	if sess.UpdatedAt, err = parseMillis(values[fieldUpdated]); err != nil {
		return nil, fmt.Errorf("session %s updated: %w", userID, err)
	}
	return sess, nil
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
