package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-authclient/core"
)

const defaultKeyPrefix = "authclient"

const (
	fieldPayload        = "payload"
	fieldPayloadFormat  = "payload_format"
	fieldPayloadVersion = "payload_version"
	fieldExpiresAt      = "expires_at"
	fieldUpdatedAt      = "updated_at"
)

var ErrRedisUnavailable = errors.New("redisstore: redis unavailable")

type Options struct {
	// Prefix namespaces every key as <prefix>:session:<key>.
	Prefix string
	// TTL expires the record this long after its last write. Zero keeps it
	// until Delete.
	TTL time.Duration
	Now func() time.Time
}

// SessionStore keeps one hash per session key.
type SessionStore struct {
	redis  redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client redis.Cmdable, opts Options) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &SessionStore{redis: client, prefix: prefix, ttl: ttl, now: now}, nil
}

func (s *SessionStore) key(sessionKey string) string {
	return s.prefix + ":session:" + sessionKey
}

func (s *SessionStore) Save(ctx context.Context, record core.PersistedSession) error {
	if s == nil || s.redis == nil {
		return fmt.Errorf("redisstore: session store is not configured")
	}
	sessionKey := strings.TrimSpace(record.Key)
	if sessionKey == "" {
		return fmt.Errorf("redisstore: session key is required")
	}
	if len(record.Payload) == 0 {
		return fmt.Errorf("redisstore: session payload is required")
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	expiresAt := ""
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	key := s.key(sessionKey)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldPayload, record.Payload,
			fieldPayloadFormat, record.PayloadFormat,
			fieldPayloadVersion, record.PayloadVersion,
			fieldExpiresAt, expiresAt,
			fieldUpdatedAt, updatedAt.UTC().Format(time.RFC3339Nano),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, sessionKey string) (core.PersistedSession, error) {
	if s == nil || s.redis == nil {
		return core.PersistedSession{}, fmt.Errorf("redisstore: session store is not configured")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return core.PersistedSession{}, fmt.Errorf("redisstore: session key is required")
	}
	values, err := s.redis.HGetAll(ctx, s.key(sessionKey)).Result()
	if err != nil {
		return core.PersistedSession{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	payload, ok := values[fieldPayload]
	if !ok || payload == "" {
		return core.PersistedSession{}, core.ErrSessionNotFound
	}

	record := core.PersistedSession{
		Key:           sessionKey,
		Payload:       []byte(payload),
		PayloadFormat: values[fieldPayloadFormat],
	}
	if raw := values[fieldPayloadVersion]; raw != "" {
		version, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return core.PersistedSession{}, fmt.Errorf("redisstore: invalid payload version %q: %w", raw, convErr)
		}
		record.PayloadVersion = version
	}
	record.ExpiresAt = parseTime(values[fieldExpiresAt])
	record.UpdatedAt = parseTime(values[fieldUpdatedAt])
	return record, nil
}

// Delete is idempotent.
func (s *SessionStore) Delete(ctx context.Context, sessionKey string) error {
	if s == nil || s.redis == nil {
		return fmt.Errorf("redisstore: session store is not configured")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return fmt.Errorf("redisstore: session key is required")
	}
	if err := s.redis.Del(ctx, s.key(sessionKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

var _ core.SessionPersister = (*SessionStore)(nil)
