package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type CredentialStoreOptions struct {
	Key            string
	Persister      SessionPersister
	Codec          CredentialCodec
	SecretProvider SecretProvider
	Logger         Logger
	Metrics        MetricsRecorder
	Now            func() time.Time
}

// CredentialStore holds the current session in memory and mirrors it to a
// SessionPersister. Reads never touch the persister.
type CredentialStore struct {
	key       string
	persister SessionPersister
	codec     CredentialCodec
	secrets   SecretProvider
	logger    Logger
	metrics   MetricsRecorder
	now       func() time.Time

	mu      sync.RWMutex
	session *Session
	// generation changes on every write so a refresh that started against an
	// older session can tell it was superseded.
	generation uint64

	// writeMu orders memory updates with their persistence side effect.
	writeMu sync.Mutex
}

func NewCredentialStore(opts CredentialStoreOptions) *CredentialStore {
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = DefaultSessionKey
	}
	persister := opts.Persister
	if persister == nil {
		persister = NewMemorySessionPersister()
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CredentialStore{
		key:       key,
		persister: persister,
		codec:     codec,
		secrets:   opts.SecretProvider,
		logger:    glog.Ensure(opts.Logger),
		metrics:   metrics,
		now:       now,
	}
}

func (s *CredentialStore) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

// Set replaces the credential and keeps the current user snapshot.
func (s *CredentialStore) Set(ctx context.Context, cred Credential) {
	if s == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := Session{Credential: cred}
	s.mu.Lock()
	if s.session != nil {
		next.User = s.session.User
	}
	s.session = &next
	s.generation++
	s.mu.Unlock()

	s.persist(ctx, next)
}

// SetSession replaces credential and user snapshot together. A zero user
// keeps the snapshot already held.
func (s *CredentialStore) SetSession(ctx context.Context, session Session) {
	if s == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := session
	s.mu.Lock()
	if next.User.IsZero() && s.session != nil {
		next.User = s.session.User
	}
	s.session = &next
	s.generation++
	s.mu.Unlock()

	s.persist(ctx, next)
}

// SetSessionIf is SetSession applied only while the store is still at
// generation. It reports whether the session was written.
func (s *CredentialStore) SetSessionIf(ctx context.Context, generation uint64, session Session) bool {
	if s == nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := session
	s.mu.Lock()
	if s.generation != generation || s.session == nil {
		s.mu.Unlock()
		return false
	}
	if next.User.IsZero() {
		next.User = s.session.User
	}
	s.session = &next
	s.generation++
	s.mu.Unlock()

	s.persist(ctx, next)
	return true
}

func (s *CredentialStore) Clear(ctx context.Context) {
	if s == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.session = nil
	s.generation++
	s.mu.Unlock()

	s.deletePersisted(ctx)
}

// ClearIf clears the store only while it still holds the session seen at
// generation. It reports whether a session was removed.
func (s *CredentialStore) ClearIf(ctx context.Context, generation uint64) bool {
	if s == nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.generation != generation || s.session == nil {
		s.mu.Unlock()
		return false
	}
	s.session = nil
	s.generation++
	s.mu.Unlock()

	s.deletePersisted(ctx)
	return true
}

func (s *CredentialStore) deletePersisted(ctx context.Context) {
	if err := s.persister.Delete(contextOrBackground(ctx), s.key); err != nil {
		s.persistFailed(ctx, "delete", err)
	}
}

// Generation identifies the current store contents. Any write changes it.
func (s *CredentialStore) Generation() uint64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// currentWithGeneration reads the credential and its generation atomically.
func (s *CredentialStore) currentWithGeneration() (Credential, uint64, bool) {
	if s == nil {
		return Credential{}, 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Credential{}, s.generation, false
	}
	return s.session.Credential, s.generation, true
}

func (s *CredentialStore) Current() (Credential, bool) {
	session, ok := s.Session()
	if !ok {
		return Credential{}, false
	}
	return session.Credential, true
}

func (s *CredentialStore) Session() (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// IsValid reports whether a credential exists and has not expired at now.
func (s *CredentialStore) IsValid(now time.Time) bool {
	cred, ok := s.Current()
	if !ok {
		return false
	}
	return cred.ExpiresAt.After(now)
}

// ExpiringSoon is advisory only: callers use it to refresh proactively.
func (s *CredentialStore) ExpiringSoon(now time.Time, window time.Duration) bool {
	cred, ok := s.Current()
	if !ok {
		return false
	}
	return cred.ExpiresAt.Sub(now) < window
}

// Restore loads the persisted session into memory. A missing record leaves
// the store empty and is not an error.
func (s *CredentialStore) Restore(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: credential store is nil")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.persister.Load(contextOrBackground(ctx), s.key)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	payload := record.Payload
	if s.secrets != nil {
		payload, err = s.secrets.Decrypt(contextOrBackground(ctx), payload)
		if err != nil {
			return fmt.Errorf("core: decrypt persisted session: %w", err)
		}
	}
	session, err := s.codec.Decode(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = &session
	s.generation++
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) persist(ctx context.Context, session Session) {
	ctx = contextOrBackground(ctx)
	payload, err := s.codec.Encode(session)
	if err != nil {
		s.persistFailed(ctx, "encode", err)
		return
	}
	if s.secrets != nil {
		payload, err = s.secrets.Encrypt(ctx, payload)
		if err != nil {
			s.persistFailed(ctx, "encrypt", err)
			return
		}
	}
	err = s.persister.Save(ctx, PersistedSession{
		Key:            s.key,
		Payload:        payload,
		PayloadFormat:  s.codec.Format(),
		PayloadVersion: s.codec.Version(),
		ExpiresAt:      session.Credential.ExpiresAt.UTC(),
		UpdatedAt:      s.now().UTC(),
	})
	if err != nil {
		s.persistFailed(ctx, "save", err)
	}
}

func (s *CredentialStore) persistFailed(ctx context.Context, stage string, err error) {
	s.metrics.IncCounter(ctx, MetricStorePersistFailed, 1, map[string]string{"stage": stage})
	s.logger.WithContext(ctx).Error("credential store persistence failed",
		"stage", stage,
		"session_key", s.key,
		"error", err.Error(),
	)
}

// MemorySessionPersister keeps persisted sessions in process memory. It is
// the default when no durable backend is configured.
type MemorySessionPersister struct {
	mu      sync.Mutex
	records map[string]PersistedSession
}

func NewMemorySessionPersister() *MemorySessionPersister {
	return &MemorySessionPersister{records: map[string]PersistedSession{}}
}

func (p *MemorySessionPersister) Save(_ context.Context, record PersistedSession) error {
	if p == nil {
		return fmt.Errorf("core: memory session persister is nil")
	}
	key := strings.TrimSpace(record.Key)
	if key == "" {
		return fmt.Errorf("core: session key is required")
	}
	record.Key = key
	record.Payload = append([]byte(nil), record.Payload...)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[key] = record
	return nil
}

func (p *MemorySessionPersister) Load(_ context.Context, key string) (PersistedSession, error) {
	if p == nil {
		return PersistedSession{}, fmt.Errorf("core: memory session persister is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.records[strings.TrimSpace(key)]
	if !ok {
		return PersistedSession{}, ErrSessionNotFound
	}
	record.Payload = append([]byte(nil), record.Payload...)
	return record, nil
}

func (p *MemorySessionPersister) Delete(_ context.Context, key string) error {
	if p == nil {
		return fmt.Errorf("core: memory session persister is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, strings.TrimSpace(key))
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
