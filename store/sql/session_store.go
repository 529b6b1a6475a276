package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-authclient/core"
)

// SessionStore persists one encoded session per key in the
// authclient_sessions table.
type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]
	now  func() time.Time
}

func NewSessionStore(db *bun.DB) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Save upserts the record under its key inside one transaction.
func (s *SessionStore) Save(ctx context.Context, record core.PersistedSession) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	record.Key = strings.TrimSpace(record.Key)
	if record.Key == "" {
		return fmt.Errorf("sqlstore: session key is required")
	}
	if len(record.Payload) == 0 {
		return fmt.Errorf("sqlstore: session payload is required")
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findSessionTx(ctx, tx, record.Key)
		if err != nil {
			return err
		}
		if existing == nil {
			created := &sessionRecord{
				ID:        uuid.NewString(),
				CreatedAt: now,
			}
			created.apply(record, now)
			if _, createErr := s.repo.CreateTx(ctx, tx, created); createErr != nil {
				return createErr
			}
			return nil
		}
		existing.apply(record, now)
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Column("payload", "payload_format", "payload_version", "expires_at", "updated_at").
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (s *SessionStore) Load(ctx context.Context, key string) (core.PersistedSession, error) {
	if s == nil || s.repo == nil {
		return core.PersistedSession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.PersistedSession{}, fmt.Errorf("sqlstore: session key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("session_key", "=", key),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PersistedSession{}, err
	}
	if len(records) == 0 {
		return core.PersistedSession{}, core.ErrSessionNotFound
	}
	return records[0].toDomain(), nil
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: session key is required")
	}
	_, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("session_key = ?", key).
		Exec(ctx)
	return err
}

func findSessionTx(ctx context.Context, tx bun.Tx, key string) (*sessionRecord, error) {
	record := &sessionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.session_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

var _ core.SessionPersister = (*SessionStore)(nil)
