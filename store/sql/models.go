package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-authclient/core"
)

type sessionRecord struct {
	bun.BaseModel `bun:"table:authclient_sessions,alias:acs"`

	ID             string     `bun:"id,pk"`
	SessionKey     string     `bun:"session_key,notnull"`
	Payload        []byte     `bun:"payload,notnull"`
	PayloadFormat  string     `bun:"payload_format,notnull"`
	PayloadVersion int        `bun:"payload_version,notnull"`
	ExpiresAt      *time.Time `bun:"expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *sessionRecord) apply(record core.PersistedSession, now time.Time) {
	r.SessionKey = record.Key
	r.Payload = append([]byte(nil), record.Payload...)
	r.PayloadFormat = record.PayloadFormat
	r.PayloadVersion = record.PayloadVersion
	r.ExpiresAt = nil
	if !record.ExpiresAt.IsZero() {
		expiresAt := record.ExpiresAt.UTC()
		r.ExpiresAt = &expiresAt
	}
	r.UpdatedAt = now
	if !record.UpdatedAt.IsZero() {
		r.UpdatedAt = record.UpdatedAt.UTC()
	}
}

func (r *sessionRecord) toDomain() core.PersistedSession {
	if r == nil {
		return core.PersistedSession{}
	}
	out := core.PersistedSession{
		Key:            r.SessionKey,
		Payload:        append([]byte(nil), r.Payload...),
		PayloadFormat:  r.PayloadFormat,
		PayloadVersion: r.PayloadVersion,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.ExpiresAt != nil {
		out.ExpiresAt = r.ExpiresAt.UTC()
	}
	return out
}
