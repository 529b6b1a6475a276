package query

import (
	"context"
	"time"

	"github.com/goliatone/go-authclient/core"
)

type SessionReader interface {
	SessionSnapshot() core.SessionSnapshot
	CurrentUser() (core.UserSnapshot, bool)
}

type CredentialReader interface {
	Current() (core.Credential, bool)
}

type CurrentSessionQuery struct {
	reader SessionReader
}

func NewCurrentSessionQuery(reader SessionReader) *CurrentSessionQuery {
	return &CurrentSessionQuery{reader: reader}
}

func (q *CurrentSessionQuery) Query(_ context.Context, _ CurrentSessionMessage) (core.SessionSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.SessionSnapshot{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.SessionSnapshot(), nil
}

type CurrentUserQuery struct {
	reader SessionReader
}

func NewCurrentUserQuery(reader SessionReader) *CurrentUserQuery {
	return &CurrentUserQuery{reader: reader}
}

// Query returns a not found error when no user is attached to the session.
func (q *CurrentUserQuery) Query(_ context.Context, _ CurrentUserMessage) (core.UserSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.UserSnapshot{}, queryDependencyError("query: session reader is required")
	}
	user, ok := q.reader.CurrentUser()
	if !ok {
		return core.UserSnapshot{}, queryNotFoundError("query: no user is logged in")
	}
	return user, nil
}

type TokenStateQuery struct {
	reader CredentialReader
	now    func() time.Time
}

func NewTokenStateQuery(reader CredentialReader) *TokenStateQuery {
	return &TokenStateQuery{reader: reader, now: time.Now}
}

func (q *TokenStateQuery) Query(_ context.Context, msg TokenStateMessage) (core.CredentialTokenState, error) {
	if q == nil || q.reader == nil {
		return core.CredentialTokenState{}, queryDependencyError("query: credential reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.CredentialTokenState{}, err
	}
	at := msg.At
	if at.IsZero() {
		at = q.now()
	}
	cred, ok := q.reader.Current()
	if !ok {
		return core.CredentialTokenState{}, nil
	}
	return core.ResolveCredentialTokenState(at, cred, msg.ExpiringSoonWindow), nil
}
