package query

import (
	"time"
)

const (
	TypeCurrentSession = "authclient.query.session.current"
	TypeCurrentUser    = "authclient.query.session.user"
	TypeTokenState     = "authclient.query.session.token_state"
)

type CurrentSessionMessage struct{}

func (CurrentSessionMessage) Type() string { return TypeCurrentSession }

func (CurrentSessionMessage) Validate() error { return nil }

type CurrentUserMessage struct{}

func (CurrentUserMessage) Type() string { return TypeCurrentUser }

func (CurrentUserMessage) Validate() error { return nil }

// TokenStateMessage asks for the expiry flags of the stored credential.
// A zero ExpiringSoonWindow uses the default window.
type TokenStateMessage struct {
	ExpiringSoonWindow time.Duration
	At                 time.Time
}

func (TokenStateMessage) Type() string { return TypeTokenState }

func (m TokenStateMessage) Validate() error {
	if m.ExpiringSoonWindow < 0 {
		return queryValidationError("expiring_soon_window", "expiring soon window must be >= 0")
	}
	return nil
}
