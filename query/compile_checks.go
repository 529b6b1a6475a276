package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

var (
	_ gocmd.Querier[CurrentSessionMessage, core.SessionSnapshot]  = (*CurrentSessionQuery)(nil)
	_ gocmd.Querier[CurrentUserMessage, core.UserSnapshot]        = (*CurrentUserQuery)(nil)
	_ gocmd.Querier[TokenStateMessage, core.CredentialTokenState] = (*TokenStateQuery)(nil)

	_ SessionReader    = (*core.Service)(nil)
	_ CredentialReader = (*core.CredentialStore)(nil)
)
