package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	authcommand "github.com/goliatone/go-authclient/command"
	"github.com/goliatone/go-authclient/core"
	authquery "github.com/goliatone/go-authclient/query"
)

// SessionService is the surface the session commands and queries need.
// *core.Service implements it.
type SessionService interface {
	authcommand.MutatingService
	authcommand.RefreshScheduler
	authquery.SessionReader
	Store() *core.CredentialStore
}

// SessionHandlers records the message types a session service was
// subscribed under.
type SessionHandlers struct {
	adapter *RegistryAdapter
	types   []string
}

func (h *SessionHandlers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.types)
}

func (h *SessionHandlers) Types() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.types...)
}

func (h *SessionHandlers) Unsubscribe() {
	if h == nil {
		return
	}
	for _, msgType := range h.types {
		h.adapter.Unsubscribe(msgType)
	}
	h.types = nil
}

// RegisterSessionHandlers registers every session command and query with the
// registry and subscribes them on the global dispatcher. Nothing stays
// subscribed when a registration fails.
func RegisterSessionHandlers(
	adapter *RegistryAdapter,
	svc SessionService,
	runnerOpts ...runner.Option,
) (*SessionHandlers, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: session service is required")
	}
	handlers := &SessionHandlers{adapter: adapter}
	track := func(msgType string) func(commanddispatcher.Subscription, error) error {
		return func(_ commanddispatcher.Subscription, err error) error {
			if err != nil {
				handlers.Unsubscribe()
				return err
			}
			handlers.types = append(handlers.types, msgType)
			return nil
		}
	}

	if err := track(authcommand.TypeLogin)(RegisterAndSubscribe[authcommand.LoginMessage](adapter, authcommand.NewLoginCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authcommand.TypeRegister)(RegisterAndSubscribe[authcommand.RegisterMessage](adapter, authcommand.NewRegisterCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authcommand.TypeLogout)(RegisterAndSubscribe[authcommand.LogoutMessage](adapter, authcommand.NewLogoutCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authcommand.TypeRefresh)(RegisterAndSubscribe[authcommand.RefreshMessage](adapter, authcommand.NewRefreshCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authcommand.TypeRestore)(RegisterAndSubscribe[authcommand.RestoreSessionMessage](adapter, authcommand.NewRestoreSessionCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authcommand.TypeScheduleRefresh)(RegisterAndSubscribe[authcommand.ScheduleRefreshMessage](adapter, authcommand.NewScheduleRefreshCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authquery.TypeCurrentSession)(RegisterAndSubscribeQuery[authquery.CurrentSessionMessage, core.SessionSnapshot](adapter, authquery.NewCurrentSessionQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authquery.TypeCurrentUser)(RegisterAndSubscribeQuery[authquery.CurrentUserMessage, core.UserSnapshot](adapter, authquery.NewCurrentUserQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(authquery.TypeTokenState)(RegisterAndSubscribeQuery[authquery.TokenStateMessage, core.CredentialTokenState](adapter, authquery.NewTokenStateQuery(svc.Store()), runnerOpts...)); err != nil {
		return nil, err
	}
	return handlers, nil
}

var _ SessionService = (*core.Service)(nil)
