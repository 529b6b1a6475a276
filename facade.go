package authclient

import (
	"fmt"

	authcommand "github.com/goliatone/go-authclient/command"
	"github.com/goliatone/go-authclient/core"
	authquery "github.com/goliatone/go-authclient/query"
)

// CommandQueryService is everything the facade handlers delegate to.
// *core.Service implements it.
type CommandQueryService interface {
	authcommand.MutatingService
	authcommand.RefreshScheduler
	authquery.SessionReader
	Store() *core.CredentialStore
}

type Commands struct {
	Login           *authcommand.LoginCommand
	Register        *authcommand.RegisterCommand
	Logout          *authcommand.LogoutCommand
	Refresh         *authcommand.RefreshCommand
	RestoreSession  *authcommand.RestoreSessionCommand
	ScheduleRefresh *authcommand.ScheduleRefreshCommand
}

type Queries struct {
	CurrentSession *authquery.CurrentSessionQuery
	CurrentUser    *authquery.CurrentUserQuery
	TokenState     *authquery.TokenStateQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("authclient: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		Login:           authcommand.NewLoginCommand(service),
		Register:        authcommand.NewRegisterCommand(service),
		Logout:          authcommand.NewLogoutCommand(service),
		Refresh:         authcommand.NewRefreshCommand(service),
		RestoreSession:  authcommand.NewRestoreSessionCommand(service),
		ScheduleRefresh: authcommand.NewScheduleRefreshCommand(service),
	}
	facade.queries = Queries{
		CurrentSession: authquery.NewCurrentSessionQuery(service),
		CurrentUser:    authquery.NewCurrentUserQuery(service),
		TokenState:     authquery.NewTokenStateQuery(service.Store()),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*core.Service)(nil)
