package authclient

import (
	"context"
	"testing"
	"time"

	authcommand "github.com/goliatone/go-authclient/command"
	"github.com/goliatone/go-authclient/core"
	authquery "github.com/goliatone/go-authclient/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(newFacadeTestService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Login == nil || commands.Register == nil || commands.Logout == nil ||
		commands.Refresh == nil || commands.RestoreSession == nil || commands.ScheduleRefresh == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.CurrentSession == nil || queries.CurrentUser == nil || queries.TokenState == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() == nil {
		t.Fatalf("expected service accessor")
	}
}

func TestFacade_LoginThenQuerySession(t *testing.T) {
	facade, err := NewFacade(newFacadeTestService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	if err := facade.Commands().Login.Execute(ctx, authcommand.LoginMessage{
		Request: core.LoginRequest{Email: "ana@example.com", Password: "secret"},
	}); err != nil {
		t.Fatalf("execute login: %v", err)
	}

	snapshot, err := facade.Queries().CurrentSession.Query(ctx, authquery.CurrentSessionMessage{})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if !snapshot.LoggedIn || snapshot.User == nil || snapshot.User.ID != "u1" {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}

	if err := facade.Commands().Logout.Execute(ctx, authcommand.LogoutMessage{}); err != nil {
		t.Fatalf("execute logout: %v", err)
	}
	if _, err := facade.Queries().CurrentUser.Query(ctx, authquery.CurrentUserMessage{}); err == nil {
		t.Fatalf("expected no current user after logout")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error without service")
	}
	var facade *Facade
	if facade.Service() != nil {
		t.Fatalf("expected nil service from nil facade")
	}
}

func newFacadeTestService(t *testing.T) *core.Service {
	t.Helper()
	svc, err := NewService(DefaultConfig(),
		WithTransport(facadeTransport{}),
		WithAuthEndpoint(facadeEndpoint{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type facadeEndpoint struct{}

func (facadeEndpoint) Login(context.Context, core.LoginRequest) (core.AuthResult, error) {
	return core.AuthResult{
		Credential: core.Credential{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().UTC().Add(time.Hour)},
		User:       core.UserSnapshot{ID: "u1", Email: "ana@example.com"},
	}, nil
}

func (e facadeEndpoint) Register(ctx context.Context, _ core.RegisterRequest) (core.AuthResult, error) {
	return e.Login(ctx, core.LoginRequest{})
}

func (e facadeEndpoint) Refresh(ctx context.Context, _ core.Credential) (core.AuthResult, error) {
	return e.Login(ctx, core.LoginRequest{})
}

type facadeTransport struct{}

func (facadeTransport) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: 204}, nil
}
