package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

func TestLoginCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.AuthResult{
		Credential: core.Credential{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)},
		User:       core.UserSnapshot{ID: "u1", Email: "ana@example.com"},
	}
	called := false
	svc := &stubMutatingService{
		loginFn: func(_ context.Context, req core.LoginRequest) (core.AuthResult, error) {
			called = true
			if req.Email != "ana@example.com" || req.Password != "secret" {
				t.Fatalf("unexpected login request %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewLoginCommand(svc)
	collector := gocmd.NewResult[core.AuthResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, LoginMessage{Request: core.LoginRequest{Email: "ana@example.com", Password: "secret"}}); err != nil {
		t.Fatalf("execute login: %v", err)
	}
	if !called {
		t.Fatalf("expected login service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Credential.AccessToken != "a1" || result.User.ID != "u1" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestLoginCommand_InvalidMessageSkipsService(t *testing.T) {
	svc := &stubMutatingService{
		loginFn: func(context.Context, core.LoginRequest) (core.AuthResult, error) {
			t.Fatalf("service must not be called for an invalid message")
			return core.AuthResult{}, nil
		},
	}
	err := NewLoginCommand(svc).Execute(context.Background(), LoginMessage{Request: core.LoginRequest{Email: "ana@example.com"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRegisterMessage_Validate(t *testing.T) {
	valid := core.RegisterRequest{Email: "ana@example.com", Password: "secret", ConfirmPassword: "secret", Name: "Ana"}
	if err := (RegisterMessage{Request: valid}).Validate(); err != nil {
		t.Fatalf("expected valid register message: %v", err)
	}

	mismatch := valid
	mismatch.ConfirmPassword = "other"
	if err := (RegisterMessage{Request: mismatch}).Validate(); err == nil {
		t.Fatalf("expected confirmation mismatch error")
	}

	noName := valid
	noName.Name = " "
	if err := (RegisterMessage{Request: noName}).Validate(); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		svc := &stubMutatingService{
			registerFn: func(_ context.Context, req core.RegisterRequest) (core.AuthResult, error) {
				if req.CPF != "123" || req.Phone != "555" {
					t.Fatalf("unexpected register request %#v", req)
				}
				return core.AuthResult{Credential: core.Credential{AccessToken: "a2"}}, nil
			},
		}
		collector := gocmd.NewResult[core.AuthResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewRegisterCommand(svc).Execute(ctx, RegisterMessage{Request: core.RegisterRequest{
			Email: "ana@example.com", Password: "secret", Name: "Ana", CPF: "123", Phone: "555",
		}})
		if err != nil {
			t.Fatalf("execute register: %v", err)
		}
		if result, ok := collector.Load(); !ok || result.Credential.AccessToken != "a2" {
			t.Fatalf("unexpected register result %#v", result)
		}
	})

	t.Run("logout", func(t *testing.T) {
		svc := &stubMutatingService{}
		if err := NewLogoutCommand(svc).Execute(context.Background(), LogoutMessage{}); err != nil {
			t.Fatalf("execute logout: %v", err)
		}
		if svc.logoutCalls != 1 {
			t.Fatalf("expected one logout call, got %d", svc.logoutCalls)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		svc := &stubMutatingService{
			refreshFn: func(context.Context) (core.Credential, error) {
				return core.Credential{AccessToken: "fresh", RefreshToken: "r2"}, nil
			},
		}
		collector := gocmd.NewResult[core.Credential]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRefreshCommand(svc).Execute(ctx, RefreshMessage{}); err != nil {
			t.Fatalf("execute refresh: %v", err)
		}
		if cred, ok := collector.Load(); !ok || cred.AccessToken != "fresh" {
			t.Fatalf("unexpected refresh result %#v", cred)
		}
	})

	t.Run("refresh failure", func(t *testing.T) {
		failure := core.NewRefreshFailure(errors.New("revoked"), core.RefreshFailureReasonRejected)
		svc := &stubMutatingService{
			refreshFn: func(context.Context) (core.Credential, error) { return core.Credential{}, failure },
		}
		collector := gocmd.NewResult[core.Credential]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewRefreshCommand(svc).Execute(ctx, RefreshMessage{})
		if !core.IsRefreshFailure(err) {
			t.Fatalf("expected refresh failure, got %v", err)
		}
		if _, ok := collector.Load(); ok {
			t.Fatalf("expected no stored result on failure")
		}
	})

	t.Run("restore", func(t *testing.T) {
		svc := &stubMutatingService{}
		if err := NewRestoreSessionCommand(svc).Execute(context.Background(), RestoreSessionMessage{}); err != nil {
			t.Fatalf("execute restore: %v", err)
		}
		if svc.restoreCalls != 1 {
			t.Fatalf("expected one restore call, got %d", svc.restoreCalls)
		}
	})

	t.Run("schedule refresh", func(t *testing.T) {
		scheduler := &stubScheduler{}
		err := NewScheduleRefreshCommand(scheduler).Execute(context.Background(), ScheduleRefreshMessage{
			Request: core.ScheduleRefreshRequest{Force: true},
		})
		if err != nil {
			t.Fatalf("execute schedule refresh: %v", err)
		}
		if len(scheduler.requests) != 1 || !scheduler.requests[0].Force {
			t.Fatalf("unexpected scheduled requests %#v", scheduler.requests)
		}
	})
}

func TestCommandTypes_AreNamespaced(t *testing.T) {
	messages := []interface{ Type() string }{
		LoginMessage{}, RegisterMessage{}, LogoutMessage{}, RefreshMessage{}, ScheduleRefreshMessage{}, RestoreSessionMessage{},
	}
	seen := map[string]bool{}
	for _, msg := range messages {
		if seen[msg.Type()] {
			t.Fatalf("duplicate message type %q", msg.Type())
		}
		seen[msg.Type()] = true
	}
}

type stubMutatingService struct {
	loginFn      func(context.Context, core.LoginRequest) (core.AuthResult, error)
	registerFn   func(context.Context, core.RegisterRequest) (core.AuthResult, error)
	refreshFn    func(context.Context) (core.Credential, error)
	logoutCalls  int
	restoreCalls int
}

func (s *stubMutatingService) Login(ctx context.Context, req core.LoginRequest) (core.AuthResult, error) {
	if s.loginFn == nil {
		return core.AuthResult{}, nil
	}
	return s.loginFn(ctx, req)
}

func (s *stubMutatingService) Register(ctx context.Context, req core.RegisterRequest) (core.AuthResult, error) {
	if s.registerFn == nil {
		return core.AuthResult{}, nil
	}
	return s.registerFn(ctx, req)
}

func (s *stubMutatingService) Logout(context.Context) error {
	s.logoutCalls++
	return nil
}

func (s *stubMutatingService) RefreshNow(ctx context.Context) (core.Credential, error) {
	if s.refreshFn == nil {
		return core.Credential{}, nil
	}
	return s.refreshFn(ctx)
}

func (s *stubMutatingService) Restore(context.Context) error {
	s.restoreCalls++
	return nil
}

type stubScheduler struct {
	requests []core.ScheduleRefreshRequest
}

func (s *stubScheduler) ScheduleRefresh(_ context.Context, req core.ScheduleRefreshRequest) error {
	s.requests = append(s.requests, req)
	return nil
}
