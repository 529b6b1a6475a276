package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

func TestCurrentSessionQuery_QueryDelegates(t *testing.T) {
	expiresAt := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	reader := stubSessionReader{
		snapshot: core.SessionSnapshot{Authenticated: true, LoggedIn: true, ExpiresAt: &expiresAt},
	}
	result, err := NewCurrentSessionQuery(reader).Query(context.Background(), CurrentSessionMessage{})
	if err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if !result.LoggedIn || result.ExpiresAt == nil || !result.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected snapshot %#v", result)
	}
}

func TestCurrentUserQuery_NotFoundWhenLoggedOut(t *testing.T) {
	_, err := NewCurrentUserQuery(stubSessionReader{}).Query(context.Background(), CurrentUserMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if rich.Category != goerrors.CategoryNotFound || rich.TextCode != core.ServiceErrorSessionNotFound {
		t.Fatalf("unexpected error envelope %#v", rich)
	}

	user, err := NewCurrentUserQuery(stubSessionReader{
		user: core.UserSnapshot{ID: "u1", Email: "ana@example.com"},
	}).Query(context.Background(), CurrentUserMessage{})
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %#v", user)
	}
}

func TestTokenStateQuery_ResolvesExpiryFlags(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	reader := stubCredentialReader{cred: core.Credential{
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresAt:    now.Add(2 * time.Minute),
	}, ok: true}

	state, err := NewTokenStateQuery(reader).Query(context.Background(), TokenStateMessage{At: now})
	if err != nil {
		t.Fatalf("query token state: %v", err)
	}
	if !state.HasAccessToken || !state.HasRefreshToken || state.IsExpired || !state.IsExpiringSoon {
		t.Fatalf("unexpected state with default window %#v", state)
	}

	state, err = NewTokenStateQuery(reader).Query(context.Background(), TokenStateMessage{At: now, ExpiringSoonWindow: time.Minute})
	if err != nil {
		t.Fatalf("query token state: %v", err)
	}
	if state.IsExpiringSoon {
		t.Fatalf("expected one minute window to report not expiring soon")
	}

	state, err = NewTokenStateQuery(stubCredentialReader{}).Query(context.Background(), TokenStateMessage{At: now})
	if err != nil {
		t.Fatalf("query empty token state: %v", err)
	}
	if state.HasAccessToken || state.IsExpiringSoon {
		t.Fatalf("expected zero state without credential, got %#v", state)
	}
}

type stubSessionReader struct {
	snapshot core.SessionSnapshot
	user     core.UserSnapshot
}

func (s stubSessionReader) SessionSnapshot() core.SessionSnapshot { return s.snapshot }

func (s stubSessionReader) CurrentUser() (core.UserSnapshot, bool) {
	return s.user, !s.user.IsZero()
}

type stubCredentialReader struct {
	cred core.Credential
	ok   bool
}

func (s stubCredentialReader) Current() (core.Credential, bool) { return s.cred, s.ok }
