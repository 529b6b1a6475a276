package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CredentialTokenState captures lifecycle flags derived from a credential.
type CredentialTokenState struct {
	ExpiresAt       *time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// EnsureFreshResult reports what EnsureFresh saw and did.
type EnsureFreshResult struct {
	Credential       Credential
	State            CredentialTokenState
	RefreshAttempted bool
	Refreshed        bool
}

// ResolveCredentialTokenState evaluates expiry flags for a credential.
func ResolveCredentialTokenState(now time.Time, cred Credential, expiringSoonWindow time.Duration) CredentialTokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if expiringSoonWindow <= 0 {
		expiringSoonWindow = DefaultExpiringSoonWindow
	}

	state := CredentialTokenState{
		HasAccessToken:  strings.TrimSpace(cred.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(cred.RefreshToken) != "",
	}
	if cred.ExpiresAt.IsZero() {
		return state
	}
	expiresAt := cred.ExpiresAt.UTC()
	state.ExpiresAt = &expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		state.IsExpiringSoon = true
		return state
	}
	state.IsExpiringSoon = expiresAt.Sub(now) < expiringSoonWindow
	return state
}

// EnsureFresh refreshes the stored credential through the coordinator when it
// is expired or expiring soon. It joins an in-flight refresh instead of
// starting a second one.
func (s *Service) EnsureFresh(ctx context.Context) (EnsureFreshResult, error) {
	if s == nil {
		return EnsureFreshResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	cred, ok := s.store.Current()
	if !ok {
		err := s.mapError(ErrNoSession)
		s.observeOperation(ctx, startedAt, "ensure_fresh", err, nil)
		return EnsureFreshResult{}, err
	}

	now := s.now()
	state := ResolveCredentialTokenState(now, cred, s.expiringSoonWindow())
	result := EnsureFreshResult{Credential: cred, State: state}
	if !state.IsExpiringSoon {
		return result, nil
	}
	if !state.HasRefreshToken {
		return result, nil
	}

	result.RefreshAttempted = true
	fresh, err := s.coordinator.ObtainFreshCredentialFor(ctx, cred.AccessToken)
	s.observeOperation(ctx, startedAt, "ensure_fresh", err, map[string]any{
		"expired": state.IsExpired,
	})
	if err != nil {
		return result, err
	}
	result.Credential = fresh
	result.State = ResolveCredentialTokenState(now, fresh, s.expiringSoonWindow())
	result.Refreshed = true
	return result, nil
}
