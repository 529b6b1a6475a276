package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "session_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec turns a Session into the opaque payload handed to a
// SessionPersister.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(session Session) ([]byte, error)
	Decode(payload []byte) (Session, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonUserPayload struct {
	ID        string     `json:"id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type jsonSessionPayload struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         *jsonUserPayload `json:"user,omitempty"`
}

func (JSONCredentialCodec) Encode(session Session) ([]byte, error) {
	if strings.TrimSpace(session.Credential.AccessToken) == "" {
		return nil, fmt.Errorf("core: access token is required to encode a session")
	}
	payload := jsonSessionPayload{
		AccessToken:  strings.TrimSpace(session.Credential.AccessToken),
		RefreshToken: strings.TrimSpace(session.Credential.RefreshToken),
		ExpiresAt:    session.Credential.ExpiresAt.UTC(),
	}
	if !session.User.IsZero() {
		payload.User = &jsonUserPayload{
			ID:        strings.TrimSpace(session.User.ID),
			Email:     strings.TrimSpace(session.User.Email),
			Name:      strings.TrimSpace(session.User.Name),
			CreatedAt: timePointer(session.User.CreatedAt),
			LastLogin: cloneTimePointer(session.User.LastLogin),
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode session payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (Session, error) {
	if len(payload) == 0 {
		return Session{}, fmt.Errorf("core: session payload is empty")
	}
	decoded := jsonSessionPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Session{}, fmt.Errorf("core: decode session payload: %w", err)
	}
	if strings.TrimSpace(decoded.AccessToken) == "" {
		return Session{}, fmt.Errorf("core: session payload has no access token")
	}
	session := Session{
		Credential: Credential{
			AccessToken:  strings.TrimSpace(decoded.AccessToken),
			RefreshToken: strings.TrimSpace(decoded.RefreshToken),
			ExpiresAt:    decoded.ExpiresAt.UTC(),
		},
	}
	if decoded.User != nil {
		session.User = UserSnapshot{
			ID:        strings.TrimSpace(decoded.User.ID),
			Email:     strings.TrimSpace(decoded.User.Email),
			Name:      strings.TrimSpace(decoded.User.Name),
			LastLogin: cloneTimePointer(decoded.User.LastLogin),
		}
		if decoded.User.CreatedAt != nil {
			session.User.CreatedAt = decoded.User.CreatedAt.UTC()
		}
	}
	return session, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	clone := value.UTC()
	return &clone
}
