package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

type HTTPEndpointConfig struct {
	BaseURL      string
	LoginPath    string
	RegisterPath string
	RefreshPath  string
	Headers      map[string]string
	Timeout      time.Duration
}

// HTTPEndpoint speaks the remote JSON contract of the login, register and
// refresh routes. Requests go straight to the transport and never carry a
// bearer credential.
type HTTPEndpoint struct {
	transport core.Transport
	config    HTTPEndpointConfig
}

func NewHTTPEndpoint(transport core.Transport, cfg HTTPEndpointConfig) (*HTTPEndpoint, error) {
	if transport == nil {
		return nil, fmt.Errorf("auth: transport is required")
	}
	return &HTTPEndpoint{
		transport: transport,
		config: HTTPEndpointConfig{
			BaseURL:      strings.TrimSpace(cfg.BaseURL),
			LoginPath:    firstNonEmpty(cfg.LoginPath, core.DefaultLoginPath),
			RegisterPath: firstNonEmpty(cfg.RegisterPath, core.DefaultRegisterPath),
			RefreshPath:  firstNonEmpty(cfg.RefreshPath, core.DefaultRefreshPath),
			Headers:      cloneHeaders(cfg.Headers),
			Timeout:      cfg.Timeout,
		},
	}, nil
}

// NewHTTPEndpointFromConfig takes the base URL and route paths from the
// service configuration.
func NewHTTPEndpointFromConfig(transport core.Transport, cfg core.Config) (*HTTPEndpoint, error) {
	return NewHTTPEndpoint(transport, HTTPEndpointConfig{
		BaseURL:      cfg.BaseURL,
		LoginPath:    cfg.Auth.LoginPath,
		RegisterPath: cfg.Auth.RegisterPath,
		RefreshPath:  cfg.Auth.RefreshPath,
		Timeout:      cfg.Refresh.Timeout,
	})
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerBody struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Name            string `json:"name"`
	CPF             string `json:"cpf"`
	Phone           string `json:"phone"`
}

type refreshBody struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type userBody struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type authResponseBody struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         userBody  `json:"user"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *HTTPEndpoint) Login(ctx context.Context, req core.LoginRequest) (core.AuthResult, error) {
	return e.exchange(ctx, "login", e.config.LoginPath, loginBody{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
}

func (e *HTTPEndpoint) Register(ctx context.Context, req core.RegisterRequest) (core.AuthResult, error) {
	return e.exchange(ctx, "register", e.config.RegisterPath, registerBody{
		Email:           strings.TrimSpace(req.Email),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            strings.TrimSpace(req.Name),
		CPF:             strings.TrimSpace(req.CPF),
		Phone:           strings.TrimSpace(req.Phone),
	})
}

// Refresh posts the current pair and returns the replacement. Any non-2xx
// answer is an error; the coordinator turns it into a refresh failure.
func (e *HTTPEndpoint) Refresh(ctx context.Context, cred core.Credential) (core.AuthResult, error) {
	if strings.TrimSpace(cred.RefreshToken) == "" {
		return core.AuthResult{}, endpointError("auth: refresh token is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	return e.exchange(ctx, "refresh", e.config.RefreshPath, refreshBody{
		Token:        cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	})
}

func (e *HTTPEndpoint) exchange(ctx context.Context, operation string, path string, body any) (core.AuthResult, error) {
	if e == nil || e.transport == nil {
		return core.AuthResult{}, endpointError("auth: endpoint is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return core.AuthResult{}, endpointWrapError(err, goerrors.CategoryInternal, "auth: encode "+operation+" request", http.StatusInternalServerError, nil)
	}
	headers := cloneHeaders(e.config.Headers)
	headers["Content-Type"] = "application/json"
	headers["Accept"] = "application/json"

	url := joinURL(e.config.BaseURL, path)
	resp, err := e.transport.Do(ctx, core.TransportRequest{
		Method:   http.MethodPost,
		URL:      url,
		Headers:  headers,
		Body:     payload,
		Timeout:  e.config.Timeout,
		Metadata: map[string]any{"operation": operation},
	})
	if err != nil {
		return core.AuthResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.AuthResult{}, statusError(operation, url, resp)
	}

	var decoded authResponseBody
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return core.AuthResult{}, endpointWrapError(err, goerrors.CategoryExternal, "auth: decode "+operation+" response", http.StatusBadGateway, map[string]any{
			"operation": operation,
		})
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return core.AuthResult{}, endpointError("auth: "+operation+" response carried no token", goerrors.CategoryExternal, http.StatusBadGateway, map[string]any{
			"operation": operation,
		})
	}
	return decoded.toResult(), nil
}

func (b authResponseBody) toResult() core.AuthResult {
	var lastLogin *time.Time
	if b.User.LastLogin != nil {
		value := b.User.LastLogin.UTC()
		lastLogin = &value
	}
	expiresAt := b.ExpiresAt
	if !expiresAt.IsZero() {
		expiresAt = expiresAt.UTC()
	}
	createdAt := b.User.CreatedAt
	if !createdAt.IsZero() {
		createdAt = createdAt.UTC()
	}
	return core.AuthResult{
		Credential: core.Credential{
			AccessToken:  strings.TrimSpace(b.Token),
			RefreshToken: strings.TrimSpace(b.RefreshToken),
			ExpiresAt:    expiresAt,
		},
		User: core.UserSnapshot{
			ID:        b.User.ID,
			Email:     b.User.Email,
			Name:      b.User.Name,
			CreatedAt: createdAt,
			LastLogin: lastLogin,
		},
	}
}

func statusError(operation string, url string, resp core.TransportResponse) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return core.NewAuthenticationFailure(url, resp.StatusCode)
	}
	message := "auth: " + operation + " failed"
	var decoded errorBody
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &decoded) == nil {
		if detail := firstNonEmpty(decoded.Message, decoded.Error); detail != "" {
			message = message + ": " + detail
		}
	}
	category := statusCategory(resp.StatusCode)
	return endpointError(message, category, resp.StatusCode, map[string]any{
		"operation":   operation,
		"url":         url,
		"status_code": resp.StatusCode,
	})
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return goerrors.CategoryValidation
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 500:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryOperation
	}
}
