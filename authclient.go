package authclient

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-authclient/auth"
	"github.com/goliatone/go-authclient/core"
	"github.com/goliatone/go-authclient/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Credential = core.Credential
type UserSnapshot = core.UserSnapshot
type Session = core.Session
type SessionSnapshot = core.SessionSnapshot
type AuthResult = core.AuthResult
type LoginRequest = core.LoginRequest
type RegisterRequest = core.RegisterRequest
type TransportRequest = core.TransportRequest
type TransportResponse = core.TransportResponse
type SessionPersister = core.SessionPersister
type SessionListener = core.SessionListener
type SessionListenerFunc = core.SessionListenerFunc
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithSecretProvider   = core.WithSecretProvider
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithSessionPersister = core.WithSessionPersister
	WithCredentialCodec  = core.WithCredentialCodec
	WithSigner           = core.WithSigner
	WithTransport        = core.WithTransport
	WithAuthEndpoint     = core.WithAuthEndpoint
	WithSessionListener  = core.WithSessionListener
	WithJobEnqueuer      = core.WithJobEnqueuer
	WithClock            = core.WithClock
)

var (
	IsAuthenticationFailure = core.IsAuthenticationFailure
	IsRefreshFailure        = core.IsRefreshFailure
	IsTransportFailure      = core.IsTransportFailure
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a service from explicit collaborators. A transport and an
// auth endpoint must be supplied through options.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// New builds a service that talks to cfg.BaseURL over the REST transport and
// the HTTP auth endpoint. A nil client uses an http.Client with the adapter's
// default timeout. Options override the transport or the endpoint.
func New(cfg Config, client transport.HTTPDoer, opts ...Option) (*Service, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("authclient: base url is required")
	}
	rest := transport.NewRESTAdapter(client)
	endpoint, err := auth.NewHTTPEndpointFromConfig(rest, withDefaultRoutes(cfg))
	if err != nil {
		return nil, err
	}
	base := []Option{
		core.WithTransport(rest),
		core.WithAuthEndpoint(endpoint),
	}
	return core.NewService(cfg, append(base, opts...)...)
}

func withDefaultRoutes(cfg Config) Config {
	defaults := core.DefaultConfig()
	if strings.TrimSpace(cfg.Auth.LoginPath) == "" {
		cfg.Auth.LoginPath = defaults.Auth.LoginPath
	}
	if strings.TrimSpace(cfg.Auth.RegisterPath) == "" {
		cfg.Auth.RegisterPath = defaults.Auth.RegisterPath
	}
	if strings.TrimSpace(cfg.Auth.RefreshPath) == "" {
		cfg.Auth.RefreshPath = defaults.Auth.RefreshPath
	}
	if cfg.Refresh.Timeout <= 0 {
		cfg.Refresh.Timeout = defaults.Refresh.Timeout
	}
	return cfg
}
