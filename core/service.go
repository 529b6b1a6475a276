package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service owns one client session: the credential store, the refresh
// coordinator and the pipeline every outgoing call goes through.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	secretProvider  SecretProvider
	persister       SessionPersister
	credentialCodec CredentialCodec
	signer          Signer
	transport       Transport
	authEndpoint    AuthEndpoint
	sessionListener SessionListener
	jobEnqueuer     JobEnqueuer
	now             func() time.Time

	observer    observer
	store       *CredentialStore
	coordinator *RefreshCoordinator
	pipeline    *Pipeline
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	SecretProvider  SecretProvider
	Persister       SessionPersister
	CredentialCodec CredentialCodec
	Signer          Signer
	Transport       Transport
	AuthEndpoint    AuthEndpoint
	SessionListener SessionListener
	JobEnqueuer     JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authclient", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authclient"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.credentialCodec == nil {
		builder.credentialCodec = JSONCredentialCodec{}
	}
	if builder.signer == nil {
		builder.signer = BearerTokenSigner{}
	}
	if builder.persister == nil {
		builder.persister = NewMemorySessionPersister()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transport is required"))
	}
	if builder.authEndpoint == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: auth endpoint is required"))
	}

	store := NewCredentialStore(CredentialStoreOptions{
		Key:            finalConfig.Storage.SessionKey,
		Persister:      builder.persister,
		Codec:          builder.credentialCodec,
		SecretProvider: builder.secretProvider,
		Logger:         logger,
		Metrics:        builder.metricsRecorder,
		Now:            builder.now,
	})
	coordinator, err := NewRefreshCoordinator(RefreshCoordinatorOptions{
		Store:     store,
		Refresher: builder.authEndpoint,
		Timeout:   finalConfig.Refresh.Timeout,
		Listener:  builder.sessionListener,
		Logger:    logger,
		Metrics:   builder.metricsRecorder,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	pipeline, err := NewPipeline(PipelineOptions{
		Store:       store,
		Coordinator: coordinator,
		Transport:   builder.transport,
		Classifier:  NewRouteClassifierFromConfig(finalConfig.Auth),
		Signer:      builder.signer,
		BaseURL:     finalConfig.BaseURL,
		Logger:      logger,
		Metrics:     builder.metricsRecorder,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		secretProvider:  builder.secretProvider,
		persister:       builder.persister,
		credentialCodec: builder.credentialCodec,
		signer:          builder.signer,
		transport:       builder.transport,
		authEndpoint:    builder.authEndpoint,
		sessionListener: builder.sessionListener,
		jobEnqueuer:     builder.jobEnqueuer,
		now:             builder.now,
		observer: observer{
			logger:  logger,
			metrics: builder.metricsRecorder,
		},
		store:       store,
		coordinator: coordinator,
		pipeline:    pipeline,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		SecretProvider:  s.secretProvider,
		Persister:       s.persister,
		CredentialCodec: s.credentialCodec,
		Signer:          s.signer,
		Transport:       s.transport,
		AuthEndpoint:    s.authEndpoint,
		SessionListener: s.sessionListener,
		JobEnqueuer:     s.jobEnqueuer,
	}
}

func (s *Service) Store() *CredentialStore {
	if s == nil {
		return nil
	}
	return s.store
}

func (s *Service) Coordinator() *RefreshCoordinator {
	if s == nil {
		return nil
	}
	return s.coordinator
}

func (s *Service) Pipeline() *Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

// Dispatch sends an API request through the authenticated pipeline.
func (s *Service) Dispatch(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	if s == nil {
		return TransportResponse{}, fmt.Errorf("core: service is nil")
	}
	return s.pipeline.Dispatch(ctx, req)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (result AuthResult, err error) {
	if s == nil {
		return AuthResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "login", err, nil)
	}()

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		err = s.mapError(fmt.Errorf("core: email and password are required"))
		return AuthResult{}, err
	}
	result, err = s.authEndpoint.Login(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return AuthResult{}, err
	}
	if err = s.acceptAuthResult(ctx, result); err != nil {
		return AuthResult{}, err
	}
	return result, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (result AuthResult, err error) {
	if s == nil {
		return AuthResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "register", err, nil)
	}()

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		err = s.mapError(fmt.Errorf("core: email, password and name are required"))
		return AuthResult{}, err
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		err = s.mapError(fmt.Errorf("core: password confirmation mismatch"))
		return AuthResult{}, err
	}
	result, err = s.authEndpoint.Register(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return AuthResult{}, err
	}
	if err = s.acceptAuthResult(ctx, result); err != nil {
		return AuthResult{}, err
	}
	return result, nil
}

func (s *Service) acceptAuthResult(ctx context.Context, result AuthResult) error {
	if strings.TrimSpace(result.Credential.AccessToken) == "" {
		return s.mapError(fmt.Errorf("core: auth response is missing an access token: invalid response"))
	}
	s.store.SetSession(ctx, Session{Credential: result.Credential, User: result.User})
	return nil
}

// Logout notifies the remote API and clears the local session. The local
// session is cleared even when the remote call fails.
func (s *Service) Logout(ctx context.Context) (err error) {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "logout", err, fields)
	}()

	if _, ok := s.store.Current(); ok {
		_, remoteErr := s.pipeline.Dispatch(ctx, TransportRequest{
			Method:  http.MethodPost,
			URL:     s.config.Auth.LogoutPath,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    []byte("{}"),
		})
		if remoteErr != nil {
			fields["remote_error"] = remoteErr.Error()
		}
	}
	s.store.Clear(ctx)
	return nil
}

func (s *Service) CurrentUser() (UserSnapshot, bool) {
	if s == nil {
		return UserSnapshot{}, false
	}
	session, ok := s.store.Session()
	if !ok || session.User.IsZero() {
		return UserSnapshot{}, false
	}
	return session.User, true
}

// IsLoggedIn reports whether a credential exists and has not expired.
func (s *Service) IsLoggedIn() bool {
	if s == nil {
		return false
	}
	return s.store.IsValid(s.now())
}

// IsTokenExpiringSoon is false when no credential is stored.
func (s *Service) IsTokenExpiringSoon() bool {
	if s == nil {
		return false
	}
	return s.store.ExpiringSoon(s.now(), s.expiringSoonWindow())
}

func (s *Service) SessionSnapshot() SessionSnapshot {
	if s == nil {
		return SessionSnapshot{}
	}
	session, ok := s.store.Session()
	if !ok {
		return SessionSnapshot{}
	}
	now := s.now()
	state := ResolveCredentialTokenState(now, session.Credential, s.expiringSoonWindow())
	snapshot := SessionSnapshot{
		Authenticated: true,
		LoggedIn:      !state.IsExpired && state.ExpiresAt != nil,
		ExpiringSoon:  state.IsExpiringSoon,
		ExpiresAt:     state.ExpiresAt,
	}
	if !session.User.IsZero() {
		user := session.User
		user.LastLogin = cloneTimePointer(session.User.LastLogin)
		snapshot.User = &user
	}
	return snapshot
}

// RefreshNow forces a refresh through the coordinator, joining one that is
// already in flight.
func (s *Service) RefreshNow(ctx context.Context) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: service is nil")
	}
	return s.coordinator.ObtainFreshCredential(ctx)
}

// Restore loads the persisted session, typically once at startup.
func (s *Service) Restore(ctx context.Context) (err error) {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "restore", err, map[string]any{
			"session_key": s.store.Key(),
		})
	}()
	if err = s.store.Restore(ctx); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) expiringSoonWindow() time.Duration {
	if s.config.Refresh.ExpiringSoonWindow > 0 {
		return s.config.Refresh.ExpiringSoonWindow
	}
	return DefaultExpiringSoonWindow
}

func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	s.observer.observeOperation(contextOrBackground(ctx), startedAt, operation, err, fields)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
