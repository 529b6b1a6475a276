package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

// tokenTransport answers 200 for accepted bearer tokens and 401 otherwise,
// recording every request it receives.
type tokenTransport struct {
	mu       sync.Mutex
	accepted map[string]bool
	requests []TransportRequest
	err      error
	// always401 rejects every credential-bearing request.
	always401 bool
}

func newTokenTransport(accepted ...string) *tokenTransport {
	transport := &tokenTransport{accepted: map[string]bool{}}
	for _, token := range accepted {
		transport.accepted[token] = true
	}
	return transport
}

func (t *tokenTransport) accept(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepted[token] = true
}

func (t *tokenTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, cloneTransportRequest(req))
	err := t.err
	accepted := t.accepted
	always401 := t.always401
	t.mu.Unlock()

	if err != nil {
		return TransportResponse{}, err
	}
	token := bearerToken(req)
	if token == "" {
		if strings.Contains(req.URL, "/private") {
			return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
		}
		return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
	}
	if always401 || !accepted[token] {
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	}
	return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
}

func (t *tokenTransport) snapshot() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransportRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

func (t *tokenTransport) countToken(token string) int {
	count := 0
	for _, req := range t.snapshot() {
		if bearerToken(req) == token {
			count++
		}
	}
	return count
}

func bearerToken(req TransportRequest) string {
	for key, value := range req.Headers {
		if strings.EqualFold(key, AuthorizationHeader) {
			return strings.TrimPrefix(value, "Bearer ")
		}
	}
	return ""
}

// stubAuthEndpoint issues the configured credential. When gate is set,
// Refresh blocks until the gate is closed or the context ends.
type stubAuthEndpoint struct {
	mu           sync.Mutex
	refreshCalls atomic.Int32
	gate         chan struct{}
	refreshed    AuthResult
	refreshErr   error
	loginResult  AuthResult
	loginErr     error
	lastRefresh  Credential
	lastLogin    LoginRequest
	lastRegister RegisterRequest
	onRefresh    func(Credential)
}

func (e *stubAuthEndpoint) Login(_ context.Context, req LoginRequest) (AuthResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastLogin = req
	return e.loginResult, e.loginErr
}

func (e *stubAuthEndpoint) Register(_ context.Context, req RegisterRequest) (AuthResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRegister = req
	return e.loginResult, e.loginErr
}

func (e *stubAuthEndpoint) Refresh(ctx context.Context, cred Credential) (AuthResult, error) {
	e.refreshCalls.Add(1)
	e.mu.Lock()
	e.lastRefresh = cred
	gate := e.gate
	onRefresh := e.onRefresh
	e.mu.Unlock()

	if onRefresh != nil {
		onRefresh(cred)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return AuthResult{}, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshed, e.refreshErr
}

type recordingListener struct {
	mu     sync.Mutex
	causes []error
}

func (l *recordingListener) OnSessionTerminated(_ context.Context, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.causes = append(l.causes, cause)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.causes)
}

type failingPersister struct{}

func (failingPersister) Save(context.Context, PersistedSession) error {
	return errors.New("disk full")
}

func (failingPersister) Load(context.Context, string) (PersistedSession, error) {
	return PersistedSession{}, ErrSessionNotFound
}

func (failingPersister) Delete(context.Context, string) error {
	return errors.New("disk full")
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func credential(access, refresh string, expiresAt time.Time) Credential {
	return Credential{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
}

type coordinatorFixture struct {
	store       *CredentialStore
	endpoint    *stubAuthEndpoint
	listener    *recordingListener
	coordinator *RefreshCoordinator
}

func newCoordinatorFixture(t *testing.T, timeout time.Duration) coordinatorFixture {
	t.Helper()
	store := NewCredentialStore(CredentialStoreOptions{})
	endpoint := &stubAuthEndpoint{}
	listener := &recordingListener{}
	coordinator, err := NewRefreshCoordinator(RefreshCoordinatorOptions{
		Store:     store,
		Refresher: endpoint,
		Timeout:   timeout,
		Listener:  listener,
	})
	if err != nil {
		t.Fatalf("new refresh coordinator: %v", err)
	}
	return coordinatorFixture{
		store:       store,
		endpoint:    endpoint,
		listener:    listener,
		coordinator: coordinator,
	}
}

type pipelineFixture struct {
	coordinatorFixture
	transport *tokenTransport
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, baseURL string) pipelineFixture {
	t.Helper()
	base := newCoordinatorFixture(t, time.Second)
	transport := newTokenTransport()
	pipeline, err := NewPipeline(PipelineOptions{
		Store:       base.store,
		Coordinator: base.coordinator,
		Transport:   transport,
		Classifier:  DefaultRouteClassifier(),
		BaseURL:     baseURL,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return pipelineFixture{coordinatorFixture: base, transport: transport, pipeline: pipeline}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *tokenTransport, *stubAuthEndpoint) {
	t.Helper()
	transport := newTokenTransport()
	endpoint := &stubAuthEndpoint{}
	base := []Option{
		WithTransport(transport),
		WithAuthEndpoint(endpoint),
		WithClock(fixedClock(testEpoch)),
	}
	svc, err := NewService(Config{BaseURL: "https://api.example.com/v1"}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, transport, endpoint
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
