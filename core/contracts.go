package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Credential is the access/refresh token pair issued by the remote API.
// Values are replaced wholesale; nothing mutates a stored credential in place.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.AccessToken) == "" &&
		strings.TrimSpace(c.RefreshToken) == "" &&
		c.ExpiresAt.IsZero()
}

// UserSnapshot is the identity returned alongside a credential.
type UserSnapshot struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	LastLogin *time.Time
}

func (u UserSnapshot) IsZero() bool {
	return strings.TrimSpace(u.ID) == "" && strings.TrimSpace(u.Email) == ""
}

// Session is the unit held by the credential store and persisted under a
// fixed key.
type Session struct {
	Credential Credential
	User       UserSnapshot
}

// SessionSnapshot is a read model of the current session state.
type SessionSnapshot struct {
	Authenticated bool
	LoggedIn      bool
	ExpiringSoon  bool
	ExpiresAt     *time.Time
	User          *UserSnapshot
}

type AuthResult struct {
	Credential Credential
	User       UserSnapshot
}

type LoginRequest struct {
	Email    string
	Password string
}

type RegisterRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	CPF             string
	Phone           string
}

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
	Timeout  time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

func (r TransportResponse) IsAuthenticationFailure() bool {
	return r.StatusCode == http.StatusUnauthorized
}

type Transport interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// AuthEndpoint talks to the remote authentication routes. Refresh is only
// ever invoked by the RefreshCoordinator.
type AuthEndpoint interface {
	Login(ctx context.Context, req LoginRequest) (AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (AuthResult, error)
	Refresh(ctx context.Context, cred Credential) (AuthResult, error)
}

// PersistedSession is the encoded form of a Session as written to durable
// storage.
type PersistedSession struct {
	Key            string
	Payload        []byte
	PayloadFormat  string
	PayloadVersion int
	ExpiresAt      time.Time
	UpdatedAt      time.Time
}

// SessionPersister is the durable storage behind the credential store.
// Delete must be idempotent. Load returns ErrSessionNotFound when nothing is
// stored under the key.
type SessionPersister interface {
	Save(ctx context.Context, record PersistedSession) error
	Load(ctx context.Context, key string) (PersistedSession, error)
	Delete(ctx context.Context, key string) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SessionListener is notified when a refresh failure terminates the session.
// Applications use it to route the user back to their login surface.
type SessionListener interface {
	OnSessionTerminated(ctx context.Context, cause error)
}

type SessionListenerFunc func(ctx context.Context, cause error)

func (f SessionListenerFunc) OnSessionTerminated(ctx context.Context, cause error) {
	if f != nil {
		f(ctx, cause)
	}
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type Signer interface {
	Sign(ctx context.Context, req *TransportRequest, cred Credential) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
