package core

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_LoginSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, _, endpoint := newTestService(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	endpoint.loginResult = AuthResult{Credential: credential("a1", "r1", testEpoch.Add(time.Hour))}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	if !hasCounter(metrics.counters, "authclient.login.total", "success") {
		t.Fatalf("expected authclient.login.total success counter")
	}
	if !hasHistogram(metrics.histograms, "authclient.login.duration_ms", "success") {
		t.Fatalf("expected authclient.login.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "login succeeded", "login") {
		t.Fatalf("expected login succeeded structured log")
	}
}

func TestServiceObservability_RefreshFailureCarriesReason(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, _, endpoint := newTestService(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	endpoint.refreshErr = goerrors.New("refresh rejected", goerrors.CategoryAuth)
	svc.Store().Set(context.Background(), credential("a1", "r1", testEpoch))

	if _, err := svc.RefreshNow(context.Background()); !IsRefreshFailure(err) {
		t.Fatalf("expected refresh failure, got %v", err)
	}

	found := false
	for _, counter := range metrics.counters {
		if counter.name == "authclient.refresh.total" && counter.tags["status"] == "failure" && counter.tags["reason"] == RefreshFailureReasonRejected {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected refresh failure counter tagged with reason, got %#v", metrics.counters)
	}
	if !hasLog(logger.snapshot(), "error", "refresh failed", "refresh") {
		t.Fatalf("expected refresh failure log")
	}
}

func TestObserver_EnrichesStructuredErrorFields(t *testing.T) {
	logger := newCaptureLogger()
	obs := observer{logger: logger, metrics: &captureMetricsRecorder{}}

	richErr := goerrors.New("upstream timeout", goerrors.CategoryExternal).
		WithCode(502).
		WithTextCode(ServiceErrorTransportFailed).
		WithMetadata(map[string]any{
			"trace_id":      "trace_123",
			"request_id":    "req_123",
			"refresh_token": "secret_refresh_token",
		})
	obs.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"dispatch",
		richErr,
		map[string]any{"url": "https://api.example.com/goals", "password": "hunter2"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_text_code"] != ServiceErrorTransportFailed {
		t.Fatalf("expected error_text_code %q, got %#v", ServiceErrorTransportFailed, last.fields["error_text_code"])
	}
	if last.fields["error_code"] != 502 {
		t.Fatalf("expected error_code 502, got %#v", last.fields["error_code"])
	}
	if last.fields["password"] != RedactedValue {
		t.Fatalf("expected password field redacted, got %#v", last.fields["password"])
	}
	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["refresh_token"] != RedactedValue {
		t.Fatalf("expected refresh_token to be redacted, got %#v", metadata["refresh_token"])
	}
	if metadata["trace_id"] != "trace_123" {
		t.Fatalf("expected trace_id to remain visible, got %#v", metadata["trace_id"])
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
