package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"trace_id":      "trace_1",
		"request_id":    "req_1",
		"session_key":   "authclient.session",
		"access_token":  "secret-token",
		"authorization": "Bearer secret-token",
		"password":      "hunter2",
		"nested":        map[string]any{"refresh_token": "refresh", "trace_id": "trace_nested"},
		"events":        []any{map[string]any{"api_key": "key_1"}, map[string]any{"url": "https://api.example.com/me"}},
		"reason":        RefreshFailureReasonTimeout,
	})

	if redacted["trace_id"] != "trace_1" {
		t.Fatalf("expected trace_id to remain visible, got %#v", redacted["trace_id"])
	}
	if redacted["session_key"] != "authclient.session" {
		t.Fatalf("expected session_key to remain visible, got %#v", redacted["session_key"])
	}
	if redacted["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", redacted["access_token"])
	}
	if redacted["password"] != RedactedValue {
		t.Fatalf("expected password to be redacted, got %#v", redacted["password"])
	}
	if redacted["reason"] != RefreshFailureReasonTimeout {
		t.Fatalf("expected reason to remain visible, got %#v", redacted["reason"])
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["refresh_token"] != RedactedValue {
		t.Fatalf("expected nested refresh_token to be redacted, got %#v", nested["refresh_token"])
	}
	if nested["trace_id"] != "trace_nested" {
		t.Fatalf("expected nested trace_id to remain visible, got %#v", nested["trace_id"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected redacted events slice, got %#v", redacted["events"])
	}
	first, _ := events[0].(map[string]any)
	if first["api_key"] != RedactedValue {
		t.Fatalf("expected api_key inside slice to be redacted, got %#v", first["api_key"])
	}
}

func TestRedactSensitiveMapHandlesEmptyInput(t *testing.T) {
	if redacted := RedactSensitiveMap(nil); len(redacted) != 0 {
		t.Fatalf("expected empty map, got %#v", redacted)
	}
}

func TestRedactHeadersMasksCredentials(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer a1",
		"Set-Cookie":    "sid=1",
		"X-Request-ID":  "req_1",
		"Content-Type":  "application/json",
	}
	redacted := RedactHeaders(headers)
	if redacted["Authorization"] != RedactedValue || redacted["Set-Cookie"] != RedactedValue {
		t.Fatalf("expected credential headers to be masked, got %#v", redacted)
	}
	if redacted["X-Request-ID"] != "req_1" || redacted["Content-Type"] != "application/json" {
		t.Fatalf("expected plain headers to remain visible, got %#v", redacted)
	}
	if headers["Authorization"] != "Bearer a1" {
		t.Fatalf("expected source headers to be left untouched")
	}

	nested := RedactSensitiveMap(map[string]any{"headers": headers, "user_email": "ana@example.com"})
	if nested["headers"].(map[string]string)["Authorization"] != RedactedValue {
		t.Fatalf("expected nested header map to be redacted")
	}
	if nested["user_email"] != RedactedValue {
		t.Fatalf("expected email to be redacted")
	}
}
