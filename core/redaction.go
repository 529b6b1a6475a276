package core

import "strings"

const RedactedValue = "[REDACTED]"

// sensitiveKeyParts marks a field as secret when any part appears in its
// lowercased key.
var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"api_key",
	"apikey",
	"credential",
	"signature",
	"email",
	"cpf",
	"phone",
}

// traceableKeys stay visible even when they contain a sensitive part.
var traceableKeys = map[string]struct{}{
	"session_key":     {},
	"job_id":          {},
	"idempotency_key": {},
	"trace_id":        {},
	"request_id":      {},
	"token_state":     {},
	"token_type":      {},
}

// RedactSensitiveMap returns a copy of metadata with secret values replaced
// by RedactedValue. Nested maps, slices and string maps are walked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactMap(metadata)
}

// RedactHeaders copies headers and masks credential-bearing values.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if isSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func redactMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if isSensitiveKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case map[string]string:
		return RedactHeaders(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceableKeys[key]; ok {
		return false
	}
	key = strings.ReplaceAll(key, "-", "_")
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
