package core

import (
	"net/url"
	"strings"
)

type RouteClass int

const (
	RouteCredentialRequired RouteClass = iota
	RouteCredentialExempt
)

func (c RouteClass) String() string {
	switch c {
	case RouteCredentialExempt:
		return "credential_exempt"
	default:
		return "credential_required"
	}
}

// RouteClassifier decides from a request URL whether a credential is
// attached. Exempt routes never carry a credential and a 401 on them never
// triggers a refresh. Logout is deliberately not exempt.
type RouteClassifier struct {
	exempt [][]string
}

func NewRouteClassifier(exemptSuffixes ...string) RouteClassifier {
	classifier := RouteClassifier{}
	for _, suffix := range exemptSuffixes {
		segments := splitPath(suffix)
		if len(segments) == 0 {
			continue
		}
		classifier.exempt = append(classifier.exempt, segments)
	}
	return classifier
}

// NewRouteClassifierFromConfig exempts the login, register and refresh routes.
func NewRouteClassifierFromConfig(cfg AuthRoutesConfig) RouteClassifier {
	return NewRouteClassifier(cfg.LoginPath, cfg.RegisterPath, cfg.RefreshPath)
}

func DefaultRouteClassifier() RouteClassifier {
	return NewRouteClassifier(DefaultLoginPath, DefaultRegisterPath, DefaultRefreshPath)
}

// IsZero reports whether the classifier exempts no routes.
func (c RouteClassifier) IsZero() bool {
	return len(c.exempt) == 0
}

func (c RouteClassifier) Classify(rawURL string) RouteClass {
	segments := splitPath(requestPath(rawURL))
	for _, suffix := range c.exempt {
		if hasSegmentSuffix(segments, suffix) {
			return RouteCredentialExempt
		}
	}
	return RouteCredentialRequired
}

func requestPath(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if parsed, err := url.Parse(rawURL); err == nil {
		return parsed.Path
	}
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}

func splitPath(path string) []string {
	parts := strings.Split(strings.TrimSpace(path), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, strings.ToLower(part))
	}
	return segments
}

func hasSegmentSuffix(segments []string, suffix []string) bool {
	if len(suffix) == 0 || len(suffix) > len(segments) {
		return false
	}
	offset := len(segments) - len(suffix)
	for i, segment := range suffix {
		if segments[offset+i] != segment {
			return false
		}
	}
	return true
}
