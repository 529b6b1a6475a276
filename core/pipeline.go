package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type PipelineOptions struct {
	Store       *CredentialStore
	Coordinator *RefreshCoordinator
	Transport   Transport
	// Classifier defaults to DefaultRouteClassifier when zero.
	Classifier  RouteClassifier
	Signer      Signer
	BaseURL     string
	Logger      Logger
	Metrics     MetricsRecorder
}

// Pipeline is the single entry point for outgoing API calls. It attaches the
// stored credential, and on a 401 refreshes through the coordinator and
// resends the request once.
type Pipeline struct {
	store       *CredentialStore
	coordinator *RefreshCoordinator
	transport   Transport
	classifier  RouteClassifier
	signer      Signer
	baseURL     *url.URL
	observer    observer
}

func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("core: pipeline requires a credential store")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("core: pipeline requires a refresh coordinator")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("core: pipeline requires a transport")
	}
	signer := opts.Signer
	if signer == nil {
		signer = BearerTokenSigner{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	classifier := opts.Classifier
	if classifier.IsZero() {
		classifier = DefaultRouteClassifier()
	}
	var base *url.URL
	if raw := strings.TrimSpace(opts.BaseURL); raw != "" {
		parsed, err := url.Parse(ensureTrailingSlash(raw))
		if err != nil {
			return nil, fmt.Errorf("core: invalid base url: %w", err)
		}
		base = parsed
	}
	return &Pipeline{
		store:       opts.Store,
		coordinator: opts.Coordinator,
		transport:   opts.Transport,
		classifier:  classifier,
		signer:      signer,
		baseURL:     base,
		observer: observer{
			logger:  glog.Ensure(opts.Logger),
			metrics: metrics,
		},
	}, nil
}

// Dispatch sends req through the transport. Transport errors are returned
// untouched. A 401 that cannot be recovered is returned together with an
// authentication failure error; a failed refresh returns the refresh failure
// and no response.
func (p *Pipeline) Dispatch(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	if p == nil {
		return TransportResponse{}, fmt.Errorf("core: pipeline is nil")
	}
	ctx = contextOrBackground(ctx)
	startedAt := time.Now().UTC()

	req.URL = p.ResolveURL(req.URL)
	class := p.classifier.Classify(req.URL)
	fields := map[string]any{
		"method":      strings.ToUpper(strings.TrimSpace(req.Method)),
		"url":         req.URL,
		"route_class": class.String(),
	}

	var (
		cred     Credential
		attached bool
	)
	if class == RouteCredentialRequired {
		cred, attached = p.store.Current()
	}

	resp, err := p.send(ctx, req, cred, attached)
	if err != nil {
		p.observer.observeOperation(ctx, startedAt, "dispatch", err, fields)
		return resp, err
	}
	if !resp.IsAuthenticationFailure() {
		fields["status_code"] = resp.StatusCode
		p.observer.observeOperation(ctx, startedAt, "dispatch", nil, fields)
		return resp, nil
	}
	if !attached {
		err = NewAuthenticationFailure(req.URL, resp.StatusCode)
		p.observer.observeOperation(ctx, startedAt, "dispatch", err, fields)
		return resp, err
	}

	fresh, err := p.coordinator.ObtainFreshCredentialFor(ctx, cred.AccessToken)
	if err != nil {
		p.observer.observeOperation(ctx, startedAt, "dispatch", err, fields)
		return TransportResponse{}, err
	}

	p.observer.recordCounter(ctx, MetricDispatchResent, 1, map[string]string{"route_class": class.String()})
	fields["resent"] = true
	resp, err = p.send(ctx, req, fresh, true)
	if err != nil {
		p.observer.observeOperation(ctx, startedAt, "dispatch", err, fields)
		return resp, err
	}
	fields["status_code"] = resp.StatusCode
	if resp.IsAuthenticationFailure() {
		err = NewAuthenticationFailure(req.URL, resp.StatusCode)
		p.observer.observeOperation(ctx, startedAt, "dispatch", err, fields)
		return resp, err
	}
	p.observer.observeOperation(ctx, startedAt, "dispatch", nil, fields)
	return resp, nil
}

// send signs a private copy of req so the caller's request is never modified
// and the resend starts from the original.
func (p *Pipeline) send(ctx context.Context, req TransportRequest, cred Credential, sign bool) (TransportResponse, error) {
	outgoing := cloneTransportRequest(req)
	if sign {
		if err := p.signer.Sign(ctx, &outgoing, cred); err != nil {
			return TransportResponse{}, err
		}
	}
	return p.transport.Do(ctx, outgoing)
}

// ResolveURL resolves a relative request URL against the configured base URL.
func (p *Pipeline) ResolveURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if p == nil || p.baseURL == nil || rawURL == "" {
		return rawURL
	}
	ref, err := url.Parse(rawURL)
	if err != nil || ref.IsAbs() {
		return rawURL
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return p.baseURL.ResolveReference(ref).String()
}

func cloneTransportRequest(req TransportRequest) TransportRequest {
	out := req
	out.Headers = cloneStringMap(req.Headers)
	out.Query = cloneStringMap(req.Query)
	if req.Body != nil {
		out.Body = append([]byte(nil), req.Body...)
	}
	if req.Metadata != nil {
		out.Metadata = cloneFields(req.Metadata)
	}
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func ensureTrailingSlash(value string) string {
	if strings.HasSuffix(value, "/") {
		return value
	}
	return value + "/"
}
