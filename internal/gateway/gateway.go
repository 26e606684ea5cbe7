// Package gateway issues the HTTP calls to the local Ollama daemon and maps
// every failure onto a core.GatewayError.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ollamagate/internal/core"

	"github.com/bytedance/sonic"
)

var errInvalidTagList = errors.New("decode tag list: invalid JSON shape")

// Config gateway configuration
type Config struct {
	BaseURL         string
	GenerateTimeout time.Duration
	TagsTimeout     time.Duration
	HTTPClient      *http.Client
	Metrics         core.MetricsCollector
	Logger          core.Logger

	// MaxResponseBytes caps a daemon response body. Zero means core.MaxResponseBodySize.
	MaxResponseBytes int64
}

// Gateway talks to a single daemon instance. It holds no per-call state and
// is safe for concurrent use.
type Gateway struct {
	baseURL         string
	generateTimeout time.Duration
	tagsTimeout     time.Duration
	httpClient      *http.Client
	metrics         core.MetricsCollector
	logger          core.Logger
	maxRespBytes    int64
}

// GenerateResult is a successful generation response.
type GenerateResult struct {
	Status int
	Body   []byte
}

// New creates a gateway, filling unset fields with defaults.
func New(cfg Config) (*Gateway, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = core.DefaultOllamaBaseURL
	}
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}

	g := &Gateway{
		baseURL:         strings.TrimRight(baseURL, "/"),
		generateTimeout: cfg.GenerateTimeout,
		tagsTimeout:     cfg.TagsTimeout,
		httpClient:      cfg.HTTPClient,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		maxRespBytes:    cfg.MaxResponseBytes,
	}
	if g.maxRespBytes <= 0 {
		g.maxRespBytes = core.MaxResponseBodySize
	}
	if g.generateTimeout <= 0 {
		g.generateTimeout = core.DefaultGenerateTimeout
	}
	if g.tagsTimeout <= 0 {
		g.tagsTimeout = core.DefaultTagsTimeout
	}
	if g.httpClient == nil {
		g.httpClient = NewHTTPClient()
	}
	if g.metrics == nil {
		g.metrics = &core.NopMetrics{}
	}
	if g.logger == nil {
		g.logger = &core.NopLogger{}
	}
	return g, nil
}

// ValidateBaseURL checks that s is an absolute http(s) URL.
func ValidateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid ollama base URL %q: %w", s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid ollama base URL %q: expected http(s)://host[:port]", s)
	}
	return nil
}

// NewHTTPClient returns the client used when none is injected. Deadlines are
// applied per call through the request context, so the client has no Timeout.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost:   core.HTTPMaxIdleConnsPerHost,
		IdleConnTimeout:       core.HTTPIdleConnTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
	}
	return &http.Client{Transport: transport}
}

// BaseURL returns the daemon base URL without a trailing slash.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// ForwardGenerate posts body unmodified to the daemon's generate endpoint.
func (g *Gateway) ForwardGenerate(ctx context.Context, body []byte) (*GenerateResult, error) {
	start := time.Now()

	status, respBody, err := g.do(ctx, core.OperationGenerate, http.MethodPost, core.OllamaGeneratePath, body, g.generateTimeout)
	if err != nil {
		return nil, g.fail(err, start)
	}

	if !sonic.Valid(respBody) {
		return nil, g.fail(&core.GatewayError{
			Kind:      core.KindMalformedResponse,
			Operation: core.OperationGenerate,
			Cause:     fmt.Errorf("response body is not valid JSON (%d bytes)", len(respBody)),
		}, start)
	}

	g.metrics.RecordUpstreamCall(core.OperationGenerate, core.OutcomeSuccess, time.Since(start))
	return &GenerateResult{Status: status, Body: respBody}, nil
}

// ListTags fetches the installed models from the daemon.
func (g *Gateway) ListTags(ctx context.Context) (*core.TagList, error) {
	start := time.Now()

	_, respBody, err := g.do(ctx, core.OperationTags, http.MethodGet, core.OllamaTagsPath, nil, g.tagsTimeout)
	if err != nil {
		return nil, g.fail(err, start)
	}

	tags, err := g.decodeTagList(respBody)
	if err != nil {
		return nil, g.fail(&core.GatewayError{
			Kind:      core.KindMalformedResponse,
			Operation: core.OperationTags,
			Cause:     err,
		}, start)
	}

	g.metrics.RecordUpstreamCall(core.OperationTags, core.OutcomeSuccess, time.Since(start))
	return tags, nil
}

func (g *Gateway) decodeTagList(body []byte) (*core.TagList, error) {
	var tags core.TagList
	if err := sonic.Unmarshal(body, &tags); err != nil {
		g.logger.Debug("Ollama tags decode error: %v", err)
		return nil, errInvalidTagList
	}
	for i, m := range tags.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("decode tag list: model at index %d has no name", i)
		}
	}
	if tags.Models == nil {
		tags.Models = []core.ModelDescriptor{}
	}
	tags.Raw = body
	return &tags, nil
}

// do performs one bounded round trip and returns the body of a 2xx response.
func (g *Gateway) do(ctx context.Context, op, method, path string, body []byte, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, nil, &core.GatewayError{Kind: core.KindUnreachable, Operation: op, Cause: err}
	}
	if body != nil {
		req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, &core.GatewayError{Kind: core.KindUnreachable, Operation: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, g.maxRespBytes+1))
	if err != nil {
		return 0, nil, &core.GatewayError{Kind: core.KindUnreachable, Operation: op, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Debug("Ollama %s error body: %s", op, truncate(respBody, 512))
		return resp.StatusCode, nil, &core.GatewayError{Kind: core.KindUpstreamRejected, Operation: op, Status: resp.StatusCode}
	}

	if int64(len(respBody)) > g.maxRespBytes {
		return 0, nil, &core.GatewayError{
			Kind:      core.KindMalformedResponse,
			Operation: op,
			Cause:     fmt.Errorf("response exceeds %d bytes", g.maxRespBytes),
		}
	}

	return resp.StatusCode, respBody, nil
}

// fail logs and records a failed call, then returns err unchanged.
func (g *Gateway) fail(err error, start time.Time) error {
	gwErr, ok := err.(*core.GatewayError)
	if !ok {
		return err
	}
	g.metrics.RecordUpstreamCall(gwErr.Operation, gwErr.Kind.String(), time.Since(start))
	if gwErr.Kind == core.KindUpstreamRejected {
		g.logger.Warn("Error calling Ollama %s: %v", gwErr.Operation, gwErr)
	} else {
		g.logger.Error("Error calling Ollama %s: %v", gwErr.Operation, gwErr)
	}
	return gwErr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
