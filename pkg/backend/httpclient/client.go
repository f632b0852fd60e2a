// Package httpclient implements backend.Backend over JSON and HTTP using the
// URL layout of app backends: layout resources under /api, instance data
// under /instances and stateless data under /v1/data.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

// CorrelationHeader carries a per-request id.
const CorrelationHeader = "X-Correlation-ID"

const (
	defaultUserAgent = "formruntime/0.1"
	defaultTimeout   = 30 * time.Second
)

var (
	_ backend.Backend      = (*Client)(nil)
	_ backend.Bootstrapper = (*Client)(nil)
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithKinds sets the component kind registry used to parse layouts.
func WithKinds(kinds *layout.Kinds) Option {
	return func(c *Client) {
		if kinds != nil {
			c.kinds = kinds
		}
	}
}

// Client talks to an app backend.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
	kinds     *layout.Kinds
}

// New builds a Client rooted at baseURL (scheme://host/org/app).
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.kinds == nil {
		c.kinds = layout.NewKinds()
	}
	return c, nil
}

// FetchApplicationMetadata implements backend.Bootstrapper.
func (c *Client) FetchApplicationMetadata(ctx context.Context) (layout.AppMetadata, error) {
	var app layout.AppMetadata
	err := c.doJSON(ctx, call{op: "fetchApplicationMetadata", method: http.MethodGet, path: "/api/v1/applicationmetadata"}, &app)
	return app, err
}

// FetchInstance implements backend.Bootstrapper.
func (c *Client) FetchInstance(ctx context.Context, instanceID string) (*layout.Instance, error) {
	var inst layout.Instance
	if err := c.doJSON(ctx, call{op: "fetchInstance", method: http.MethodGet, path: "/instances/" + instanceID}, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// FetchLayoutSets implements backend.Backend.
func (c *Client) FetchLayoutSets(ctx context.Context) (*layout.LayoutSets, error) {
	var sets layout.LayoutSets
	if err := c.doJSON(ctx, call{op: backend.OpFetchLayoutSets, method: http.MethodGet, path: "/api/layoutsets"}, &sets); err != nil {
		return nil, err
	}
	return &sets, nil
}

// FetchLayout implements backend.Backend.
func (c *Client) FetchLayout(ctx context.Context, layoutSetID string) (layout.Bundle, error) {
	path := "/api/resource/FormLayout.json"
	if layoutSetID != "" {
		path = "/api/layouts/" + url.PathEscape(layoutSetID)
	}
	raw, err := c.doRaw(ctx, call{op: backend.OpFetchLayout, method: http.MethodGet, path: path})
	if err != nil {
		return layout.Bundle{}, err
	}
	bundle, err := layout.ParseBundle(raw, c.kinds)
	if err != nil {
		return layout.Bundle{}, &backend.Error{Kind: backend.KindClient, Op: backend.OpFetchLayout, Err: err}
	}
	return bundle, nil
}

// FetchLayoutSettings implements backend.Backend.
func (c *Client) FetchLayoutSettings(ctx context.Context, layoutSetID string) (*layout.Settings, error) {
	path := "/api/layoutsettings"
	if layoutSetID != "" {
		path += "/" + url.PathEscape(layoutSetID)
	}
	var settings layout.Settings
	if err := c.doJSON(ctx, call{op: backend.OpFetchLayoutSettings, method: http.MethodGet, path: path}, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// FetchFormData implements backend.Backend.
func (c *Client) FetchFormData(ctx context.Context, key backend.DataKey) (any, error) {
	req, err := dataCall(backend.OpFetchFormData, http.MethodGet, key)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := c.doJSON(ctx, req, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type saveResponse struct {
	Validations []validation.Issue `json:"validations"`
}

// SaveFormData implements backend.Backend. Instance data is replaced with
// PUT; stateless data is posted for recalculation.
func (c *Client) SaveFormData(ctx context.Context, key backend.DataKey, doc map[string]any) ([]validation.Issue, error) {
	method := http.MethodPut
	if key.Stateless() {
		method = http.MethodPost
	}
	req, err := dataCall(backend.OpSaveFormData, method, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	req.body = doc
	var resp saveResponse
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Validations, nil
}

// FetchOptions implements backend.Backend.
func (c *Client) FetchOptions(ctx context.Context, optionsID string, params map[string]string) ([]options.Option, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	var opts []options.Option
	req := call{op: backend.OpFetchOptions, method: http.MethodGet, path: "/api/options/" + url.PathEscape(optionsID), query: values}
	if err := c.doJSON(ctx, req, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// ValidateInstance implements backend.Backend.
func (c *Client) ValidateInstance(ctx context.Context, instanceID string) ([]validation.Issue, error) {
	var issues []validation.Issue
	req := call{op: backend.OpValidateInstance, method: http.MethodGet, path: "/instances/" + instanceID + "/validate"}
	if err := c.doJSON(ctx, req, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// CompleteProcessTask implements backend.Backend.
func (c *Client) CompleteProcessTask(ctx context.Context, instanceID, taskID string) error {
	values := url.Values{}
	if taskID != "" {
		values.Set("elementId", taskID)
	}
	req := call{op: backend.OpCompleteProcessTask, method: http.MethodPut, path: "/instances/" + instanceID + "/process/next", query: values}
	return c.doJSON(ctx, req, nil)
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
}

func dataCall(op, method string, key backend.DataKey) (call, error) {
	if err := key.Validate(); err != nil {
		return call{}, &backend.Error{Kind: backend.KindClient, Op: op, Err: err}
	}
	if !key.Stateless() {
		return call{op: op, method: method, path: "/instances/" + key.InstanceID + "/data/" + url.PathEscape(key.DataElementID)}, nil
	}
	values := url.Values{}
	values.Set("dataType", key.DataType)
	if key.AllowAnonymous || key.PartyID == "" {
		return call{op: op, method: method, path: "/v1/data/anonymous", query: values}, nil
	}
	header := http.Header{}
	header.Set("party", "partyid:"+key.PartyID)
	return call{op: op, method: method, path: "/v1/data", query: values, header: header}, nil
}

func (c *Client) doJSON(ctx context.Context, req call, dest any) error {
	raw, err := c.doRaw(ctx, req)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &backend.Error{Kind: backend.KindClient, Op: req.op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, req call) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("httpclient: client is nil")
	}
	rel := &url.URL{Path: strings.TrimSuffix(c.baseURL.Path, "/") + req.path}
	if len(req.query) > 0 {
		rel.RawQuery = req.query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, &backend.Error{Kind: backend.KindClient, Op: req.op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL.String(), body)
	if err != nil {
		return nil, &backend.Error{Kind: backend.KindClient, Op: req.op, Err: fmt.Errorf("create request: %w", err)}
	}
	correlation := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(CorrelationHeader, correlation)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("httpclient: request failed", "op", req.op, "url", reqURL.String(), "correlation", correlation, "error", err)
		return nil, backend.TransportError(req.op, fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.TransportError(req.op, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("httpclient: request", "op", req.op, "method", req.method, "url", reqURL.String(),
		"status", resp.StatusCode, "correlation", correlation, "duration", time.Since(started))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backend.StatusError(req.op, resp.StatusCode, fmt.Errorf("%s %s", req.method, rel.Path))
	}
	return raw, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("httpclient: base url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("httpclient: parse base url %q: %w", raw, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
