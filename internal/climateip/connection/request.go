package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// Connection type names handled by Request.
const (
	TypeRequest      = "request"
	TypeRequestPrint = "request_print"
)

// Request parameters.
const (
	ParamMethod  = "method"
	ParamURL     = "url"
	ParamHeaders = "headers"
	ParamJSON    = "json"
	ParamData    = "data"
	ParamQuery   = "params"
	ParamTimeout = "timeout"
	ParamVerify  = "verify"
	ParamCert    = "cert"
)

const defaultRequestTimeoutSec = 5.0

// maxResponseSize bounds how much of a reply body is read.
const maxResponseSize = 4 << 20

// Request sends rendered commands as HTTPS requests with JSON replies.
//
// Execute runs in three steps: the embedded command (if any) fires first and
// its outcome is only logged; the condition template then decides whether
// the main request runs at all; finally the request template is rendered to
// a JSON object, merged over the base params, and sent. A 5xx reply is
// retried exactly once after retry_delay.
type Request struct {
	typ        string
	params     map[string]any
	condition  *render.Template
	embedded   *embeddedCommand
	retryDelay time.Duration
	printOnly  bool
	owner      bool
	clients    *clientCache
	opts       Options
}

// embeddedCommand is a request fired before its parent.
type embeddedCommand struct {
	conn *Request
	tpl  *render.Template
}

// NewRequestFromNode is the Factory for the request type.
func NewRequestFromNode(node *descriptor.Node, opts Options) (Connection, error) {
	return newRequest(TypeRequest, node, opts)
}

// NewRequestPrintFromNode is the Factory for the request_print type.
func NewRequestPrintFromNode(node *descriptor.Node, opts Options) (Connection, error) {
	c, err := newRequest(TypeRequestPrint, node, opts)
	if err != nil {
		return nil, err
	}
	c.printOnly = true
	if c.embedded != nil {
		c.embedded.conn.printOnly = true
	}
	return c, nil
}

func newRequest(typ string, node *descriptor.Node, opts Options) (*Request, error) {
	opts = opts.withDefaults()

	params := node.Get(KeyParams)
	if params != nil && !params.IsMap() {
		return nil, fmt.Errorf("%s must be a mapping (line %d)", KeyParams, params.Line())
	}

	c := &Request{
		typ:        typ,
		params:     copyParams(params.Map()),
		retryDelay: seconds(defaultRetryDelaySec),
		owner:      true,
		clients:    newClientCache(opts.HTTPClient),
		opts:       opts,
	}
	if d, ok := node.Float(KeyRetryDelay); ok && d >= 0 {
		c.retryDelay = seconds(d)
	}

	if cert := paramString(c.params, ParamCert); cert != "" {
		if _, err := os.Stat(opts.resolvePath(cert)); err != nil {
			return nil, fmt.Errorf("certificate: %w", err)
		}
	}

	if src := node.String(KeyCondition); src != "" {
		tpl, err := opts.Engine.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyCondition, err)
		}
		c.condition = tpl
	}

	if emb := node.Get(KeyEmbeddedCommand); emb != nil {
		child, err := c.updated(emb.Get(KeyParams))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyEmbeddedCommand, err)
		}
		child.condition = nil
		child.embedded = nil

		var tpl *render.Template
		if src := emb.String(KeyConnectionTpl); src != "" {
			if tpl, err = opts.Engine.Compile(src); err != nil {
				return nil, fmt.Errorf("%s: %w", KeyEmbeddedCommand, err)
			}
		}
		c.embedded = &embeddedCommand{conn: child, tpl: tpl}
	}

	return c, nil
}

// Type implements Connection.
func (c *Request) Type() string { return c.typ }

// Params implements Connection.
func (c *Request) Params() map[string]any { return copyParams(c.params) }

// CreateUpdated implements Connection.
func (c *Request) CreateUpdated(params *descriptor.Node) (Connection, error) {
	return c.updated(params)
}

func (c *Request) updated(params *descriptor.Node) (*Request, error) {
	if params != nil && !params.IsMap() {
		return nil, fmt.Errorf("%s must be a mapping (line %d)", KeyParams, params.Line())
	}
	cp := *c
	cp.params = mergeParams(c.params, params.Map())
	cp.owner = false
	return &cp, nil
}

// Close implements Connection.
func (c *Request) Close() error {
	if c.owner {
		c.clients.closeIdle()
	}
	return nil
}

// Execute implements Connection.
//
// Returns:
//   - any: the decoded JSON body on 200, an empty object on any other 2xx or
//     when the condition skipped the request
//   - error: ErrTemplate, ErrRequest, ErrStatus or ErrResponse
func (c *Request) Execute(ctx context.Context, tpl *render.Template, value any, deviceState any) (any, error) {
	if c.embedded != nil {
		if _, err := c.embedded.conn.Execute(ctx, c.embedded.tpl, value, deviceState); err != nil {
			c.opts.Logger.Warn("embedded command failed", "error", err)
		}
	}

	vars := render.Vars{DeviceState: deviceState, Value: value}

	switch c.condition.Decide(vars) {
	case render.DecisionSkip:
		c.opts.Logger.Debug("request condition not met, skipping")
		return map[string]any{}, nil
	case render.DecisionUnknown:
		c.opts.Logger.Warn("request condition failed to render, executing anyway",
			"condition", c.condition.Source())
	}

	params, err := c.renderParams(tpl, vars)
	if err != nil {
		return nil, err
	}

	if c.printOnly {
		c.opts.Logger.Info("request",
			"method", requestMethod(params),
			"url", paramString(params, ParamURL),
			"params", params,
		)
		return TestJSON(), nil
	}

	result, status, err := c.do(ctx, params)
	if err == nil || status < http.StatusInternalServerError {
		return result, err
	}

	c.opts.Logger.Warn("device returned server error, retrying once",
		"status", status, "delay", c.retryDelay)

	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	result, _, err = c.do(ctx, params)
	return result, err
}

// renderParams merges the rendered command over the base parameters.
func (c *Request) renderParams(tpl *render.Template, vars render.Vars) (map[string]any, error) {
	if tpl == nil {
		return copyParams(c.params), nil
	}
	out, err := tpl.Render(vars)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(out)
	if s == "" {
		return copyParams(c.params), nil
	}
	rendered, err := decodeParams(s)
	if err != nil {
		return nil, err
	}
	return mergeParams(c.params, rendered), nil
}

// do sends one request and returns the decoded reply and the HTTP status.
func (c *Request) do(ctx context.Context, p map[string]any) (any, int, error) {
	ctx, cancel := context.WithTimeout(ctx, seconds(paramFloat(p, ParamTimeout, defaultRequestTimeoutSec)))
	defer cancel()

	req, err := newHTTPRequest(ctx, p)
	if err != nil {
		return nil, 0, err
	}

	client, err := c.clients.get(paramBool(p, ParamVerify, true), c.opts.resolvePath(paramString(p, ParamCert)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)

	switch {
	case resp.StatusCode == http.StatusOK:
		dec := json.NewDecoder(body)
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: %w", ErrResponse, err)
		}
		return v, resp.StatusCode, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, body) //nolint:errcheck // drain for connection reuse
		return map[string]any{}, resp.StatusCode, nil
	default:
		_, _ = io.Copy(io.Discard, body) //nolint:errcheck // drain for connection reuse
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
}

func requestMethod(p map[string]any) string {
	if m := strings.ToUpper(paramString(p, ParamMethod)); m != "" {
		return m
	}
	return http.MethodGet
}

// newHTTPRequest builds an http.Request from merged parameters.
func newHTTPRequest(ctx context.Context, p map[string]any) (*http.Request, error) {
	raw := paramString(p, ParamURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrRequest, ParamURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	if q, ok := p[ParamQuery].(map[string]any); ok {
		values := u.Query()
		for k, v := range q {
			values.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = values.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	if j, ok := p[ParamJSON]; ok && j != nil {
		b, err := json.Marshal(j)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequest, err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	} else if d, ok := p[ParamData]; ok && d != nil {
		switch data := d.(type) {
		case string:
			body = strings.NewReader(data)
		case map[string]any:
			form := url.Values{}
			for k, v := range data {
				form.Set(k, fmt.Sprint(v))
			}
			body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
		default:
			b, err := json.Marshal(data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRequest, err)
			}
			body = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, requestMethod(p), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h, ok := p[ParamHeaders].(map[string]any); ok {
		for k, v := range h {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	return req, nil
}

// clientCache holds one http.Client per TLS setting. Copies of a Request
// share the cache.
type clientCache struct {
	mu      sync.Mutex
	fixed   *http.Client
	clients map[clientKey]*http.Client
}

type clientKey struct {
	verify bool
	cert   string
}

func newClientCache(fixed *http.Client) *clientCache {
	return &clientCache{fixed: fixed, clients: make(map[clientKey]*http.Client)}
}

func (cc *clientCache) get(verify bool, cert string) (*http.Client, error) {
	if cc.fixed != nil {
		return cc.fixed, nil
	}

	key := clientKey{verify: verify, cert: cert}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c, ok := cc.clients[key]; ok {
		return c, nil
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: !verify, //nolint:gosec // appliances ship self-signed certificates
		MinVersion:         tls.VersionTLS10,
	}
	if cert != "" {
		pair, err := tls.LoadX509KeyPair(cert, cert)
		if err != nil {
			return nil, fmt.Errorf("loading certificate %s: %w", cert, err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	transport.TLSClientConfig = tlsCfg

	c := &http.Client{Transport: transport}
	cc.clients[key] = c
	return c, nil
}

func (cc *clientCache) closeIdle() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for _, c := range cc.clients {
		c.CloseIdleConnections()
	}
}
