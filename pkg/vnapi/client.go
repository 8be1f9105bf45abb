// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

// Package vnapi implements the client side of the VisioNature HTTP API:
// signed requests, transparent chunked pagination and a cumulative
// transfer error budget per client instance.
package vnapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"
)

const (
	defaultMaxRetry   = 5
	defaultMaxChunks  = 10
	defaultRetryDelay = 5 * time.Second
)

// Config contains provider access credentials and transfer tuning.
type Config struct {
	BaseURL      string        `help:"base URL of the VisioNature site, ending with /" default:""`
	UserEmail    string        `help:"account email, added to every query" default:""`
	UserPw       string        `help:"account password, added to every query" default:""`
	ClientKey    string        `help:"OAuth1 consumer key" default:""`
	ClientSecret string        `help:"OAuth1 consumer secret" default:""`
	MaxRetry     int           `help:"transfer errors tolerated over a client lifetime" default:"5"`
	MaxChunks    int           `help:"maximum chunks accepted for one request" default:"10"`
	RetryDelay   time.Duration `help:"fixed delay before re-issuing a failed request" default:"5s"`
}

// Request describes one logical call to the provider. It is immutable
// once issued; pagination continuation is handled internally.
type Request struct {
	Scope  string     // resource path below /api, e.g. "observations/diff/"
	Params url.Values // resource specific filters, credentials added by the client
	Method string     // GET when empty
	Body   []byte     // optional POST body
}

// Client executes requests against one API controller.
//
// The transfer error counter is cumulative across the whole client
// lifetime, not reset per request, so earlier failures reduce the retry
// budget left for later calls.
type Client struct {
	log  *zap.Logger
	http *http.Client
	cfg  Config
	ctrl string

	mu             sync.Mutex
	transferErrors int
	lastStatus     int
}

// NewClient creates a client bound to a controller, for example "species".
func NewClient(log *zap.Logger, cfg Config, controller string) *Client {
	if cfg.MaxRetry == 0 {
		cfg.MaxRetry = defaultMaxRetry
	}
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = defaultMaxChunks
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	auth := oauth1.NewConfig(cfg.ClientKey, cfg.ClientSecret)
	return &Client{
		log:  log.Named(controller),
		http: auth.Client(oauth1.NoContext, oauth1.NewToken("", "")),
		cfg:  cfg,
		ctrl: controller,
	}
}

// Controller returns the controller name this client is bound to.
func (c *Client) Controller() string { return c.ctrl }

// TransferErrors returns the number of transfer errors seen by this
// client so far.
func (c *Client) TransferErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferErrors
}

// LastStatus returns the HTTP status of the most recent wire response.
func (c *Client) LastStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// Get returns a single entity of the controller.
func (c *Client) Get(ctx context.Context, id string, opts url.Values) (*Response, error) {
	return c.Fetch(ctx, Request{Scope: c.ctrl + "/" + id, Params: opts})
}

// List returns all entities of the controller.
func (c *Client) List(ctx context.Context, opts url.Values) (*Response, error) {
	return c.Fetch(ctx, Request{Scope: c.ctrl, Params: opts})
}

// Fetch executes one request, following chunked pagination until the
// provider stops signaling continuation, and returns the merged logical
// response.
func (c *Client) Fetch(ctx context.Context, req Request) (_ *Response, err error) {
	defer mon.Task()(&ctx)(&err)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	params := url.Values{}
	for key, values := range req.Params {
		params[key] = append([]string(nil), values...)
	}
	params.Set("user_email", c.cfg.UserEmail)
	params.Set("user_pw", c.cfg.UserPw)

	merged := &Response{}
	nbChunks := 0
	for {
		wire, err := c.do(ctx, method, req.Scope, params, req.Body)
		if err != nil {
			if rerr := c.countError(ctx, 0, err); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if wire.status != http.StatusOK {
			c.log.Error("request failed",
				zap.String("method", method),
				zap.String("scope", req.Scope),
				zap.Int("status", wire.status))
			if rerr := c.countError(ctx, wire.status, nil); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if err := merged.merge(wire.body); err != nil {
			c.log.Error("incorrect response content",
				zap.String("scope", req.Scope),
				zap.Error(err))
			if rerr := c.countError(ctx, wire.status, err); rerr != nil {
				return nil, rerr
			}
			continue
		}

		if wire.chunked && wire.paginationKey != "" {
			c.log.Debug("chunked transfer, requesting more",
				zap.String("pagination_key", wire.paginationKey),
				zap.Int("chunk", nbChunks))
			params.Set("pagination_key", wire.paginationKey)
			nbChunks++
			if nbChunks >= c.cfg.MaxChunks {
				return nil, ErrPaginationOverflow.New("no pagination end after %d chunks for %s", nbChunks, req.Scope)
			}
			continue
		}
		params.Del("pagination_key")
		return merged, nil
	}
}

type wireResponse struct {
	status        int
	body          []byte
	chunked       bool
	paginationKey string
}

func (c *Client) do(ctx context.Context, method, scope string, params url.Values, body []byte) (*wireResponse, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/" + scope

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	c.log.Debug("requesting",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.String("params", scrubParams(params)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.setStatus(resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	chunked := false
	for _, te := range resp.TransferEncoding {
		if te == "chunked" {
			chunked = true
		}
	}
	return &wireResponse{
		status:        resp.StatusCode,
		body:          data,
		chunked:       chunked,
		paginationKey: resp.Header.Get("pagination_key"),
	}, nil
}

// countError increments the cumulative error counter and either waits
// the fixed inter-retry delay or, when the budget is exhausted, returns
// the fatal protocol error carrying the last status.
func (c *Client) countError(ctx context.Context, status int, cause error) error {
	c.mu.Lock()
	c.transferErrors++
	count := c.transferErrors
	c.mu.Unlock()
	mon.Counter("transfer_errors").Inc(1)

	if count > c.cfg.MaxRetry {
		c.log.Error("too many transfer errors",
			zap.Int("count", count),
			zap.Int("status", status))
		if cause != nil {
			return ErrProtocol.Wrap(cause)
		}
		return ErrProtocol.New("status %d after %d transfer errors", status, count)
	}

	select {
	case <-time.After(c.cfg.RetryDelay):
		return nil
	case <-ctx.Done():
		return Error.Wrap(ctx.Err())
	}
}

func (c *Client) setStatus(status int) {
	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()
}

// scrubParams masks credential fields for debug logging.
func scrubParams(params url.Values) string {
	clean := url.Values{}
	for key, values := range params {
		clean[key] = values
	}
	if clean.Has("user_email") {
		clean.Set("user_email", "***")
	}
	if clean.Has("user_pw") {
		clean.Set("user_pw", "***")
	}
	return clean.Encode()
}
