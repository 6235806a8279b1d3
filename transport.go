package authsession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authsession/internal/flows"
)

// NewRequest builds a request for path, resolved against Remote.BaseURL unless
// it is already absolute. body may be nil, []byte, string, an io.Reader, or
// any value to encode as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.gateway.url(path), reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Send performs req on behalf of the current session and returns the tagged
// outcome. It waits for Restore to resolve. An annotated request rejected with
// 401 triggers one renewal and one replay; a second 401 ends as
// OutcomeRetryExhausted. Send never follows redirects and applies no timeout
// beyond req's context; use HTTPClient for both.
//
// req is not modified. The caller closes Result.Response.Body.
func (c *Client) Send(req *http.Request) Result {
	start := time.Now()
	defer func() {
		c.observe(MetricRequestLatency, time.Since(start))
	}()

	if c.closed.Load() {
		c.metricInc(MetricRequestFailure)
		return Result{Outcome: OutcomeFailure, Err: ErrClientClosed}
	}
	ctx := req.Context()
	select {
	case <-c.session.Ready():
	case <-ctx.Done():
		c.metricInc(MetricRequestFailure)
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: %w", ErrClientNotReady, ctx.Err())}
	}

	req = req.Clone(ctx)
	if err := c.bufferBody(req); err != nil {
		c.metricInc(MetricRequestFailure)
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("read request body: %w", err)}
	}
	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = requestIDFromContext(ctx)
	}

	c.metricInc(MetricRequestSent)
	attempt := 0
	deps := flows.RequestDeps{
		Credential: func() string {
			if !c.sameOrigin(req.URL) {
				return ""
			}
			snap := c.session.Snapshot()
			if !snap.Authenticated() {
				return ""
			}
			return snap.Credentials.Access
		},
		Attempt: func(ctx context.Context, credential string) (*http.Response, error) {
			attempt++
			out, err := c.prepare(ctx, req, credential, requestID, attempt)
			if err != nil {
				return nil, err
			}
			return c.transport.RoundTrip(out)
		},
		Renew: func(ctx context.Context, stale string) (string, error) {
			creds, err := c.renew(ctx, stale)
			return creds.Access, err
		},
		Discard: drainAndClose,
	}
	if c.config.Renewal.Proactive && c.inspector != nil {
		window := c.config.Renewal.ProactiveWindow
		deps.RenewFirst = func(credential string) bool {
			soon, err := c.inspector.ExpiresWithin(credential, window)
			return err == nil && soon
		}
	}

	res := flows.RunRequest(ctx, deps)
	if res.Attempts > 1 {
		c.metricInc(MetricRequestReplayed)
	}

	switch res.Outcome {
	case flows.RequestSuccess:
		return Result{Outcome: OutcomeSuccess, Response: res.Response, Renewed: res.Renewed}
	case flows.RequestRetryExhausted:
		c.metricInc(MetricRequestRetryExhausted)
		return Result{Outcome: OutcomeRetryExhausted, Response: res.Response, Err: ErrRetryExhausted, Renewed: res.Renewed}
	default:
		c.metricInc(MetricRequestFailure)
		err := res.Err
		if res.Failure == flows.RequestFailureTransport {
			err = transportError(err)
		}
		return Result{Outcome: OutcomeFailure, Err: err, Renewed: res.Renewed}
	}
}

// Do is Send for callers that want the http.Client contract: a
// retry-exhausted request returns its 401 response and a nil error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	res := c.Send(req)
	if res.Outcome == OutcomeFailure {
		return nil, res.Err
	}
	return res.Response, nil
}

// HTTPClient returns an *http.Client whose requests go through Send. It
// applies Remote.Timeout and follows redirects as net/http does.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: roundTripper{client: c},
		Timeout:   c.config.Remote.Timeout,
	}
}

type roundTripper struct {
	client *Client
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.client.Do(req)
}

// bufferBody makes req's body replayable. Bodies without GetBody are read up
// to Remote.MaxReplayBodyBytes; a longer body is sent once and the request
// then fails instead of being replayed.
func (c *Client) bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	limit := c.config.Remote.MaxReplayBodyBytes
	head, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
	if err != nil {
		_ = req.Body.Close()
		return err
	}
	if int64(len(head)) > limit {
		req.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
		return nil
	}

	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(head))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(head)), nil
	}
	return nil
}

// prepare clones req for one attempt with a fresh body and the client headers.
func (c *Client) prepare(ctx context.Context, req *http.Request, credential, requestID string, attempt int) (*http.Request, error) {
	out := req.Clone(ctx)
	switch {
	case req.Body == nil || req.Body == http.NoBody:
	case req.GetBody != nil:
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	case attempt > 1:
		return nil, ErrBodyNotReplayable
	}

	if credential != "" {
		out.Header.Set("Authorization", "Bearer "+credential)
	}
	out.Header.Set("X-Request-ID", requestID)
	if out.Header.Get("User-Agent") == "" && c.config.Remote.UserAgent != "" {
		out.Header.Set("User-Agent", c.config.Remote.UserAgent)
	}
	return out, nil
}

// sameOrigin reports whether u points at the remote service. Credentials are
// never attached to other hosts, including redirect targets.
func (c *Client) sameOrigin(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host)
}

func (c *Client) observe(id MetricID, d time.Duration) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Observe(id, d)
}
