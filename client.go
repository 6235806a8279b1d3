package authsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
)

// Client owns one user's session: it signs in and out against the remote
// service, persists the session, and sends requests that renew the access
// credential when it is rejected.
//
// A Client is safe for concurrent use. Call Restore once at startup before
// anything that changes the session.
type Client struct {
	config    Config
	session   *session.Store
	gateway   *gateway
	inspector *jwt.Inspector
	transport http.RoundTripper
	origin    *url.URL
	flows     flows.Deps
	renewals  singleflight.Group
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *log.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closers   []func() error
}

// Restore reads the persisted session and resolves the Loading phase. It runs
// once; later calls return the current snapshot. It never fails: unreadable or
// incomplete records resolve to Anonymous.
func (c *Client) Restore(ctx context.Context) Snapshot {
	return c.session.Restore(ctx)
}

// Ready is closed once Restore has resolved.
func (c *Client) Ready() <-chan struct{} {
	return c.session.Ready()
}

// Snapshot returns the current session.
func (c *Client) Snapshot() Snapshot {
	return c.session.Snapshot()
}

// Subscribe delivers the latest session snapshot, starting with the current
// one. See session.Store.Subscribe.
func (c *Client) Subscribe() (<-chan Snapshot, func()) {
	return c.session.Subscribe()
}

// Session exposes the underlying session store.
func (c *Client) Session() *session.Store {
	return c.session
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// Login exchanges email and password for a session and establishes it.
// Rejections come back as ErrInvalidCredentials, ErrValidationFailed,
// ErrNetworkUnavailable or ErrServerError and leave the session unchanged.
func (c *Client) Login(ctx context.Context, email, password string) (Snapshot, error) {
	if err := c.usable(); err != nil {
		return c.session.Snapshot(), err
	}
	res := flows.RunAuthenticate(ctx, flows.AuthenticateDeps{
		Call: func(ctx context.Context) (flows.Grant, error) {
			return c.gateway.login(ctx, email, password)
		},
		Establish: c.session.Establish,
	})
	return c.finishAuthenticate(ctx, res, MetricLoginSuccess, MetricLoginFailure, AuditLoginSuccess, AuditLoginFailure)
}

// Register creates an account and establishes its session. Field-level
// rejections are returned as *ValidationError.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Snapshot, error) {
	if err := c.usable(); err != nil {
		return c.session.Snapshot(), err
	}
	res := flows.RunAuthenticate(ctx, flows.AuthenticateDeps{
		Call: func(ctx context.Context) (flows.Grant, error) {
			return c.gateway.register(ctx, req)
		},
		Establish: c.session.Establish,
	})
	return c.finishAuthenticate(ctx, res, MetricRegisterSuccess, MetricRegisterFailure, AuditRegisterSuccess, AuditRegisterFailure)
}

func (c *Client) finishAuthenticate(ctx context.Context, res flows.AuthenticateResult, okMetric, failMetric MetricID, okEvent, failEvent string) (Snapshot, error) {
	if res.Failure == flows.AuthenticateFailureNone {
		c.metricInc(okMetric)
		c.emitAudit(ctx, okEvent, true, res.Snapshot, nil, nil)
		return res.Snapshot, nil
	}

	c.metricInc(failMetric)
	err := res.Err
	if res.Failure == flows.AuthenticateFailureIncomplete {
		err = fmt.Errorf("%w: %w", ErrServerError, err)
	}
	c.emitAudit(ctx, failEvent, false, c.session.Snapshot(), err, nil)
	return c.session.Snapshot(), err
}

// Logout signs out. The refresh credential is revoked remotely on a best-effort
// basis; the local session is cleared regardless. Logging out an Anonymous
// session succeeds without doing anything observable. If another sign-in
// completed while the revocation was in flight, that session is kept and the
// error is ErrSessionChanged.
func (c *Client) Logout(ctx context.Context) error {
	if !c.session.Restored() {
		return ErrNotRestored
	}
	prev := c.session.Snapshot()
	if _, err := c.session.Clear(ctx); err != nil {
		return err
	}
	if prev.Authenticated() {
		c.metricInc(MetricLogout)
		c.emitAudit(ctx, AuditLogout, true, prev, nil, nil)
	}
	return nil
}

// Renew exchanges the refresh credential for a new pair. On failure the
// session is signed out and the error matches ErrInvalidCredentials.
func (c *Client) Renew(ctx context.Context) (Snapshot, error) {
	if err := c.usable(); err != nil {
		return c.session.Snapshot(), err
	}
	if !c.session.Snapshot().Authenticated() {
		return c.session.Snapshot(), ErrNotAuthenticated
	}
	if _, err := c.renew(ctx, ""); err != nil {
		return c.session.Snapshot(), err
	}
	return c.session.Snapshot(), nil
}

// ForgotPassword asks the remote service to send a reset link to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.gateway.forgotPassword(ctx, email); err != nil {
		return err
	}
	c.metricInc(MetricPasswordResetRequest)
	c.emitAudit(ctx, AuditPasswordResetAsk, true, c.session.Snapshot(), nil, nil)
	return nil
}

// ResetPassword sets a new password using a reset token. It does not sign in.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.gateway.resetPassword(ctx, token, newPassword); err != nil {
		return err
	}
	c.metricInc(MetricPasswordResetConfirm)
	c.emitAudit(ctx, AuditPasswordResetDone, true, c.session.Snapshot(), nil, nil)
	return nil
}

// Close describes the close operation and its observable behavior.
//
// Close flushes queued audit events and releases the storage backend when the
// client opened it. Requests sent afterwards fail with ErrClientClosed.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.audit != nil {
			c.audit.Close()
		}
		for _, closeFn := range c.closers {
			if err := closeFn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns the number of audit events discarded because the buffer
// was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf("authsession: "+format, args...)
}

// usable rejects session-changing calls on a closed or unrestored client
// before anything is sent.
func (c *Client) usable() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.session.Restored() {
		return ErrNotRestored
	}
	return nil
}

// renew returns a fresh credential pair replacing stale. Concurrent callers
// holding the same refresh credential share one exchange, which runs detached
// from any single caller's cancellation and is bounded by Renewal.Timeout.
func (c *Client) renew(ctx context.Context, stale string) (session.Credentials, error) {
	if !c.config.Renewal.Coalesce {
		return c.runRenewal(ctx, stale)
	}

	key := c.session.Snapshot().Credentials.Refresh
	ch := c.renewals.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Renewal.Timeout)
		defer cancel()
		return c.runRenewal(rctx, stale)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metricInc(MetricRefreshCoalesced)
		}
		if res.Err != nil {
			return session.Credentials{}, res.Err
		}
		return res.Val.(session.Credentials), nil
	case <-ctx.Done():
		return session.Credentials{}, transportError(ctx.Err())
	}
}

func (c *Client) runRenewal(ctx context.Context, stale string) (session.Credentials, error) {
	res := flows.RunRenewal(ctx, stale, c.flows.Renewal)
	switch res.Failure {
	case flows.RenewalFailureNone:
		if res.Skipped {
			c.metricInc(MetricRefreshSkipped)
		} else {
			c.metricInc(MetricRefreshSuccess)
			c.emitAudit(ctx, AuditRefreshSuccess, true, c.session.Snapshot(), nil, nil)
		}
		return res.Credentials, nil
	case flows.RenewalFailureNoSession:
		return session.Credentials{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrNotAuthenticated)
	}

	c.metricInc(MetricRefreshFailure)
	c.emitAudit(ctx, AuditRefreshFailure, false, c.session.Snapshot(), res.Err, map[string]string{"reason": renewalReason(res.Failure)})
	if res.SignedOut {
		c.metricInc(MetricForcedSignOut)
		c.emitAudit(ctx, AuditForcedSignOut, true, c.session.Snapshot(), nil, nil)
		c.logf("signed out after failed renewal")
	}
	if errors.Is(res.Err, ErrInvalidCredentials) {
		return session.Credentials{}, res.Err
	}
	return session.Credentials{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, res.Err)
}

func renewalReason(kind flows.RenewalFailureKind) string {
	switch kind {
	case flows.RenewalFailureNoRefresh:
		return "no_refresh_credential"
	case flows.RenewalFailureRemote:
		return "remote_rejected"
	case flows.RenewalFailureSuperseded:
		return "session_changed"
	default:
		return "unknown"
	}
}
