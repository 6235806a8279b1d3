package authsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authsession/session"
)

// SyncProfile fetches the signed-in user's record and re-establishes the
// session with it, keeping the credentials. The request goes through Send, so
// an expired access credential is renewed on the way.
func (c *Client) SyncProfile(ctx context.Context) (Snapshot, error) {
	if err := c.usable(); err != nil {
		return c.session.Snapshot(), err
	}
	if !c.session.Snapshot().Authenticated() {
		return c.session.Snapshot(), ErrNotAuthenticated
	}

	req, err := c.NewRequest(ctx, http.MethodGet, c.config.Remote.Paths.Me, nil)
	if err != nil {
		return c.session.Snapshot(), err
	}
	res := c.Send(req)
	switch res.Outcome {
	case OutcomeFailure:
		return c.session.Snapshot(), res.Err
	case OutcomeRetryExhausted:
		drainAndClose(res.Response)
		return c.session.Snapshot(), res.Err
	}
	defer drainAndClose(res.Response)

	if res.Response.StatusCode != http.StatusOK {
		return c.session.Snapshot(), responseError(res.Response)
	}
	var user session.User
	if err := json.NewDecoder(res.Response.Body).Decode(&user); err != nil {
		return c.session.Snapshot(), fmt.Errorf("%w: decode profile: %w", ErrServerError, err)
	}
	if user.ID == "" {
		return c.session.Snapshot(), fmt.Errorf("%w: profile has no user id", ErrServerError)
	}

	snap, err := c.session.ReplaceUser(ctx, user)
	if err != nil {
		return snap, err
	}
	c.metricInc(MetricProfileSync)
	c.emitAudit(ctx, AuditProfileSynchronized, true, snap, nil, nil)
	return snap, nil
}
