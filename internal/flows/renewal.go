package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/session"
)

// RenewalFailureKind classifies silent renewal failures.
type RenewalFailureKind int

const (
	RenewalFailureNone RenewalFailureKind = iota
	// RenewalFailureNoSession means there was nothing to renew.
	RenewalFailureNoSession
	// RenewalFailureNoRefresh means the session holds no refresh credential.
	RenewalFailureNoRefresh
	// RenewalFailureRemote means the refresh exchange failed.
	RenewalFailureRemote
	// RenewalFailureSuperseded means the session changed while the exchange ran.
	RenewalFailureSuperseded
)

// RenewalDeps captures renewal dependencies.
type RenewalDeps struct {
	Snapshot   func() session.Snapshot
	Exchange   func(ctx context.Context, refresh string) (session.Credentials, error)
	Rotate     func(ctx context.Context, expectedRefresh string, next session.Credentials) (session.Snapshot, error)
	Invalidate func(ctx context.Context, expectedRefresh string) (session.Snapshot, error)
	Warn       func(string, ...any)
}

// RenewalResult carries the renewed credentials or failure metadata.
type RenewalResult struct {
	Failure     RenewalFailureKind
	Err         error
	Credentials session.Credentials
	// Skipped is true when the stale credential had already been replaced and
	// no exchange was made.
	Skipped bool
	// SignedOut is true when the failure cleared the session.
	SignedOut bool
}

// RunRenewal exchanges the current refresh credential for a new pair. stale is
// the access credential the caller saw rejected; when the session already holds
// a different one, that one is returned without an exchange. Any exchange
// failure signs the session out, unless the session changed meanwhile.
func RunRenewal(ctx context.Context, stale string, deps RenewalDeps) RenewalResult {
	cur := deps.Snapshot()
	if !cur.Authenticated() {
		return RenewalResult{Failure: RenewalFailureNoSession, Err: errors.New("no authenticated session")}
	}
	if stale != "" && cur.Credentials.Access != stale {
		return RenewalResult{Credentials: cur.Credentials, Skipped: true}
	}

	refresh := cur.Credentials.Refresh
	if refresh == "" {
		res := RenewalResult{Failure: RenewalFailureNoRefresh, Err: errors.New("session has no refresh credential")}
		res.SignedOut = signOut(ctx, refresh, deps)
		return res
	}

	next, err := deps.Exchange(ctx, refresh)
	if err != nil {
		res := RenewalResult{Failure: RenewalFailureRemote, Err: err}
		res.SignedOut = signOut(ctx, refresh, deps)
		return res
	}

	snap, err := deps.Rotate(ctx, refresh, next)
	if err != nil {
		return RenewalResult{Failure: RenewalFailureSuperseded, Err: err}
	}
	return RenewalResult{Credentials: snap.Credentials}
}

func signOut(ctx context.Context, refresh string, deps RenewalDeps) bool {
	if _, err := deps.Invalidate(ctx, refresh); err != nil {
		if deps.Warn != nil && !errors.Is(err, session.ErrSessionChanged) {
			deps.Warn("authsession: sign-out after failed renewal: %v", err)
		}
		return false
	}
	return true
}
