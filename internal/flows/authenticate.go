package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/session"
)

// AuthenticateFailureKind classifies sign-in failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureRemote
	AuthenticateFailureIncomplete
	AuthenticateFailureEstablish
)

// Grant is a successful credential exchange.
type Grant struct {
	User        session.User
	Credentials session.Credentials
}

// AuthenticateDeps captures sign-in and sign-up dependencies.
type AuthenticateDeps struct {
	// Call performs the remote exchange (login or register).
	Call      func(ctx context.Context) (Grant, error)
	Establish func(ctx context.Context, user session.User, creds session.Credentials) (session.Snapshot, error)
}

// AuthenticateResult carries the established snapshot or failure metadata.
type AuthenticateResult struct {
	Failure  AuthenticateFailureKind
	Err      error
	Snapshot session.Snapshot
}

var errIncompleteGrant = errors.New("grant is missing user id or access credential")

// RunAuthenticate exchanges credentials with the remote service and
// establishes the resulting session. Remote failures are returned unchanged.
func RunAuthenticate(ctx context.Context, deps AuthenticateDeps) AuthenticateResult {
	grant, err := deps.Call(ctx)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureRemote, Err: err}
	}
	if grant.User.ID == "" || grant.Credentials.Access == "" {
		return AuthenticateResult{Failure: AuthenticateFailureIncomplete, Err: errIncompleteGrant}
	}

	snap, err := deps.Establish(ctx, grant.User, grant.Credentials)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureEstablish, Err: err, Snapshot: snap}
	}
	return AuthenticateResult{Snapshot: snap}
}
