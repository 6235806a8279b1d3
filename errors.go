package authsession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/MrEthical07/authsession/session"
)

var (
	// ErrInvalidCredentials is returned when the remote service rejects the
	// presented credentials, and after a failed silent renewal.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNetworkUnavailable is returned when the remote service could not be
	// reached or did not answer in time.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrServerError is returned for 5xx and otherwise unexpected responses.
	ErrServerError = errors.New("server error")
	// ErrPersistenceFailure marks session records that could not be written.
	ErrPersistenceFailure = session.ErrPersistenceFailure
	// ErrNotRestored is returned by session-changing operations called before
	// Client.Restore has resolved.
	ErrNotRestored = session.ErrNotRestored
	// ErrSessionChanged is returned by Logout when a different session was
	// established while the sign-out was in progress.
	ErrSessionChanged = session.ErrSessionChanged
	// ErrRetryExhausted is the error of a request that was still unauthorized
	// after its single renewal.
	ErrRetryExhausted = errors.New("request unauthorized after renewal")
	// ErrClientNotReady is returned when a request is abandoned while waiting
	// for the session to be restored.
	ErrClientNotReady = errors.New("client not ready")
	// ErrNotAuthenticated is returned by operations that need a session when
	// there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBodyNotReplayable is returned when a renewed request cannot be sent
	// again because its body was too large to buffer.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
	// ErrClientClosed is returned after Client.Close.
	ErrClientClosed = errors.New("client closed")
)

// ValidationError carries the per-field messages of a rejected submission.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message == "" {
			return ErrValidationFailed.Error()
		}
		return ErrValidationFailed.Error() + ": " + e.Message
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// StatusError is a rejected remote call. It matches the sentinel its status
// maps to.
type StatusError struct {
	Status  int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.Status)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// statusKind maps a non-success status to its error sentinel.
func statusKind(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidCredentials
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrValidationFailed
	default:
		return ErrServerError
	}
}

// transportError classifies an error returned before any response arrived.
// The cause stays matchable, so callers can still tell a caller-side
// cancellation apart from an unreachable service.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrClientClosed) || errors.Is(err, ErrBodyNotReplayable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %w", ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
}
