package authsession

import (
	"net/http"

	"github.com/MrEthical07/authsession/session"
)

// Re-exported session types, so most callers only import this package.
type (
	Phase       = session.Phase
	Snapshot    = session.Snapshot
	User        = session.User
	UserID      = session.UserID
	Credentials = session.Credentials
)

const (
	PhaseLoading       = session.PhaseLoading
	PhaseAuthenticated = session.PhaseAuthenticated
	PhaseAnonymous     = session.PhaseAnonymous
)

// RegisterRequest is the sign-up submission.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Outcome tags the result of Client.Send.
type Outcome uint8

const (
	// OutcomeSuccess means a response was obtained. An unannotated request
	// rejected as unauthorized is still a success; its status is the caller's
	// to interpret.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryExhausted means the request was rejected as unauthorized
	// after the client renewed the credential once. Response holds the
	// second rejection.
	OutcomeRetryExhausted
	// OutcomeFailure means no usable response was obtained. Err tells why.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryExhausted:
		return "retry_exhausted"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one logical request.
type Result struct {
	Outcome  Outcome
	Response *http.Response
	Err      error
	// Renewed reports whether the request spent its single renewal.
	Renewed bool
}

// OK reports whether a response was obtained and is not an unresolved
// authorization failure.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}
