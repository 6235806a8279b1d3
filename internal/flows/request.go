package flows

import (
	"context"
	"net/http"
)

// RequestOutcome is the tagged outcome of one logical request.
type RequestOutcome int

const (
	// RequestSuccess means a response was obtained and is not an unresolved
	// authorization failure.
	RequestSuccess RequestOutcome = iota
	// RequestRetryExhausted means the request was rejected as unauthorized
	// after its single renewal was spent.
	RequestRetryExhausted
	// RequestFailure means no usable response was obtained.
	RequestFailure
)

// RequestFailureKind classifies RequestFailure outcomes.
type RequestFailureKind int

const (
	RequestFailureNone RequestFailureKind = iota
	RequestFailureTransport
	RequestFailureRenewal
)

// RequestDeps captures the retry decorator's dependencies.
type RequestDeps struct {
	// Credential returns the access credential to annotate with; empty means
	// the request goes out unannotated.
	Credential func() string
	// Attempt sends the request once with the given credential.
	Attempt func(ctx context.Context, credential string) (*http.Response, error)
	// Renew returns a fresh access credential replacing stale.
	Renew func(ctx context.Context, stale string) (string, error)
	// RenewFirst, when set, reports whether credential should be renewed
	// before the first attempt. Doing so spends the request's renewal.
	RenewFirst func(credential string) bool
	// Discard releases a response that will not be returned.
	Discard func(*http.Response)
}

// RequestResult is the result of RunRequest.
type RequestResult struct {
	Outcome  RequestOutcome
	Failure  RequestFailureKind
	Response *http.Response
	Err      error
	// Renewed is true when the request spent its renewal.
	Renewed  bool
	Attempts int
}

// RunRequest sends a request, renewing the credential and replaying the
// request at most once when it is rejected as unauthorized.
func RunRequest(ctx context.Context, deps RequestDeps) RequestResult {
	var res RequestResult
	credential := deps.Credential()

	if credential != "" && deps.RenewFirst != nil && deps.RenewFirst(credential) {
		next, err := deps.Renew(ctx, credential)
		if err != nil {
			res.Outcome, res.Failure, res.Err = RequestFailure, RequestFailureRenewal, err
			return res
		}
		credential = next
		res.Renewed = true
	}

	resp, err := deps.Attempt(ctx, credential)
	res.Attempts++
	if err != nil {
		res.Outcome, res.Failure, res.Err = RequestFailure, RequestFailureTransport, err
		return res
	}
	if resp.StatusCode != http.StatusUnauthorized || credential == "" {
		res.Outcome, res.Response = RequestSuccess, resp
		return res
	}
	if res.Renewed {
		res.Outcome, res.Response = RequestRetryExhausted, resp
		return res
	}

	deps.Discard(resp)
	next, err := deps.Renew(ctx, credential)
	res.Renewed = true
	if err != nil {
		res.Outcome, res.Failure, res.Err = RequestFailure, RequestFailureRenewal, err
		return res
	}

	resp, err = deps.Attempt(ctx, next)
	res.Attempts++
	if err != nil {
		res.Outcome, res.Failure, res.Err = RequestFailure, RequestFailureTransport, err
		return res
	}
	if resp.StatusCode == http.StatusUnauthorized {
		res.Outcome, res.Response = RequestRetryExhausted, resp
		return res
	}
	res.Outcome, res.Response = RequestSuccess, resp
	return res
}
