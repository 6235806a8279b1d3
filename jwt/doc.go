// Package jwt reads access credentials issued as JSON Web Tokens.
//
// The client never needs to trust the claims it reads: an [Inspector] extracts
// the subject and expiry so the renewal path can refresh ahead of expiry, and
// optionally verifies the signature when a verification key is configured.
// [Signer] issues tokens for the in-process fake authentication service.
package jwt
