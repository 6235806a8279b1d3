package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned for credentials that are not JSON Web Tokens. Such
// credentials are opaque to the client.
var ErrNotJWT = errors.New("jwt: credential is not a JWT")

// InspectorConfig configures an Inspector. Without a VerifyKey the claims are
// read without signature verification.
type InspectorConfig struct {
	SigningMethod SigningMethod
	VerifyKey     []byte
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Inspector reads claims from access credentials held by the client.
type Inspector struct {
	method jwt.SigningMethod
	key    any
	now    func() time.Time
}

// NewInspector builds an Inspector.
func NewInspector(cfg InspectorConfig) (*Inspector, error) {
	in := &Inspector{now: cfg.Now}
	if in.now == nil {
		in.now = time.Now
	}
	if len(cfg.VerifyKey) == 0 {
		return in, nil
	}

	method, err := cfg.SigningMethod.method()
	if err != nil {
		return nil, err
	}
	key, err := verifyKey(cfg.SigningMethod, cfg.VerifyKey)
	if err != nil {
		return nil, err
	}
	in.method = method
	in.key = key
	return in, nil
}

// Verifying reports whether signatures are checked.
func (in *Inspector) Verifying() bool {
	return in.key != nil
}

// Inspect returns the claims of token. Expiry is not enforced here; callers
// compare it through ExpiresWithin.
func (in *Inspector) Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if in.key == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
		}
		return claims, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{in.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return in.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
		}
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// ExpiresWithin reports whether token expires within window from now. A token
// without an expiry never does.
func (in *Inspector) ExpiresWithin(token string, window time.Duration) (bool, error) {
	claims, err := in.Inspect(token)
	if err != nil {
		return false, err
	}
	exp, ok := claims.Expiry()
	if !ok {
		return false, nil
	}
	return !exp.After(in.now().Add(window)), nil
}
