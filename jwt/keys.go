package jwt

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

func (m SigningMethod) method() (jwt.SigningMethod, error) {
	switch m {
	case MethodHS256:
		return jwt.SigningMethodHS256, nil
	case MethodEd25519:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}
}

func signKey(m SigningMethod, key []byte) (any, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt: signing key is empty")
	}
	if m == MethodHS256 {
		return key, nil
	}
	return parseEdPrivateKey(key)
}

func verifyKey(m SigningMethod, key []byte) (any, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt: verification key is empty")
	}
	if m == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
