package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	tokenIDSize     = 16
	tokenSecretSize = 32
	tokenRawSize    = tokenIDSize + tokenSecretSize
)

// ErrMalformedToken is returned for tokens that do not decode to id+secret.
var ErrMalformedToken = errors.New("malformed opaque token")

// OpaqueToken is a server-side record of an issued token: the id it is looked
// up by and the hash of its secret.
type OpaqueToken struct {
	ID   uuid.UUID
	Hash [32]byte
}

// NewOpaqueToken returns an encoded token and its server-side record.
func NewOpaqueToken() (string, OpaqueToken, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", OpaqueToken{}, err
	}
	var secret [tokenSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", OpaqueToken{}, err
	}

	var raw [tokenRawSize]byte
	copy(raw[:tokenIDSize], id[:])
	copy(raw[tokenIDSize:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:]), OpaqueToken{ID: id, Hash: sha256.Sum256(secret[:])}, nil
}

// ParseOpaqueToken decodes token into the record it should match.
func ParseOpaqueToken(token string) (OpaqueToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenRawSize {
		return OpaqueToken{}, ErrMalformedToken
	}
	var rec OpaqueToken
	copy(rec.ID[:], raw[:tokenIDSize])
	rec.Hash = sha256.Sum256(raw[tokenIDSize:])
	return rec, nil
}

// Matches compares two records in constant time.
func (t OpaqueToken) Matches(other OpaqueToken) bool {
	return t.ID == other.ID && subtle.ConstantTimeCompare(t.Hash[:], other.Hash[:]) == 1
}
