package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set carried by access credentials.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the user identifier, preferring uid over sub.
func (c *Claims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// Expiry returns the expiry time and whether the token carries one.
func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}
