package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SignerConfig configures a Signer.
type SignerConfig struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Signer issues and validates access credentials.
type Signer struct {
	config SignerConfig
	method jwt.SigningMethod
	sign   any
	verify any
}

// NewSigner validates cfg and prepares the signing keys.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	method, err := cfg.SigningMethod.method()
	if err != nil {
		return nil, err
	}
	sk, err := signKey(cfg.SigningMethod, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	pub := cfg.PublicKey
	if cfg.SigningMethod == MethodHS256 {
		pub = cfg.PrivateKey
	}
	vk, err := verifyKey(cfg.SigningMethod, pub)
	if err != nil {
		return nil, err
	}
	return &Signer{config: cfg, method: method, sign: sk, verify: vk}, nil
}

// Issue signs an access credential for uid.
func (s *Signer) Issue(uid, email string) (string, error) {
	return s.IssueWithTTL(uid, email, s.config.AccessTTL)
}

// IssueWithTTL signs an access credential with an explicit lifetime. A
// non-positive ttl yields an already expired credential.
func (s *Signer) IssueWithTTL(uid, email string, ttl time.Duration) (string, error) {
	if uid == "" {
		return "", errors.New("jwt: uid is empty")
	}
	now := s.config.Now()
	claims := Claims{
		UID:   uid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(s.method, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	return token.SignedString(s.sign)
}

// Parse verifies signature, expiry, issuer and audience.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.config.Now),
		jwt.WithExpirationRequired(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if s.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != s.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return s.verify, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
