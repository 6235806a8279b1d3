package authsession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
)

// EnvPrefix prefixes every environment variable read by ParseEnv.
const EnvPrefix = "AUTHSESSION_"

// Config defines the complete client configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Remote  RemoteConfig  `toml:"remote" envPrefix:"REMOTE_"`
	Storage StorageConfig `toml:"storage" envPrefix:"STORAGE_"`
	Renewal RenewalConfig `toml:"renewal" envPrefix:"RENEWAL_"`
	Token   TokenConfig   `toml:"token" envPrefix:"TOKEN_"`
	Audit   AuditConfig   `toml:"audit" envPrefix:"AUDIT_"`
	Metrics MetricsConfig `toml:"metrics" envPrefix:"METRICS_"`
}

/*
====================================
REMOTE CONFIG
====================================
*/

// RemoteConfig describes the remote authentication service.
type RemoteConfig struct {
	BaseURL   string        `toml:"base_url" env:"BASE_URL"`
	Timeout   time.Duration `toml:"timeout" env:"TIMEOUT"`
	UserAgent string        `toml:"user_agent" env:"USER_AGENT"`
	// MaxReplayBodyBytes bounds how much of a request body is buffered so the
	// request can be replayed after a renewal. Larger bodies are sent once.
	MaxReplayBodyBytes int64         `toml:"max_replay_body_bytes" env:"MAX_REPLAY_BODY_BYTES"`
	Paths              EndpointPaths `toml:"paths" envPrefix:"PATH_"`
}

// EndpointPaths are resolved against RemoteConfig.BaseURL.
type EndpointPaths struct {
	Login          string `toml:"login" env:"LOGIN"`
	Register       string `toml:"register" env:"REGISTER"`
	Refresh        string `toml:"refresh" env:"REFRESH"`
	Logout         string `toml:"logout" env:"LOGOUT"`
	ForgotPassword string `toml:"forgot_password" env:"FORGOT_PASSWORD"`
	ResetPassword  string `toml:"reset_password" env:"RESET_PASSWORD"`
	Me             string `toml:"me" env:"ME"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// Storage backend names accepted by StorageConfig.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// StorageConfig selects the persistent store for the session record.
type StorageConfig struct {
	Backend string `toml:"backend" env:"BACKEND"`
	// Path is the file or database location for the file and sqlite backends.
	Path string `toml:"path" env:"PATH"`
	// Namespace scopes sqlite rows and prefixes redis keys.
	Namespace string        `toml:"namespace" env:"NAMESPACE"`
	RedisAddr string        `toml:"redis_addr" env:"REDIS_ADDR"`
	RedisTTL  time.Duration `toml:"redis_ttl" env:"REDIS_TTL"`
	Keys      session.Keys  `toml:"keys" envPrefix:"KEYS_"`
}

/*
====================================
RENEWAL CONFIG
====================================
*/

// RenewalConfig controls silent credential renewal.
type RenewalConfig struct {
	// Coalesce shares one refresh exchange between concurrent callers.
	Coalesce bool `toml:"coalesce" env:"COALESCE"`
	// Proactive renews JWT access credentials that expire within
	// ProactiveWindow before sending.
	Proactive       bool          `toml:"proactive" env:"PROACTIVE"`
	ProactiveWindow time.Duration `toml:"proactive_window" env:"PROACTIVE_WINDOW"`
	// Timeout bounds a shared renewal, which does not follow any single
	// caller's cancellation.
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures inspection of JWT access credentials. Without a
// VerifyKey the claims are read unverified; they only drive proactive renewal.
type TokenConfig struct {
	SigningMethod string `toml:"signing_method" env:"SIGNING_METHOD"` // "ed25519" (default) or "hs256"
	// VerifyKey is a PEM public key for ed25519 or the shared secret for hs256.
	VerifyKey string `toml:"verify_key" env:"VERIFY_KEY"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous session audit trail.
type AuditConfig struct {
	Enabled    bool `toml:"enabled" env:"ENABLED"`
	BufferSize int  `toml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `toml:"drop_if_full" env:"DROP_IF_FULL"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms" env:"ENABLE_LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:            "http://127.0.0.1:8000/api/v1",
			Timeout:            15 * time.Second,
			UserAgent:          "authsession/1",
			MaxReplayBodyBytes: 1 << 20,
			Paths: EndpointPaths{
				Login:          "/auth/login",
				Register:       "/auth/register",
				Refresh:        "/auth/refresh",
				Logout:         "/auth/logout",
				ForgotPassword: "/auth/forgot-password",
				ResetPassword:  "/auth/reset-password",
				Me:             "/auth/me",
			},
		},
		Storage: StorageConfig{
			Backend:   BackendMemory,
			Namespace: "authsession",
			Keys:      session.DefaultKeys(),
		},
		Renewal: RenewalConfig{
			Coalesce:        true,
			Proactive:       false,
			ProactiveWindow: 30 * time.Second,
			Timeout:         15 * time.Second,
		},
		Token: TokenConfig{
			SigningMethod: string(jwt.MethodEd25519),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Every field is a value type; the copy is already deep.
	return cfg
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	base, err := url.Parse(c.Remote.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return errors.New("Remote BaseURL must be an absolute URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return errors.New("Remote BaseURL scheme must be http or https")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("Remote Timeout must be > 0")
	}
	if c.Remote.MaxReplayBodyBytes < 0 {
		return errors.New("Remote MaxReplayBodyBytes must be >= 0")
	}
	paths := c.Remote.Paths
	for _, p := range []string{paths.Login, paths.Register, paths.Refresh, paths.Logout, paths.ForgotPassword, paths.ResetPassword, paths.Me} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Remote Paths must be non-empty and start with '/'")
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("Storage Path is required for the %s backend", c.Storage.Backend)
		}
	case BackendRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("Storage RedisAddr is required for the redis backend")
		}
		if c.Storage.RedisTTL < 0 {
			return errors.New("Storage RedisTTL must be >= 0")
		}
	default:
		return errors.New("Storage Backend must be one of memory, file, sqlite, redis")
	}
	if err := c.Storage.Keys.Validate(); err != nil {
		return err
	}

	if c.Renewal.Timeout <= 0 {
		return errors.New("Renewal Timeout must be > 0")
	}
	if c.Renewal.Proactive && c.Renewal.ProactiveWindow <= 0 {
		return errors.New("Renewal ProactiveWindow must be > 0 when Proactive is true")
	}

	switch jwt.SigningMethod(c.Token.SigningMethod) {
	case jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return errors.New("unsupported Token signing method")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}

// LoadConfigFile overlays the TOML document at path onto cfg. Keys the
// document sets but Config does not know are rejected.
func LoadConfigFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ParseEnv overlays AUTHSESSION_* environment variables onto cfg.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadConfig builds a configuration from defaults, the optional TOML file at
// path, and the environment, in that order, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := LoadConfigFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
