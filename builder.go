package authsession

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
	"github.com/MrEthical07/authsession/storage"
)

// Builder assembles a Client.
//
// Builder instances are single-use: Build may succeed once.
type Builder struct {
	config Config

	backend   storage.Store
	redis     redis.UniversalClient
	transport http.RoundTripper
	auditSink AuditSink
	logger    *log.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; later With* calls adjust it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage supplies the persistent store directly. Storage.Backend is then
// ignored and the caller keeps ownership of store.
func (b *Builder) WithStorage(store storage.Store) *Builder {
	b.backend = store
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis persists the session in Redis through client, under
// Storage.Namespace. The caller keeps ownership of client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTransport sets the RoundTripper used for every remote call. The default
// is a clone of http.DefaultTransport.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink enables the audit trail and delivers it to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger replaces the standard logger.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens storage and returns a Client in
// the Loading phase. Call Client.Restore next.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.backend != nil || b.redis != nil {
		// Backend-specific requirements do not apply to an injected store.
		probe := cfg
		probe.Storage.Backend = BackendMemory
		if err := probe.Validate(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	origin, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil {
		return nil, err
	}

	inspector, err := jwt.NewInspector(jwt.InspectorConfig{
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		VerifyKey:     []byte(cfg.Token.VerifyKey),
	})
	if err != nil {
		return nil, err
	}

	// -------- STORAGE --------
	var closers []func() error
	backend := b.backend
	switch {
	case backend != nil:
	case b.redis != nil:
		backend, err = newRedisStorage(b.redis, cfg.Storage)
		if err != nil {
			return nil, err
		}
	default:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		opened, closeFn, err := OpenStorage(ctx, cfg.Storage)
		cancel()
		if err != nil {
			return nil, err
		}
		backend = opened
		closers = append(closers, closeFn)
	}

	// -------- TRANSPORT --------
	transport := b.transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	gw := &gateway{
		http:      &http.Client{Transport: transport, Timeout: cfg.Remote.Timeout},
		baseURL:   cfg.Remote.BaseURL,
		paths:     cfg.Remote.Paths,
		userAgent: cfg.Remote.UserAgent,
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	client := &Client{
		config:    cfg,
		gateway:   gw,
		inspector: inspector,
		transport: transport,
		origin:    origin,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		closers:   closers,
	}

	// -------- SESSION STORE --------
	store, err := session.NewStore(backend, session.Options{
		Keys:    cfg.Storage.Keys,
		Revoker: gw,
		Hooks:   client.sessionHooks(),
	})
	if err != nil {
		for _, closeFn := range closers {
			_ = closeFn()
		}
		return nil, err
	}
	client.session = store

	client.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	client.flows = flows.Deps{
		Renewal: flows.RenewalDeps{
			Snapshot:   store.Snapshot,
			Exchange:   gw.refresh,
			Rotate:     store.Rotate,
			Invalidate: store.Invalidate,
			Warn:       logger.Printf,
		},
	}

	b.built = true

	return client, nil
}
