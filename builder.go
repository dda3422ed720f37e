package goGuard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/revocation"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config    Config
	store     revocation.Store
	resolver  identity.Resolver
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRevocationStore sets the store consulted for blacklisted token ids.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.store = store
	return b
}

// WithIdentityResolver sets the lookup used to load token subjects.
func (b *Builder) WithIdentityResolver(resolver identity.Resolver) *Builder {
	b.resolver = resolver
	return b
}

// WithLogger sets the engine logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. It only takes effect with Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used to issue and check tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("revocation store required")
	}
	if b.resolver == nil {
		return nil, errors.New("identity resolver required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: cfg.JWT.SigningMethod,
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		jwt:      jm,
		store:    b.store,
		resolver: b.resolver,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger.With("component", "goguard"),
		now:      now,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, b.auditSink)

	engine.flows = flows.Deps{
		Validate: flows.ValidateDeps{
			Decode: func(token string) (*jwt.Claims, error) {
				return jm.Decode(token, jwt.KindAccess)
			},
			IsBlacklisted: engine.isBlacklisted,
			FindIdentity:  engine.findIdentity,
			Transport: flows.TransportPolicy{
				Enforce:         cfg.Mode == ModeProduction,
				RequiredHeaders: cfg.Transport.RequiredHeaders,
			},
		},
		Refresh: flows.RefreshDeps{
			Decode: func(token string) (*jwt.Claims, error) {
				return jm.Decode(token, jwt.KindRefresh)
			},
			IsBlacklisted:        engine.isBlacklisted,
			FindIdentity:         engine.findIdentity,
			IssueAccess:          engine.issueAccess,
			RecordAccess:         engine.recordAccess,
			SkipRevocationChecks: cfg.Refresh.SkipRevocationChecks,
		},
	}

	b.built = true

	return engine, nil
}
