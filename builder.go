package nexauth

import (
	"errors"

	"github.com/nexhub/nexauth/password"
	"github.com/nexhub/nexauth/recovery"
	"github.com/nexhub/nexauth/token"
	"github.com/nexhub/nexauth/totpvault"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. The binding graph is constructed once at
// startup and the resulting Engine is passed down; nothing is resolved
// per request.
type Builder struct {
	config Config

	redis  redis.UniversalClient
	store  UserStore
	mailer Mailer
	sink   AuditSink

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the default configuration. Zero-valued secret
// fields are not defaulted; Build fails without them.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the pending-token deny-list and
// the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential store collaborator.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the mail-sending collaborator.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the destination for audit events. Defaults to a
// NoOpSink when auditing is enabled without a sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, constructs every subcomponent, and
// returns the immutable Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("user store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	tokens, err := token.New(b.config.Token)
	if err != nil {
		return nil, err
	}
	passwords, err := password.New(b.config.Password)
	if err != nil {
		return nil, err
	}
	vault, err := totpvault.New(b.config.TOTP)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    b.config,
		store:     b.store,
		mailer:    b.mailer,
		tokens:    tokens,
		passwords: passwords,
		vault:     vault,
		recovery: recovery.New(recovery.Config{
			Count:  b.config.Recovery.Count,
			Length: b.config.Recovery.Length,
		}, passwords),
		pending: newPendingTokenStore(b.redis),
		limiter: newLoginLimiter(b.redis, b.config.LoginThrottle),
		audit:   newAuditDispatcher(b.config.Audit, b.sink),
		metrics: newMetricsRegistry(),
	}

	b.built = true
	return engine, nil
}
