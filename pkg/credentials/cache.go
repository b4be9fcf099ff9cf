// Package credentials caches the access credential shared by every service client.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrNotFound is returned by a Store that holds no credential
	ErrNotFound = errors.New("credential not found")

	// ErrNoCredential is returned when no credential could be obtained
	ErrNoCredential = errors.New("no credential available")
)

const (
	// DefaultSkew refreshes a credential this long before it expires
	DefaultSkew = 60 * time.Second

	// DefaultRefreshEvery forces a refresh after this many Token calls
	DefaultRefreshEvery = 500

	refreshAbsent  = "absent"
	refreshExpired = "expired"
	refreshCadence = "cadence"
	refreshForced  = "forced"
)

// Credential is an access token and its expiry
type Credential struct {
	Value     string `json:"token"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// IsExpired reports whether the credential expires within skew of now
func (c *Credential) IsExpired(now time.Time, skew time.Duration) bool {
	if c == nil || c.Value == "" {
		return true
	}
	if c.ExpiresAt == 0 {
		return false
	}
	return now.Add(skew).Unix() >= c.ExpiresAt
}

// AuthorizationHeader formats the credential for an Authorization header
func (c *Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.Value
}

// Provider obtains a fresh credential from the identity provider
type Provider interface {
	Token(ctx context.Context) (*Credential, error)
}

// Store shares credentials between instances. Get returns ErrNotFound when empty.
type Store interface {
	Get(ctx context.Context) (*Credential, error)
	Set(ctx context.Context, cred *Credential, ttl time.Duration) error
}

// Config configures the refresh policy
type Config struct {
	Skew         time.Duration
	RefreshEvery int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Skew:         DefaultSkew,
		RefreshEvery: DefaultRefreshEvery,
	}
}

// Cache hands out the current credential, refreshing it when it is absent,
// about to expire, or after RefreshEvery calls. Safe for concurrent use.
type Cache struct {
	provider Provider
	store    Store
	logger   ectologger.Logger
	config   Config
	now      func() time.Time

	mu      sync.Mutex
	current *Credential
	calls   int
}

// NewCache creates a new credential cache. store may be nil.
func NewCache(provider Provider, store Store, logger ectologger.Logger, config Config) *Cache {
	if config.Skew < 0 {
		config.Skew = 0
	}
	return &Cache{
		provider: provider,
		store:    store,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Token returns a valid credential
func (c *Cache) Token(ctx context.Context) (*Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	var reason string
	switch {
	case c.current == nil:
		reason = refreshAbsent
	case c.current.IsExpired(c.now(), c.config.Skew):
		reason = refreshExpired
	case c.config.RefreshEvery > 0 && c.calls >= c.config.RefreshEvery:
		reason = refreshCadence
	default:
		return c.current, nil
	}

	return c.refresh(ctx, reason)
}

// Refresh forces a new credential from the provider
func (c *Cache) Refresh(ctx context.Context) (*Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx, refreshForced)
}

// Invalidate drops the current credential
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// refresh must be called with the lock held
func (c *Cache) refresh(ctx context.Context, reason string) (*Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "CredentialCache.refresh")
	defer span.End()

	if reason == refreshAbsent && c.store != nil {
		shared, err := c.store.Get(ctx)
		if err == nil && !shared.IsExpired(c.now(), c.config.Skew) {
			c.logger.WithContext(ctx).Debug("using shared credential")
			c.current = shared
			c.calls = 0
			metrics.RecordCredentialRefresh("shared", "success")
			return shared, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to read shared credential")
		}
	}

	cred, err := c.provider.Token(ctx)
	if err != nil || cred == nil || cred.Value == "" {
		metrics.RecordCredentialRefresh(reason, "failure")
		if err == nil {
			err = ErrNoCredential
		}
		tracing.RecordError(span, err)
		// a cadence refresh may fail while the current credential is still usable
		if c.current != nil && !c.current.IsExpired(c.now(), 0) {
			c.logger.WithContext(ctx).WithError(err).Warn("credential refresh failed, keeping current credential")
			c.calls = 0
			return c.current, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}

	if cred.CreatedAt == 0 {
		cred.CreatedAt = c.now().Unix()
	}
	c.current = cred
	c.calls = 0
	metrics.RecordCredentialRefresh(reason, "success")
	c.logger.WithContext(ctx).WithField("reason", reason).Debug("refreshed credential")

	if c.store != nil {
		if err := c.store.Set(ctx, cred, c.ttl(cred)); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to share credential")
		}
	}

	return cred, nil
}

func (c *Cache) ttl(cred *Credential) time.Duration {
	if cred.ExpiresAt > 0 {
		remaining := time.Unix(cred.ExpiresAt, 0).Sub(c.now()) - c.config.Skew
		if remaining > 0 {
			return remaining
		}
	}
	return time.Hour
}

type credentialKey struct{}

// WithCredential attaches a credential to the context
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// FromContext returns the credential attached to the context, if any
func FromContext(ctx context.Context) (*Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(*Credential)
	return cred, ok && cred != nil
}
