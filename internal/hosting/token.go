package hosting

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "hangar/pkg/domain-errors"
)

// TokenSource supplies a valid bearer credential on demand. The platform
// client never mints tokens itself; auth is a collaborator concern.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static returns a source that always yields the same token. Used for
// long-lived service tokens and in tests.
func Static(token string) TokenSource {
	return staticSource(token)
}

type staticSource string

func (s staticSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "static token cannot be empty")
	}
	return string(s), nil
}

// TokenFunc adapts a closure into a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

const (
	defaultTokenSkew = 30 * time.Second
	// Lifetime assumed for tokens whose expiry cannot be read.
	opaqueTokenLifetime = 5 * time.Minute
)

// CachingTokenSource caches a minted token until shortly before its JWT exp
// claim, then refreshes from the inner source. Tokens without a readable
// exp are cached for a short fixed lifetime. Safe for concurrent use.
type CachingTokenSource struct {
	mu     sync.Mutex
	source TokenSource
	skew   time.Duration
	now    func() time.Time

	token  string
	expiry time.Time
}

// CachingOption configures a CachingTokenSource.
type CachingOption func(*CachingTokenSource)

// WithSkew refreshes the token this long before its expiry.
func WithSkew(d time.Duration) CachingOption {
	return func(c *CachingTokenSource) {
		if d > 0 {
			c.skew = d
		}
	}
}

// WithTokenClock injects a time source for tests.
func WithTokenClock(now func() time.Time) CachingOption {
	return func(c *CachingTokenSource) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCachingTokenSource wraps source with expiry-aware caching.
func NewCachingTokenSource(source TokenSource, opts ...CachingOption) (*CachingTokenSource, error) {
	if source == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token source is required")
	}
	c := &CachingTokenSource{
		source: source,
		skew:   defaultTokenSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the cached token while it remains fresh, minting a new one
// otherwise.
func (c *CachingTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-c.skew)) {
		return c.token, nil
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "mint access token")
	}
	c.token = token
	c.expiry = c.readExpiry(token)
	return token, nil
}

// readExpiry extracts the exp claim without verifying the signature. The
// engine is a token consumer, not its validator; only the refresh moment
// matters here.
func (c *CachingTokenSource) readExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return c.now().Add(opaqueTokenLifetime)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return c.now().Add(opaqueTokenLifetime)
	}
	return exp.Time
}
