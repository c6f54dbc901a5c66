package credential

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

const (
	cacheKey    = "gateway_access_token"
	DefaultSkew = time.Minute
)

// Exchanger issues a new credential on every call.
type Exchanger interface {
	Exchange(ctx context.Context) (*oauth2.Token, error)
}

// TokenSource yields a bearer token for the push gateway.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that can drop a credential the
// gateway refused.
type Invalidator interface {
	Invalidate()
}

// CachedSource is the process-wide credential cache. A cached token is served
// until skew before its expiry. Refreshes run without a lock; when two
// callers refresh at once the later write wins.
type CachedSource struct {
	exchanger Exchanger
	cache     *cache.Cache
	skew      time.Duration
	now       func() time.Time
}

// NewCachedSource wraps the exchanger. A negative skew is treated as zero.
func NewCachedSource(exchanger Exchanger, skew time.Duration) *CachedSource {
	if skew < 0 {
		skew = 0
	}
	return &CachedSource{
		exchanger: exchanger,
		cache:     cache.New(cache.NoExpiration, 10*time.Minute),
		skew:      skew,
		now:       time.Now,
	}
}

// Token returns the cached token or issues a new one.
func (c *CachedSource) Token(ctx context.Context) (string, error) {
	if v, found := c.cache.Get(cacheKey); found {
		if tok := v.(*oauth2.Token); c.fresh(tok) {
			return tok.AccessToken, nil
		}
	}

	tok, err := c.exchanger.Exchange(ctx)
	if err != nil {
		return "", err
	}
	c.cache.Set(cacheKey, tok, cache.NoExpiration)
	return tok.AccessToken, nil
}

// fresh mirrors oauth2.Token.Valid with the source's clock and skew: a token
// without an expiry never goes stale.
func (c *CachedSource) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return c.now().Before(tok.Expiry.Add(-c.skew))
}

// Invalidate drops the cached token. The next Token call issues a new one.
func (c *CachedSource) Invalidate() {
	c.cache.Delete(cacheKey)
}
