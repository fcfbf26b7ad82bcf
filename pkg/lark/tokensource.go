package lark

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenEarlyExpiry is how long before the server-side expiry a cached tenant
// token is considered stale.
const tokenEarlyExpiry = 60 * time.Second

var now = time.Now

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// fresh reports whether tok can still be handed out. Tokens without an expiry
// never go stale.
func fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || now().Add(tokenEarlyExpiry).Before(tok.Expiry)
}

// TokenCache issues tenant tokens and reuses them per app until they are
// close to expiry.
type TokenCache struct {
	client *Client

	mu     sync.Mutex
	tokens map[[2]string]*oauth2.Token
}

func NewTokenCache(c *Client) *TokenCache {
	return &TokenCache{client: c, tokens: map[[2]string]*oauth2.Token{}}
}

// TenantAccessToken returns a cached token for the app or issues a new one
// under ctx. Concurrent misses may each issue a token; the last one is kept.
func (tc *TokenCache) TenantAccessToken(ctx context.Context, appID, appSecret string) (string, error) {
	key := [2]string{appID, appSecret}
	tc.mu.Lock()
	tok := tc.tokens[key]
	tc.mu.Unlock()
	if fresh(tok) {
		return tok.AccessToken, nil
	}

	tok, err := tc.client.tenantToken(ctx, appID, appSecret)
	if err != nil {
		return "", err
	}
	tc.mu.Lock()
	tc.tokens[key] = tok
	tc.mu.Unlock()
	return tok.AccessToken, nil
}
