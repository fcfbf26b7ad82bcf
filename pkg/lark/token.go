package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// UserToken is the result of exchanging an authorization code.
type UserToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatar_url"`
	OpenID       string `json:"open_id"`
}

// UserInfo is the profile of the logged in user.
type UserInfo struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	OpenID    string `json:"open_id"`
	Email     string `json:"email"`
}

// TenantAccessToken issues an application-level token for appID. The token is
// returned exactly as the server sent it.
func (c *Client) TenantAccessToken(ctx context.Context, appID, appSecret string) (string, error) {
	tok, err := c.tenantToken(ctx, appID, appSecret)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *Client) tenantToken(ctx context.Context, appID, appSecret string) (*oauth2.Token, error) {
	body := map[string]string{"app_id": appID, "app_secret": appSecret}
	env, err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/v3/tenant_access_token/internal", body)
	if err != nil {
		return nil, fmt.Errorf("tenant access token: %w", err)
	}
	if env.Code != 0 {
		return nil, &AuthError{Code: env.Code, Msg: env.Msg}
	}
	tok := &oauth2.Token{AccessToken: env.TenantAccessToken, TokenType: "Bearer"}
	if env.Expire > 0 {
		tok.Expiry = now().Add(secondsToDuration(env.Expire))
	}
	return tok, nil
}

// AuthorizationURL builds the URL the user is sent to for login. state should
// be a fresh random value that the callback checks.
func (c *Client) AuthorizationURL(appID, redirectURI, state string) string {
	cfg := oauth2.Config{
		ClientID:    appID,
		RedirectURL: redirectURI,
		Scopes:      []string{LoginScope},
		Endpoint:    oauth2.Endpoint{AuthURL: c.authorizeURL},
	}
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("app_id", appID))
}

// ExchangeCode trades an authorization code for a user token. The exchange
// itself is authenticated with a freshly issued tenant token.
func (c *Client) ExchangeCode(ctx context.Context, code, appID, appSecret string) (*UserToken, error) {
	tenant, err := c.TenantAccessToken(ctx, appID, appSecret)
	if err != nil {
		return nil, err
	}

	body := map[string]string{"grant_type": "authorization_code", "code": code}
	env, err := c.do(ctx, c.bearer(ctx, tenant), http.MethodPost, "/authen/v1/oidc/access_token", body)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if env.Code != 0 {
		return nil, &AuthError{Code: env.Code, Msg: env.Msg}
	}

	var tok UserToken
	if err := json.Unmarshal(env.Data, &tok); err != nil {
		return nil, fmt.Errorf("exchange code: decode data: %w", err)
	}
	return &tok, nil
}

// UserInfo fetches the profile behind a user access token.
func (c *Client) UserInfo(ctx context.Context, userAccessToken string) (*UserInfo, error) {
	env, err := c.do(ctx, c.bearer(ctx, userAccessToken), http.MethodGet, "/authen/v1/user_info", nil)
	if err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	if env.Code != 0 {
		return nil, &AuthError{Code: env.Code, Msg: env.Msg}
	}

	var info UserInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("user info: decode data: %w", err)
	}
	return &info, nil
}
