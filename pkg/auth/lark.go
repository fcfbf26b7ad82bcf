package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/session"
)

// CallbackPath is where Lark redirects after login.
const CallbackPath = "/callback"

// Authenticator is the part of the Lark client used for login.
type Authenticator interface {
	AuthorizationURL(appID, redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, appID, appSecret string) (*lark.UserToken, error)
	UserInfo(ctx context.Context, userAccessToken string) (*lark.UserInfo, error)
}

// CompleteLogin exchanges code and returns the session to store. The profile
// endpoint is only asked when the exchange carries no name.
func CompleteLogin(ctx context.Context, client Authenticator, conn config.Connection, code string) (session.Session, error) {
	tok, err := client.ExchangeCode(ctx, code, conn.AppID, conn.AppSecret)
	if err != nil {
		return session.Session{}, err
	}
	sess := session.Session{Name: tok.Name, AvatarURL: tok.AvatarURL, OpenID: tok.OpenID}
	if sess.Name == "" && tok.AccessToken != "" {
		if info, err := client.UserInfo(ctx, tok.AccessToken); err == nil {
			sess.Name, sess.AvatarURL, sess.OpenID = info.Name, info.AvatarURL, info.OpenID
		}
	}
	if sess.Name == "" {
		sess.Name = session.DefaultName
	}
	return sess, nil
}

// BrowserLogin runs the Lark login from a terminal.
type BrowserLogin struct {
	Client  Authenticator
	Port    int
	Timeout time.Duration
	// Out receives the URL the user has to open.
	Out    io.Writer
	Logger *slog.Logger
}

// Run waits for the redirect on a loopback server and returns the session.
func (b *BrowserLogin) Run(ctx context.Context, conn config.Connection) (session.Session, error) {
	if conn.AppID == "" || conn.AppSecret == "" {
		return session.Session{}, fmt.Errorf("lark app id and secret must be configured before logging in")
	}

	state := NewState()
	srv, err := ListenCallback(b.Port, CallbackPath, state, b.Logger)
	if err != nil {
		return session.Session{}, err
	}
	defer srv.Close()

	authURL := b.Client.AuthorizationURL(conn.AppID, srv.RedirectURL(), state)
	fmt.Fprintf(b.Out, "Open the following URL in your browser to log in with Lark:\n%s\n", authURL)

	code, err := srv.Wait(ctx, b.Timeout)
	if err != nil {
		return session.Session{}, err
	}
	return CompleteLogin(ctx, b.Client, conn, code)
}
