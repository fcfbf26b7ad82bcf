// Package session keeps the logged in user and the connection override in the
// local store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/store"
)

const (
	userKey   = "lark_user"
	configKey = "lark_config"

	// browserKeyPrefix namespaces the sessions of the HTTP backend.
	browserKeyPrefix = "lark_user:"

	// DefaultName is used when the login response carries no display name.
	DefaultName = "Lark User"
)

// ErrNoSession is returned when nobody is logged in.
var ErrNoSession = errors.New("not logged in")

// Session is the identity of the logged in user.
type Session struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	OpenID    string `json:"open_id,omitempty"`
}

// KV is the subset of the local store used here.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Current returns the logged in user, or ErrNoSession.
func (s *Store) Current(ctx context.Context) (*Session, error) {
	return s.load(ctx, userKey)
}

// Save replaces the current session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	return s.save(ctx, userKey, sess)
}

// Clear logs the user out.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, userKey)
}

// CurrentFor returns the session of one browser, identified by the id it was
// saved under. An empty id has no session.
func (s *Store) CurrentFor(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	return s.load(ctx, browserKey(id))
}

// SaveFor stores sess for the browser holding id.
func (s *Store) SaveFor(ctx context.Context, id string, sess Session) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	return s.save(ctx, browserKey(id), sess)
}

// ClearFor logs out one browser. Other sessions are kept.
func (s *Store) ClearFor(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.kv.Delete(ctx, browserKey(id))
}

func browserKey(id string) string {
	return browserKeyPrefix + id
}

func (s *Store) load(ctx context.Context, key string) (*Session, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) save(ctx context.Context, key string, sess Session) error {
	if sess.Name == "" {
		sess.Name = DefaultName
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.kv.Put(ctx, key, string(b))
}

// Connection returns defaults with the saved override applied.
func (s *Store) Connection(ctx context.Context, defaults config.Connection) (config.Connection, error) {
	raw, err := s.kv.Get(ctx, configKey)
	if errors.Is(err, store.ErrNotFound) {
		return defaults, nil
	}
	if err != nil {
		return defaults, err
	}
	return defaults.Merge([]byte(raw))
}

// SaveConnection persists conn as the override.
func (s *Store) SaveConnection(ctx context.Context, conn config.Connection) error {
	b, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}
	return s.kv.Put(ctx, configKey, string(b))
}

// ResetConnection drops the override so the defaults apply again.
func (s *Store) ResetConnection(ctx context.Context) error {
	return s.kv.Delete(ctx, configKey)
}
