package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/arale275/autix-sub003/auth"
	"github.com/arale275/autix-sub003/client"
	"github.com/arale275/autix-sub003/core"
)

const sessionName = "autix_session"

// sessionMaxAge matches the lifetime of the token stored in the cookie.
var sessionMaxAge = int(auth.SessionTTL.Seconds())

// CookieStorage persists the client session pair in a signed cookie. It is
// bound to one request/response pair.
type CookieStorage struct {
	cfg   core.Config
	store sessions.Store
	w     http.ResponseWriter
	r     *http.Request
}

var _ client.Storage = (*CookieStorage)(nil)

func NewCookieStorage(cfg core.Config, store sessions.Store, w http.ResponseWriter, r *http.Request) *CookieStorage {
	return &CookieStorage{cfg: cfg, store: store, w: w, r: r}
}

// Load returns the stored pair, or client.ErrNoSession when the cookie holds
// neither field. A cookie that fails signature checks is an error.
func (s *CookieStorage) Load(_ context.Context) (string, string, error) {
	sess, err := s.store.Get(s.r, sessionName)
	if err != nil {
		return "", "", fmt.Errorf("read session cookie: %w", err)
	}
	token, _ := sess.Values[client.KeyToken].(string)
	user, _ := sess.Values[client.KeyUser].(string)
	if token == "" && user == "" {
		return "", "", client.ErrNoSession
	}
	return token, user, nil
}

// Save writes both fields in a single Set-Cookie.
func (s *CookieStorage) Save(_ context.Context, token, user string) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	sess.Values[client.KeyToken] = token
	sess.Values[client.KeyUser] = user
	applySessionOptions(s.cfg, sess)
	return sess.Save(s.r, s.w)
}

// Clear deletes the cookie.
func (s *CookieStorage) Clear(_ context.Context) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(s.cfg, sess)
	sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	return sess.Save(s.r, s.w)
}

// session returns the request's session. A cookie that could not be decoded
// yields a fresh session that overwrites it on save.
func (s *CookieStorage) session() (*sessions.Session, error) {
	sess, err := s.store.Get(s.r, sessionName)
	if sess == nil {
		return nil, err
	}
	return sess, nil
}

func applySessionOptions(cfg core.Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
