package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arale275/autix-sub003/client"
)

const (
	ctxSession = "auth_session"
	csrfKey    = "csrf_token"
	csrfField  = "csrf_token"
)

// SessionMiddleware hydrates a client.SessionStore from the request cookie
// and exposes it to handlers.
func (s *Server) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		storage := NewCookieStorage(s.cfg, s.store, c.Writer, c.Request)
		store := client.NewSessionStore(storage, s.log).WithTokenCheck(s.tokens.Inspect)
		if s.now != nil {
			store.WithClock(s.now)
		}
		store.Hydrate(c.Request.Context())
		c.Set(ctxSession, store)
		c.Next()
	}
}

// CSRFMiddleware issues and validates a per-session CSRF token.
func (s *Server) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.store.Get(c.Request, sessionName)
		if session == nil {
			s.log.Error("csrf session", "error", err)
			c.String(http.StatusInternalServerError, "session error")
			c.Abort()
			return
		}

		token, _ := session.Values[csrfKey].(string)
		if token == "" {
			token, err = generateCSRFToken()
			if err != nil {
				c.String(http.StatusInternalServerError, "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values[csrfKey] = token
			applySessionOptions(s.cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				c.String(http.StatusInternalServerError, "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) {
			sent := c.GetHeader("X-CSRF-Token")
			if sent == "" {
				sent = c.PostForm(csrfField)
			}
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				c.String(http.StatusForbidden, "invalid csrf token")
				c.Abort()
				return
			}
		}

		// Expose token so forms and scripts can reuse it.
		c.Set(csrfKey, token)
		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

// Guard applies client.Decide to the hydrated session.
func (s *Server) Guard(req client.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := client.Decide(sessionFrom(c).State(), req)
		switch d.Kind {
		case client.Allow:
			c.Next()
		case client.Pending:
			c.Header("Retry-After", "1")
			c.HTML(http.StatusServiceUnavailable, "loading.html", nil)
			c.Abort()
		default:
			c.Redirect(http.StatusFound, d.Path)
			c.Abort()
		}
	}
}

func sessionFrom(c *gin.Context) *client.SessionStore {
	v, _ := c.Get(ctxSession)
	store, _ := v.(*client.SessionStore)
	return store
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
