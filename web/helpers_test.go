package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/arale275/autix-sub003/auth"
	"github.com/arale275/autix-sub003/core"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var issuedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenServiceWithClock("web-secret", func() time.Time { return issuedAt })
	require.NoError(t, err)
	return tokens
}

var (
	buyerUser  = auth.User{ID: 3, Email: "buyer@example.com", UserType: auth.Buyer}
	dealerUser = auth.User{ID: 5, Email: "dealer@example.com", UserType: auth.Dealer}
)

// newFakeAPI serves the auth endpoints the frontend calls.
func newFakeAPI(t *testing.T, tokens *auth.TokenService) *httptest.Server {
	t.Helper()
	writeErr := func(w http.ResponseWriter, status int, code string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": code}})
	}
	writeSession := func(w http.ResponseWriter, status int, u auth.User) {
		token, err := tokens.Issue(u)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(core.Session{Token: token, User: u})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.Email == buyerUser.Email && req.Password == "correct horse":
			writeSession(w, http.StatusOK, buyerUser)
		case req.Email == "broken@example.com":
			writeErr(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR")
		default:
			writeErr(w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
		}
	})
	mux.HandleFunc("/api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			UserType string `json:"userType"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.Email == "taken@example.com":
			writeErr(w, http.StatusConflict, "EMAIL_TAKEN")
		case len(req.Password) < 8:
			writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR")
		default:
			writeSession(w, http.StatusCreated, auth.User{ID: 7, Email: req.Email, UserType: auth.UserType(req.UserType)})
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testSite struct {
	cfg    core.Config
	tokens *auth.TokenService
	api    *httptest.Server
	clock  *clock
	router *gin.Engine
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	tokens := testTokens(t)
	api := newFakeAPI(t, tokens)

	cfg := core.Defaults()
	cfg.JWTSecret = "web-secret"
	cfg.SessionKey = "0123456789abcdef0123456789abcdef"
	cfg.APIURL = api.URL

	clk := &clock{now: issuedAt.Add(time.Hour)}
	srv := NewServer(cfg, sessions.NewCookieStore([]byte(cfg.SessionKey)), NewAPIClient(cfg.APIURL, api.Client()), discardLogger()).
		WithClock(clk.Now)
	router, err := srv.Router()
	require.NoError(t, err)
	return &testSite{cfg: cfg, tokens: tokens, api: api, clock: clk, router: router}
}

// browser keeps cookies and the CSRF token between requests.
type browser struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
	csrf    string
}

func (s *testSite) browser(t *testing.T) *browser {
	return &browser{t: t, h: s.router, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range b.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	b.h.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck
	}
	if tok := w.Header().Get("X-CSRF-Token"); tok != "" {
		b.csrf = tok
	}
	return w
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil)
}

// post submits form with the current CSRF token, fetching one first if needed.
func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.csrf == "" {
		b.get("/")
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set(csrfField, b.csrf)
	return b.do(http.MethodPost, target, form)
}

func callbackURL(token string, u auth.User) string {
	userJSON, _ := json.Marshal(u)
	q := url.Values{}
	q.Set("token", token)
	q.Set("user", string(userJSON))
	return "/auth/callback?" + q.Encode()
}
