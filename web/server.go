// Package web serves the browser-facing pages. Each request hydrates a
// client.SessionStore from a signed cookie, and guarded pages route on the
// resulting state.
package web

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"

	"github.com/arale275/autix-sub003/auth"
	"github.com/arale275/autix-sub003/client"
	"github.com/arale275/autix-sub003/core"
)

//go:embed templates/*.html
var templateFS embed.FS

// Error codes carried on /login?error= and /register?error= besides the
// callback codes.
const (
	codeInvalidCredentials = "invalid_credentials"
	codeEmailTaken         = "email_taken"
	codeInvalidInput       = "invalid_input"
	codeUnavailable        = "unavailable"
)

var errorMessages = map[string]string{
	client.CodeProviderFailed:  "Google sign-in failed. Please try again.",
	client.CodeMissingData:     "Sign-in could not be completed. Please try again.",
	client.CodeInvalidResponse: "Sign-in could not be completed. Please try again.",
	codeInvalidCredentials:     "Invalid email or password.",
	codeEmailTaken:             "An account with this email already exists.",
	codeInvalidInput:           "Please enter a valid email and a password of at least 8 characters.",
	codeUnavailable:            "The service is unavailable. Please try again later.",
}

// Server renders the frontend.
type Server struct {
	cfg    core.Config
	store  sessions.Store
	api    *APIClient
	log    *slog.Logger
	now    func() time.Time
	tokens *auth.TokenService
}

func NewServer(cfg core.Config, store sessions.Store, api *APIClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, store: store, api: api, log: logger}
}

// WithClock replaces the time source used to check token expiry.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Router builds the gin engine serving all pages.
func (s *Server) Router() (*gin.Engine, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	// Tokens reaching this process come from the API, which signs with the
	// same secret.
	s.tokens, err = auth.NewTokenServiceWithClock(s.cfg.JWTSecret, s.now)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(core.RequestID())
	r.Use(core.RequestLogger(s.log))
	r.SetHTMLTemplate(tmpl)

	// session -> CSRF: hydration may rewrite the cookie before a token is issued
	r.Use(s.SessionMiddleware())
	r.Use(s.CSRFMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/", s.Guard(client.Public), s.home)
	r.GET("/login", s.Guard(client.GuestView), s.loginForm)
	r.POST("/login", s.Guard(client.GuestView), s.login)
	r.GET("/register", s.Guard(client.GuestView), s.registerForm)
	r.POST("/register", s.Guard(client.GuestView), s.register)
	r.POST("/logout", s.logout)
	r.GET("/auth/google", s.Guard(client.GuestView), s.googleStart)
	r.GET("/auth/callback", s.callback)
	r.GET("/dashboard", s.Guard(client.Protected), s.dashboard)
	r.GET(client.DealerHome, s.Guard(client.DealerArea), s.area("dealer.html"))
	r.GET(client.BuyerHome, s.Guard(client.BuyerArea), s.area("buyer.html"))

	return r, nil
}

type pageData struct {
	State client.AuthState
	CSRF  string
	Error string
}

func (s *Server) page(c *gin.Context) pageData {
	return pageData{
		State: sessionFrom(c).State(),
		CSRF:  c.GetString(csrfKey),
		Error: errorMessages[c.Query("error")],
	}
}

func (s *Server) home(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", s.page(c))
}

func (s *Server) loginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", s.page(c))
}

func (s *Server) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	sess, err := s.api.Login(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		code := codeUnavailable
		if errors.Is(err, core.ErrInvalidCredentials) {
			code = codeInvalidCredentials
		} else {
			s.log.Error("login via api failed", "error", err)
		}
		c.Redirect(http.StatusFound, client.LoginErrorPath(code))
		return
	}
	sessionFrom(c).Login(c.Request.Context(), sess.User, sess.Token)
	c.Redirect(http.StatusFound, client.HomeFor(sess.User.UserType))
}

func (s *Server) registerForm(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", s.page(c))
}

func (s *Server) register(c *gin.Context) {
	userType, err := auth.ParseUserType(c.PostForm("userType"))
	if err != nil {
		c.Redirect(http.StatusFound, "/register?error="+codeInvalidInput)
		return
	}
	sess, err := s.api.Register(c.Request.Context(), strings.TrimSpace(c.PostForm("email")), c.PostForm("password"), userType)
	if err != nil {
		code := codeUnavailable
		switch {
		case errors.Is(err, core.ErrEmailTaken):
			code = codeEmailTaken
		case errors.Is(err, core.ErrInvalidInput):
			code = codeInvalidInput
		default:
			s.log.Error("register via api failed", "error", err)
		}
		c.Redirect(http.StatusFound, "/register?error="+code)
		return
	}
	sessionFrom(c).Login(c.Request.Context(), sess.User, sess.Token)
	c.Redirect(http.StatusFound, client.HomeFor(sess.User.UserType))
}

func (s *Server) logout(c *gin.Context) {
	sessionFrom(c).Logout(c.Request.Context())
	c.Redirect(http.StatusFound, client.LoginPath)
}

func (s *Server) googleStart(c *gin.Context) {
	userType, _ := auth.ParseUserType(c.Query("userType"))
	c.Redirect(http.StatusFound, s.api.GoogleStartURL(userType))
}

func (s *Server) callback(c *gin.Context) {
	cb := client.NewCallback(client.ParamsFromQuery(c.Request.URL.Query()), sessionFrom(c), s.log).
		WithTokenCheck(s.tokens.Inspect)
	d, ok := cb.Handle(c.Request.Context())
	if !ok {
		// the browser went away before the outcome was applied
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, d.Path)
}

func (s *Server) dashboard(c *gin.Context) {
	c.Redirect(http.StatusFound, client.HomeFor(sessionFrom(c).State().User.UserType))
}

func (s *Server) area(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, name, s.page(c))
	}
}
