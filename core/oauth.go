package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/arale275/autix-sub003/auth"
)

// CallbackErrorCode is the only error code the API sends back to the
// frontend callback; provider details stay in the logs.
const CallbackErrorCode = "google_auth_failed"

// googleProfile is the subset of the OpenID userinfo document used here.
type googleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// GoogleLogin runs the authorization-code flow against Google and hands the
// resulting session to the frontend callback page.
type GoogleLogin struct {
	oauth       *oauth2.Config
	userInfoURL string
	states      StateStore
	stateTTL    time.Duration
	svc         AuthService
	frontendURL string
	httpClient  *http.Client
	log         *slog.Logger
}

// NewGoogleLogin builds the flow from cfg. It returns nil when the provider is
// not configured.
func NewGoogleLogin(cfg Config, states StateStore, svc AuthService, logger *slog.Logger) *GoogleLogin {
	if !cfg.Google.Enabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleLogin{
		oauth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Google.AuthURL,
				TokenURL: cfg.Google.TokenURL,
			},
		},
		userInfoURL: cfg.Google.UserInfoURL,
		states:      states,
		stateTTL:    cfg.OAuthStateTTL,
		svc:         svc,
		frontendURL: cfg.FrontendURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         logger,
	}
}

// Start redirects the browser to the provider. The requested user type (for
// accounts created by this login) travels in the state store, not the URL.
func (g *GoogleLogin) Start(c *gin.Context) {
	userType := auth.Buyer
	if raw := c.Query("userType"); raw != "" {
		t, err := auth.ParseUserType(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "userType must be dealer or buyer")
			return
		}
		userType = t
	}

	state, err := newState()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to start login")
		return
	}
	if err := g.states.Save(c.Request.Context(), state, string(userType), g.stateTTL); err != nil {
		g.log.Error("save oauth state", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to start login")
		return
	}
	c.Redirect(http.StatusFound, g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// Callback completes the flow and redirects to the frontend callback with
// either token and user or error.
func (g *GoogleLogin) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	reqID := c.GetString(ctxRequestID)

	// The state is spent on every callback, including provider errors.
	payload, err := g.states.Consume(ctx, c.Query("state"))
	if e := c.Query("error"); e != "" {
		g.log.Warn("provider returned error", "request_id", reqID, "error", e, "description", c.Query("error_description"))
		g.fail(c)
		return
	}
	if err != nil {
		g.log.Warn("oauth state rejected", "request_id", reqID, "error", err)
		g.fail(c)
		return
	}
	userType, err := auth.ParseUserType(payload)
	if err != nil {
		userType = auth.Buyer
	}

	code := c.Query("code")
	if code == "" {
		g.log.Warn("callback without code", "request_id", reqID)
		g.fail(c)
		return
	}

	profile, err := g.fetchProfile(ctx, code)
	if err != nil {
		g.log.Warn("google login failed", "request_id", reqID, "error", err)
		g.fail(c)
		return
	}

	sess, err := g.svc.FederatedLogin(ctx, FederatedIdentity{Subject: profile.Sub, Email: profile.Email, UserType: userType})
	if err != nil {
		g.log.Warn("federated login rejected", "request_id", reqID, "error", err)
		g.fail(c)
		return
	}

	user, err := json.Marshal(sess.User)
	if err != nil {
		g.fail(c)
		return
	}
	q := url.Values{}
	q.Set("token", sess.Token)
	q.Set("user", string(user))
	g.log.Info("google login", "request_id", reqID, "user_id", sess.User.ID)
	c.Redirect(http.StatusFound, g.frontendURL+"/auth/callback?"+q.Encode())
}

func (g *GoogleLogin) fail(c *gin.Context) {
	c.Redirect(http.StatusFound, g.frontendURL+"/auth/callback?error="+CallbackErrorCode)
}

func (g *GoogleLogin) fetchProfile(ctx context.Context, code string) (*googleProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	var p googleProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if p.Sub == "" || p.Email == "" {
		return nil, errors.New("userinfo missing sub or email")
	}
	if !p.EmailVerified {
		return nil, errors.New("email not verified")
	}
	return &p, nil
}
