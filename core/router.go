package core

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arale275/autix-sub003/auth"
)

// NewRouter constructs the Gin engine with routes wired. google may be nil
// when federated login is not configured, status when readiness is not probed.
func NewRouter(cfg Config, authService AuthService, tokens *auth.TokenService, google *GoogleLogin, status *StatusReporter, logger *slog.Logger) *gin.Engine {
	r := gin.New()

	// Global middleware: recovery -> request id -> access log -> origin/CORS
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Use(OriginRefererMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if status != nil {
		r.GET("/readyz", func(c *gin.Context) {
			st := status.Collect(c.Request.Context())
			code := http.StatusOK
			if !st.Ready {
				code = http.StatusServiceUnavailable
			}
			c.JSON(code, st)
		})
	}

	requireToken := BearerAuth(tokens, logger)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
				UserType string `json:"userType"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			userType, err := auth.ParseUserType(req.UserType)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "userType must be dealer or buyer")
				return
			}

			sess, err := authService.Register(c.Request.Context(), req.Email, req.Password, userType)
			switch {
			case err == nil:
				c.JSON(http.StatusCreated, sess)
			case errors.Is(err, ErrInvalidInput):
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			case errors.Is(err, ErrEmailTaken):
				respondError(c, http.StatusConflict, "EMAIL_TAKEN", "email already registered")
			default:
				logger.Error("register failed", "request_id", c.GetString(ctxRequestID), "error", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to register")
			}
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			sess, err := authService.Authenticate(c.Request.Context(), req.Email, req.Password)
			if errors.Is(err, ErrInvalidCredentials) {
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
				return
			}
			if err != nil {
				logger.Error("login failed", "request_id", c.GetString(ctxRequestID), "error", err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to login")
				return
			}
			c.JSON(http.StatusOK, sess)
		})

		api.GET("/auth/me", requireToken, func(c *gin.Context) {
			u, err := authService.Me(c.Request.Context(), claimsFrom(c))
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredentials) {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists")
				return
			}
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load user")
				return
			}
			c.JSON(http.StatusOK, gin.H{"user": u})
		})

		if google != nil {
			api.GET("/auth/google", google.Start)
			api.GET("/auth/google/callback", google.Callback)
		}

		ping := func(c *gin.Context) {
			claims := claimsFrom(c)
			c.JSON(http.StatusOK, gin.H{"status": "ok", "userId": claims.UserID, "userType": claims.UserType})
		}
		api.GET("/dealer/ping", requireToken, RequireUserType(auth.Dealer), ping)
		api.GET("/buyer/ping", requireToken, RequireUserType(auth.Buyer), ping)
	}

	return r
}
