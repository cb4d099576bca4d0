package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arale275/autix-sub003/auth"
	"github.com/arale275/autix-sub003/core"
)

// APIError is a non-2xx answer from the API in the {"error":{code,message}} envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// APIClient talks to the auth endpoints of the API server.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient returns a client for the API at base. hc may be nil.
func NewAPIClient(base string, hc *http.Client) *APIClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{base: strings.TrimRight(base, "/"), http: hc}
}

// Login exchanges credentials for a session. Wrong credentials yield
// core.ErrInvalidCredentials.
func (a *APIClient) Login(ctx context.Context, email, password string) (core.Session, error) {
	return a.session(ctx, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

// Register creates an account. A taken email yields core.ErrEmailTaken and a
// rejected field core.ErrInvalidInput.
func (a *APIClient) Register(ctx context.Context, email, password string, userType auth.UserType) (core.Session, error) {
	return a.session(ctx, "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"userType": string(userType),
	})
}

// GoogleStartURL is where the browser goes to begin federated login.
func (a *APIClient) GoogleStartURL(userType auth.UserType) string {
	u := a.base + "/api/v1/auth/google"
	if userType.Valid() {
		u += "?userType=" + string(userType)
	}
	return u
}

func (a *APIClient) session(ctx context.Context, path string, body any) (core.Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(payload))
	if err != nil {
		return core.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return core.Session{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Session{}, err
	}
	if resp.StatusCode >= 300 {
		return core.Session{}, decodeAPIError(resp.StatusCode, data)
	}

	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return core.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Token == "" || sess.User.ID <= 0 || !sess.User.UserType.Valid() {
		return core.Session{}, errors.New("api returned an incomplete session")
	}
	return sess, nil
}

func decodeAPIError(status int, data []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	apiErr := &APIError{Status: status, Code: envelope.Error.Code, Message: envelope.Error.Message}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", core.ErrInvalidCredentials, apiErr)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %v", core.ErrEmailTaken, apiErr)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", core.ErrInvalidInput, apiErr.Message)
	default:
		return apiErr
	}
}
