package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arale275/autix-sub003/auth"
)

func newTestRouter(t *testing.T, env *testEnv) *gin.Engine {
	t.Helper()
	return NewRouter(env.cfg, env.svc, env.tokens, nil, nil, discardLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, newTestEnv(t))
	w := doJSON(t, r, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(t, env)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"email": "dealer@example.com", "password": "correct horse", "userType": "dealer",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.Equal(t, auth.Dealer, reg.User.UserType)
	assert.NotEmpty(t, reg.Token)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email": "dealer@example.com", "password": "correct horse",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, reg.User, login.User)

	w = doJSON(t, r, http.MethodGet, "/api/v1/auth/me", nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, reg.User, me.User)
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(t, env)

	_, err := env.svc.Register(context.Background(), "taken@example.com", "correct horse", auth.Buyer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad json", "nope", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad user type", gin.H{"email": "a@example.com", "password": "correct horse", "userType": "admin"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"short password", gin.H{"email": "a@example.com", "password": "x", "userType": "buyer"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"taken", gin.H{"email": "taken@example.com", "password": "correct horse", "userType": "buyer"}, http.StatusConflict, "EMAIL_TAKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error.Code)
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(t, env)

	_, err := env.svc.Register(context.Background(), "a@example.com", "correct horse", auth.Buyer)
	require.NoError(t, err)

	for _, body := range []gin.H{
		{"email": "a@example.com", "password": "wrong horse"},
		{"email": "missing@example.com", "password": "correct horse"},
	} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		eb := decodeError(t, w)
		assert.Equal(t, "INVALID_CREDENTIALS", eb.Error.Code)
		assert.Equal(t, "invalid email or password", eb.Error.Message)
	}
}

func TestLoginInternalError(t *testing.T) {
	env := newTestEnv(t)
	env.users.err = errors.New("db down")
	r := newTestRouter(t, env)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "a@example.com", "password": "correct horse"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMeRequiresValidToken(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(t, env)

	other, err := auth.NewTokenService("other-secret")
	require.NoError(t, err)
	forged, err := other.Issue(auth.User{ID: 1, UserType: auth.Dealer})
	require.NoError(t, err)
	orphan, err := env.tokens.Issue(auth.User{ID: 42, UserType: auth.Buyer})
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no header", nil},
		{"wrong scheme", map[string]string{"Authorization": "Basic abc"}},
		{"garbage", bearer("not.a.token")},
		{"forged", bearer(forged)},
		{"unknown user", bearer(orphan)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodGet, "/api/v1/auth/me", nil, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
		})
	}
}

func TestUserTypePings(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(t, env)

	dealer, err := env.tokens.Issue(auth.User{ID: 1, UserType: auth.Dealer})
	require.NoError(t, err)
	buyer, err := env.tokens.Issue(auth.User{ID: 2, UserType: auth.Buyer})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/api/v1/dealer/ping", nil, bearer(dealer)).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, r, http.MethodGet, "/api/v1/dealer/ping", nil, bearer(buyer)).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/api/v1/buyer/ping", nil, bearer(buyer)).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, r, http.MethodGet, "/api/v1/buyer/ping", nil, bearer(dealer)).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, r, http.MethodGet, "/api/v1/buyer/ping", nil, nil).Code)
}

func TestGoogleRoutesAbsentWhenDisabled(t *testing.T) {
	r := newTestRouter(t, newTestEnv(t))
	w := doJSON(t, r, http.MethodGet, "/api/v1/auth/google", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("refused") })

	r := NewRouter(env.cfg, env.svc, env.tokens, nil, NewStatusReporter(map[string]Pinger{"db": ok}, env.pool), discardLogger())
	w := doJSON(t, r, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Ready)
	assert.Equal(t, "ok", st.Components["db"])
	assert.Equal(t, 8, st.HashQueue.Capacity)

	r = NewRouter(env.cfg, env.svc, env.tokens, nil, NewStatusReporter(map[string]Pinger{"db": ok, "redis": down}, nil), discardLogger())
	w = doJSON(t, r, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Ready)
	assert.Equal(t, "down: refused", st.Components["redis"])
}

func TestOriginCheck(t *testing.T) {
	r := newTestRouter(t, newTestEnv(t))

	w := doJSON(t, r, http.MethodGet, "/healthz", nil, map[string]string{"Origin": "http://evil.test"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/healthz", nil, map[string]string{"Origin": "http://front.test"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://front.test", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(t, r, http.MethodOptions, "/api/v1/auth/login", nil, map[string]string{"Origin": "http://front.test"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w = doJSON(t, r, http.MethodGet, "/healthz", nil, map[string]string{"Referer": "http://evil.test/page"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
