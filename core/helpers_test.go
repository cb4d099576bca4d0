package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arale275/autix-sub003/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]UserRecord
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[int64]UserRecord{}}
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) Create(_ context.Context, email, passwordHash string, userType auth.UserType) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}
	return m.insert(UserRecord{Email: email, PasswordHash: passwordHash, UserType: userType}), nil
}

func (m *memUsers) UpsertGoogle(_ context.Context, sub, email string, userType auth.UserType) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if u.GoogleSub == sub {
			return &u, nil
		}
	}
	for id, u := range m.rows {
		if u.Email != email {
			continue
		}
		if u.GoogleSub != "" {
			return nil, ErrEmailTaken
		}
		u.GoogleSub = sub
		m.rows[id] = u
		return &u, nil
	}
	return m.insert(UserRecord{Email: email, UserType: userType, GoogleSub: sub}), nil
}

func (m *memUsers) insert(u UserRecord) *UserRecord {
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	m.rows[u.ID] = u
	return &u
}

func testConfig() Config {
	cfg := Defaults()
	cfg.JWTSecret = "test-secret"
	cfg.SessionKey = "test-session-key"
	cfg.FrontendURL = "http://front.test"
	cfg.AllowedOrigins = []string{"http://front.test"}
	return cfg
}

type testEnv struct {
	cfg    Config
	users  *memUsers
	pool   *auth.HashPool
	tokens *auth.TokenService
	svc    *RepositoryAuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	pool := auth.NewHashPool(auth.NewCredentialService(bcrypt.MinCost), 2, 8)
	t.Cleanup(pool.Close)
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	require.NoError(t, err)
	users := newMemUsers()
	return &testEnv{
		cfg:    cfg,
		users:  users,
		pool:   pool,
		tokens: tokens,
		svc:    NewRepositoryAuthService(users, pool, tokens, discardLogger()),
	}
}
