package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arale275/autix-sub003/auth"
)

const testSecret = "client-test-secret"

// memStorage is an in-memory Storage that records every write.
type memStorage struct {
	mu      sync.Mutex
	token   string
	user    string
	saves   int
	clears  int
	loadErr error
	saveErr error
}

func (m *memStorage) Load(context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", "", m.loadErr
	}
	if m.token == "" && m.user == "" {
		return "", "", ErrNoSession
	}
	return m.token, m.user, nil
}

func (m *memStorage) Save(_ context.Context, token, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token, m.user = token, user
	return nil
}

func (m *memStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.token, m.user = "", ""
	return nil
}

func (m *memStorage) snapshot() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.user
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func issueToken(t *testing.T, u auth.User, at time.Time) string {
	t.Helper()
	s, err := auth.NewTokenServiceWithClock(testSecret, func() time.Time { return at })
	require.NoError(t, err)
	tok, err := s.Issue(u)
	require.NoError(t, err)
	return tok
}
