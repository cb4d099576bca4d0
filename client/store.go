package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arale275/autix-sub003/auth"
)

// Listener receives every state published by a SessionStore.
type Listener func(AuthState)

type subscription struct {
	id uint64
	fn Listener
}

// SessionStore owns the current AuthState. It starts in Loading, moves only
// through Hydrate, Login and Logout, persists the token/user pair to Storage
// and notifies subscribers of each transition.
//
// Transitions are serialized: the last call wins, and persistence of one
// transition completes before the next starts. Listeners run after the
// transition on the calling goroutine and must not call Login or Logout
// synchronously.
type SessionStore struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time
	check   TokenCheck

	writeMu sync.Mutex // serializes transition, persist, notify

	mu     sync.RWMutex
	state  AuthState
	subs   []subscription
	nextID uint64

	hydrateOnce sync.Once
}

// NewSessionStore returns a store in the Loading state.
func NewSessionStore(storage Storage, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		storage: storage,
		log:     logger,
		now:     time.Now,
		check:   auth.DecodeUnverified,
		state:   LoadingState(),
	}
}

// WithClock replaces the time source used to check persisted token expiry.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// WithTokenCheck replaces how a persisted token is decoded during Hydrate.
// The default only decodes it; a verifying check also rejects tokens this
// process did not sign.
func (s *SessionStore) WithTokenCheck(check TokenCheck) *SessionStore {
	s.check = check
	return s
}

// State returns the current state.
func (s *SessionStore) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for future transitions and returns a function that
// removes it. The current state is not replayed.
func (s *SessionStore) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Login moves to Authenticated(u, token) and persists both fields together.
func (s *SessionStore) Login(ctx context.Context, u auth.User, token string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := AuthenticatedState(u, token)
	s.set(next)

	userJSON, err := json.Marshal(u)
	if err == nil {
		err = s.storage.Save(ctx, token, string(userJSON))
	}
	if err != nil {
		s.log.Warn("persist session failed", "error", err, "user_id", u.ID)
	}
	s.notify(next)
}

// Logout moves to Unauthenticated and purges the persisted fields.
func (s *SessionStore) Logout(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := UnauthenticatedState()
	s.set(next)
	if err := s.storage.Clear(ctx); err != nil {
		s.log.Warn("clear session failed", "error", err)
	}
	s.notify(next)
}

// Hydrate restores the state from Storage. It runs once; later calls return
// the current state. The persisted token is checked locally against its own
// expiry claim and never sent anywhere. A Login or Logout that happened
// before Hydrate takes precedence over what is persisted.
func (s *SessionStore) Hydrate(ctx context.Context) AuthState {
	s.hydrateOnce.Do(func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		if s.State().Status != Loading {
			return
		}

		next, err := s.restore(ctx)
		if err != nil && !errors.Is(err, ErrNoSession) {
			s.log.Info("discarding persisted session", "reason", err)
			if cerr := s.storage.Clear(ctx); cerr != nil {
				s.log.Warn("clear session failed", "error", cerr)
			}
		}
		s.set(next)
		s.notify(next)
	})
	return s.State()
}

func (s *SessionStore) restore(ctx context.Context) (AuthState, error) {
	token, userJSON, err := s.storage.Load(ctx)
	if err != nil {
		return UnauthenticatedState(), err
	}
	if token == "" && userJSON == "" {
		return UnauthenticatedState(), ErrNoSession
	}
	if token == "" || userJSON == "" {
		return UnauthenticatedState(), errors.New("persisted session is incomplete")
	}

	var u auth.User
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return UnauthenticatedState(), fmt.Errorf("decode user: %w", err)
	}
	if u.ID <= 0 || !u.UserType.Valid() {
		return UnauthenticatedState(), errors.New("persisted user is incomplete")
	}

	claims, err := s.check(token)
	if err != nil {
		return UnauthenticatedState(), err
	}
	if !s.now().Before(claims.Expiry()) {
		return UnauthenticatedState(), auth.ErrExpired
	}
	if err := claimsMatch(claims, u); err != nil {
		return UnauthenticatedState(), fmt.Errorf("persisted user: %w", err)
	}
	return AuthenticatedState(u, token), nil
}

func (s *SessionStore) set(next AuthState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *SessionStore) notify(state AuthState) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

// TokenCheck decodes a session token into its claims, or rejects it.
type TokenCheck func(token string) (*auth.Claims, error)

var (
	errSubjectMismatch  = errors.New("token subject does not match user")
	errUserTypeMismatch = errors.New("token user type does not match user")
)

func claimsMatch(c *auth.Claims, u auth.User) error {
	if c.UserID != u.ID {
		return errSubjectMismatch
	}
	if c.UserType != u.UserType {
		return errUserTypeMismatch
	}
	return nil
}
