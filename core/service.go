package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/arale275/autix-sub003/auth"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// RepositoryAuthService implements AuthService on a UserRepository, hashing on
// a HashPool and issuing tokens with a TokenService.
type RepositoryAuthService struct {
	users  UserRepository
	hasher *auth.HashPool
	tokens *auth.TokenService
	log    *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewRepositoryAuthService(users UserRepository, hasher *auth.HashPool, tokens *auth.TokenService, logger *slog.Logger) *RepositoryAuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryAuthService{users: users, hasher: hasher, tokens: tokens, log: logger}
}

// Register creates a password account and logs it in.
func (s *RepositoryAuthService) Register(ctx context.Context, email, password string, userType auth.UserType) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if !userType.Valid() {
		return Session{}, fmt.Errorf("%w: userType must be dealer or buyer", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return Session{}, err
	}

	rec, err := s.users.Create(ctx, email, hash, userType)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("user registered", "user_id", rec.ID, "user_type", rec.UserType)
	return s.issue(rec.User())
}

// Authenticate checks email/password. Unknown email and wrong password both
// yield ErrInvalidCredentials after comparable bcrypt work.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	rec, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return Session{}, err
		}
		_, _ = s.hasher.Verify(ctx, password, s.dummy())
		return Session{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, rec.PasswordHash)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(rec.User())
}

// Me resolves the account behind verified claims.
func (s *RepositoryAuthService) Me(ctx context.Context, claims *auth.Claims) (auth.User, error) {
	if claims == nil {
		return auth.User{}, ErrInvalidCredentials
	}
	rec, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return auth.User{}, err
	}
	return rec.User(), nil
}

// FederatedLogin finds or creates the account for a provider identity.
func (s *RepositoryAuthService) FederatedLogin(ctx context.Context, id FederatedIdentity) (Session, error) {
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return Session{}, err
	}
	if id.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidInput)
	}
	userType := id.UserType
	if !userType.Valid() {
		userType = auth.Buyer
	}
	rec, err := s.users.UpsertGoogle(ctx, id.Subject, email, userType)
	if err != nil {
		return Session{}, err
	}
	return s.issue(rec.User())
}

func (s *RepositoryAuthService) issue(u auth.User) (Session, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u}, nil
}

// dummy returns a hash at the configured cost, compared against when the
// email is unknown.
func (s *RepositoryAuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(context.Background(), "autix-dummy-password")
		if err != nil {
			s.log.Warn("dummy hash failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}
