package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// CredentialService hashes and verifies passwords with bcrypt. Callers must
// not log or persist plaintext passwords.
type CredentialService struct {
	cost int
}

// NewCredentialService returns a CredentialService with the given bcrypt cost.
// A non-positive cost selects DefaultCost; others are clamped to bcrypt's range.
func NewCredentialService(cost int) *CredentialService {
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &CredentialService{cost: cost}
}

// Cost returns the configured work factor.
func (s *CredentialService) Cost() int {
	return s.cost
}

// Hash returns a salted bcrypt hash of password. Every call uses a fresh salt.
func (s *CredentialService) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailure, err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. Malformed or foreign hashes
// yield false, as does any password Hash would have rejected.
func (s *CredentialService) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	if len(password) > MaxPasswordBytes {
		// bcrypt ignores bytes past the limit; compare anyway so the
		// rejection costs the same as a mismatch.
		_ = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password[:MaxPasswordBytes]))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SelfCheck hashes and verifies a probe value. A failure here means the
// process cannot hash credentials and should not start.
func (s *CredentialService) SelfCheck() error {
	const probe = "autix-self-check"
	h, err := s.Hash(probe)
	if err != nil {
		return err
	}
	if !s.Verify(probe, h) {
		return fmt.Errorf("%w: probe did not verify", ErrHashingFailure)
	}
	return nil
}
