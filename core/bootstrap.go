package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"

	"github.com/arale275/autix-sub003/auth"
)

// BootstrapAccount creates the seed account named by cfg.SeedEmail when it
// does not exist yet. The generated password is written to
// cfg.SeedPasswordPath, or logged when no path is set.
// It is idempotent: an existing account is left untouched.
func BootstrapAccount(ctx context.Context, repo UserRepository, hasher *auth.HashPool, cfg Config, logger *slog.Logger) error {
	if cfg.SeedEmail == "" {
		return nil
	}
	email, err := normalizeEmail(cfg.SeedEmail)
	if err != nil {
		return err
	}
	userType, err := auth.ParseUserType(firstNonEmpty(cfg.SeedUserType, string(auth.Dealer)))
	if err != nil {
		return err
	}

	if _, err := repo.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(ctx, password)
	if err != nil {
		return err
	}
	rec, err := repo.Create(ctx, email, hash, userType)
	if errors.Is(err, ErrEmailTaken) {
		// created concurrently by another instance
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.SeedPasswordPath != "" {
		if err := os.WriteFile(cfg.SeedPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		logger.Info("seed account created", "user_id", rec.ID, "email", email, "credentials", cfg.SeedPasswordPath)
	} else {
		logger.Info("seed account created", "user_id", rec.ID, "email", email, "password", password)
	}
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
