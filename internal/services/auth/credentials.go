package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sessionauth/internal/storage"
)

const defaultCost = 10

func clampCost(cost int) int {
	switch {
	case cost == 0:
		return defaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	default:
		return cost
	}
}

// normalizeEmail trims and lower-cases email and rejects anything that is not a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}

	return email, nil
}

func validateBirthday(birthday string) error {
	if birthday == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, birthday); err != nil {
		return ErrInvalidBirthday
	}
	return nil
}

// validateOriginURL accepts an empty origin or an absolute http(s) URL.
// The origin later receives tokens in its query, so nothing else may pass.
func validateOriginURL(origin string) error {
	if origin == "" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidOriginURL
	}
	return nil
}

// ensureEmailFree returns ErrUserExists when email is already registered.
// The unique index still decides races between concurrent registrations.
func (a *Auth) ensureEmailFree(ctx context.Context, email string) error {
	_, err := a.users.User(ctx, email)
	switch {
	case err == nil:
		return ErrUserExists
	case errors.Is(err, storage.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("lookup user: %w", err)
	}
}

func (a *Auth) hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func checkPassword(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
