// Package password provides adaptive password hashing for the credential
// verifier. Hashing and verification are pure functions; the only side effect
// of a successful login (the last-login stamp) lives in the identity service.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "painchain/pkg/domain-errors"
)

// cost is fixed deliberately; raising it invalidates no stored hashes but
// slows every login, so changes go through capacity review.
const cost = 12

// Hash creates a salted bcrypt hash of the provided password.
func Hash(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeValidation, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash password")
	}
	return string(hashed), nil
}

// Verify checks a plaintext password against a stored hash.
func Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify password")
	}
	return nil
}
