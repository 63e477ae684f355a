package bookbuddy

import (
	stderrors "errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-errors"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 12

// HashPassword will generate a password hash at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("cannot hash empty password", errors.CategoryBadInput)
	}
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to compare password")
	}
	return nil
}
