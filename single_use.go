package bookbuddy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

const singleUseSecretBytes = 32

// NewSingleUseSecret mints a random one-shot secret. The raw value goes into
// the email link, only its hash is stored.
func NewSingleUseSecret() (raw string, hash string, err error) {
	buf := make([]byte, singleUseSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token secret")
	}
	raw = hex.EncodeToString(buf)
	return raw, HashSingleUseSecret(raw), nil
}

// HashSingleUseSecret maps a raw secret onto its stored form.
func HashSingleUseSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
