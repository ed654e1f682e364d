package setupconfig

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// HashPassword returns a SHA-512 crypt hash suitable for /etc/shadow.
// The salt is 12 random bytes in base64. When substitute is set, '+' is
// replaced with '.' as crypt's alphabet expects.
func HashPassword(password string, substitute bool) (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to generate salt")
	}

	salt := base64.StdEncoding.EncodeToString(raw)
	if substitute {
		salt = strings.ReplaceAll(salt, "+", ".")
	}

	hash, err := sha512_crypt.New().Generate([]byte(password), []byte("$6$"+salt))
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return hash, nil
}
