package directory

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

const sshaPrefix = "{SSHA}"

const saltLength = 4

// EncodeSecret hashes a plaintext password into the salted-SHA1 form stored
// in userPassword. A value that already carries the {SSHA} prefix is assumed
// to be pre-hashed and is returned unchanged, so records can round-trip
// through export and import without ever exposing plaintext.
func EncodeSecret(password string) (string, error) {
	if strings.HasPrefix(password, sshaPrefix) {
		return password, nil
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate password salt: %w", err)
	}

	return encodeSecretWithSalt(password, salt), nil
}

// encodeSecretWithSalt is the deterministic core of EncodeSecret: the SHA-1
// digest of password followed by salt, then the salt itself, base64 encoded
// as a single unit under the {SSHA} prefix.
func encodeSecretWithSalt(password string, salt []byte) string {
	h := sha1.New()
	h.Write([]byte(password))
	h.Write(salt)
	digest := h.Sum(nil)

	return sshaPrefix + base64.StdEncoding.EncodeToString(append(digest, salt...))
}
