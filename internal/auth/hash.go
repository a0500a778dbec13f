package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// hashParams are the Argon2id cost parameters for API key hashing. Keys are
// only verified at token issuance, not per request, so the memory-hard cost
// is paid rarely.
type hashParams struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var apiKeyParams = hashParams{
	time:    1,
	memory:  64 * 1024, // KiB
	threads: 4,
	keyLen:  32,
	saltLen: 16,
}

func (p hashParams) derive(key string, salt []byte) []byte {
	return argon2.IDKey([]byte(key), salt, p.time, p.memory, p.threads, p.keyLen)
}

// HashAPIKey derives an Argon2id hash of an API key and encodes it as
// base64(salt)$base64(hash).
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, apiKeyParams.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	sum := apiKeyParams.derive(apiKey, salt)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(sum), nil
}

// VerifyAPIKey checks an API key against a hash produced by HashAPIKey.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	saltPart, hashPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	want, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	got := apiKeyParams.derive(apiKey, salt)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// DummyVerify burns the same Argon2id work as a real verification. Auth
// failure paths that never reached a stored hash call this so that response
// timing does not reveal whether a client id exists.
func DummyVerify() {
	apiKeyParams.derive("dummy", make([]byte, apiKeyParams.saltLen))
}
