package auth

import (
	"fmt"
	"sync"
)

// Credentials is an in-memory client credential table seeded at startup from
// configuration. API keys are stored only as Argon2id hashes.
type Credentials struct {
	mu      sync.RWMutex
	clients map[string]credential
}

type credential struct {
	role    Role
	keyHash string
}

// NewCredentials creates an empty table.
func NewCredentials() *Credentials {
	return &Credentials{clients: make(map[string]credential)}
}

// Add hashes apiKey and registers (or replaces) the client.
func (c *Credentials) Add(clientID string, role Role, apiKey string) error {
	if clientID == "" || apiKey == "" {
		return fmt.Errorf("auth: client id and api key are required")
	}
	if !role.Valid() {
		return fmt.Errorf("auth: invalid role %q", role)
	}
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[clientID] = credential{role: role, keyHash: hash}
	return nil
}

// Verify checks clientID/apiKey and returns the client's role on success.
// Unknown clients burn the same hashing cost as real verification so timing
// does not reveal which ids exist.
func (c *Credentials) Verify(clientID, apiKey string) (Role, bool) {
	c.mu.RLock()
	cred, ok := c.clients[clientID]
	c.mu.RUnlock()

	if !ok {
		DummyVerify()
		return "", false
	}
	match, err := VerifyAPIKey(apiKey, cred.keyHash)
	if err != nil || !match {
		return "", false
	}
	return cred.role, true
}
