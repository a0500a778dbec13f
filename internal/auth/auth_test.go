package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("client-1", auth.RoleOperator)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.Equal(t, "gimli", claims.Issuer)
}

func TestJWTExpiredToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("client-1", auth.RoleReader)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTGarbageToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	issuing, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	validating, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := issuing.IssueToken("client-1", auth.RoleReader)
	require.NoError(t, err)

	_, err = validating.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsWrongSigningMethod(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"client_id": "client-1",
		"role":      "admin",
		"iss":       "gimli",
		"aud":       "gimli",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := forged.SignedString([]byte("weak-secret"))
	require.NoError(t, err)

	_, err = mgr.ValidateToken(tokenStr)
	assert.Error(t, err)
}

func TestJWTRejectsInvalidRole(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("client-1", auth.Role("superuser"))
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func writeKeyPair(t *testing.T) (privPath, pubPath string, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath = filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath = filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath,
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))

	return privPath, pubPath, priv
}

func TestJWTManagerFromPEMFiles(t *testing.T) {
	privPath, pubPath, _ := writeKeyPair(t)

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("client-1", auth.RoleAdmin)
	require.NoError(t, err)
	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestJWTManagerMismatchedKeyPair(t *testing.T) {
	privPath, _, _ := writeKeyPair(t)
	_, otherPub, _ := writeKeyPair(t)

	_, err := auth.NewJWTManager(privPath, otherPub, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, auth.RoleAtLeast(auth.RoleAdmin, auth.RoleReader))
	assert.True(t, auth.RoleAtLeast(auth.RoleOperator, auth.RoleOperator))
	assert.False(t, auth.RoleAtLeast(auth.RoleReader, auth.RoleOperator))
	assert.False(t, auth.RoleAtLeast(auth.Role("bogus"), auth.RoleReader))
}

func TestCredentialsVerify(t *testing.T) {
	creds := auth.NewCredentials()
	require.NoError(t, creds.Add("admin", auth.RoleAdmin, "s3cret"))

	role, ok := creds.Verify("admin", "s3cret")
	require.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)

	_, ok = creds.Verify("admin", "wrong")
	assert.False(t, ok)

	_, ok = creds.Verify("unknown", "s3cret")
	assert.False(t, ok)
}

func TestCredentialsAddValidation(t *testing.T) {
	creds := auth.NewCredentials()
	assert.Error(t, creds.Add("", auth.RoleAdmin, "key"))
	assert.Error(t, creds.Add("id", auth.RoleAdmin, ""))
	assert.Error(t, creds.Add("id", auth.Role("bogus"), "key"))
}

func TestCredentialsReplace(t *testing.T) {
	creds := auth.NewCredentials()
	require.NoError(t, creds.Add("svc", auth.RoleReader, "old-key"))
	require.NoError(t, creds.Add("svc", auth.RoleOperator, "new-key"))

	_, ok := creds.Verify("svc", "old-key")
	assert.False(t, ok)

	role, ok := creds.Verify("svc", "new-key")
	require.True(t, ok)
	assert.Equal(t, auth.RoleOperator, role)
}
