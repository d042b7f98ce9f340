package identity_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/goliatone/go-identity"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func decodePayload(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	pub, priv := newKeyPair(t)

	token, err := identity.IssueToken(identity.TokenClaims{
		Email:    "a@x.com",
		Roles:    []string{"admin", "editor"},
		Policies: []string{"read:users", "write:users"},
		Extra:    map[string]any{"tenant": "acme"},
	}.WithSubject("acc-1"), priv, identity.IssueOptions{
		Audience: "api",
		Issuer:   "go-identity",
		Expiry:   time.Hour,
	})
	require.NoError(t, err)

	claims, err := identity.VerifyToken(token, pub, identity.VerifyOptions{
		Audience: "api",
		Issuer:   "go-identity",
	})
	require.NoError(t, err)

	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, []string{"admin", "editor"}, claims.Roles)
	assert.Equal(t, []string{"read:users", "write:users"}, claims.Policies)
	assert.Equal(t, "go-identity", claims.Issuer)
	assert.Equal(t, []string{"api"}, []string(claims.Audience))
	assert.Equal(t, "acme", claims.Extra["tenant"])
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssue_OmitsEmptyRolesAndPolicies(t *testing.T) {
	_, priv := newKeyPair(t)

	token, err := identity.IssueToken(identity.TokenClaims{}.WithSubject("x"), priv, identity.IssueOptions{})
	require.NoError(t, err)

	payload := decodePayload(t, token)
	assert.Equal(t, "x", payload["sub"])
	assert.NotContains(t, payload, "roles")
	assert.NotContains(t, payload, "policies")
	assert.NotContains(t, payload, "exp")
}

func TestIssue_FiltersBlankValues(t *testing.T) {
	_, priv := newKeyPair(t)

	token, err := identity.IssueToken(identity.TokenClaims{
		Roles:    []string{"", "  ", "admin", "admin"},
		Policies: []string{"", "read:x"},
	}.WithSubject("x"), priv, identity.IssueOptions{})
	require.NoError(t, err)

	payload := decodePayload(t, token)
	assert.Equal(t, []any{"admin"}, payload["roles"])
	assert.Equal(t, []any{"read:x"}, payload["policies"])

	token, err = identity.IssueToken(identity.TokenClaims{
		Roles: []string{"", " "},
	}.WithSubject("x"), priv, identity.IssueOptions{})
	require.NoError(t, err)
	assert.NotContains(t, decodePayload(t, token), "roles")
}

func TestIssue_RequiresSubject(t *testing.T) {
	_, priv := newKeyPair(t)

	_, err := identity.IssueToken(identity.TokenClaims{}, priv, identity.IssueOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrValidation))
}

func TestVerify_Failures(t *testing.T) {
	pub, priv := newKeyPair(t)
	otherPub, _ := newKeyPair(t)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := identity.IssueToken(identity.TokenClaims{}.WithSubject("x"), priv, identity.IssueOptions{
		Expiry: time.Hour,
		Now:    past,
	})
	require.NoError(t, err)

	good, err := identity.IssueToken(identity.TokenClaims{}.WithSubject("x"), priv, identity.IssueOptions{
		Audience: "api",
		Issuer:   "go-identity",
		Expiry:   time.Hour,
	})
	require.NoError(t, err)

	sigStart := strings.LastIndex(good, ".") + 1
	flipped := byte('A')
	if good[sigStart] == 'A' {
		flipped = 'B'
	}
	tampered := good[:sigStart] + string(flipped) + good[sigStart+1:]

	tests := []struct {
		name  string
		token string
		key   ed25519.PublicKey
		opts  identity.VerifyOptions
	}{
		{name: "malformed", token: "not-a-token", key: pub},
		{name: "tampered signature", token: tampered, key: pub},
		{name: "wrong key", token: good, key: otherPub},
		{name: "expired", token: expired, key: pub},
		{name: "audience mismatch", token: good, key: pub, opts: identity.VerifyOptions{Audience: "other"}},
		{name: "issuer mismatch", token: good, key: pub, opts: identity.VerifyOptions{Issuer: "someone-else"}},
		{name: "empty", token: "  ", key: pub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := identity.VerifyToken(tt.token, tt.key, tt.opts)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, identity.ErrUnauthenticated))
			assert.Equal(t, identity.ErrUnauthenticated, identity.KindOf(err))
			assert.NotContains(t, identity.PublicMessage(err), "signature")
		})
	}
}

func TestVerify_ClockTolerance(t *testing.T) {
	pub, priv := newKeyPair(t)

	issuedAt := time.Now().Add(-time.Hour - 10*time.Second)
	token, err := identity.IssueToken(identity.TokenClaims{}.WithSubject("x"), priv, identity.IssueOptions{
		Expiry: time.Hour,
		Now:    issuedAt,
	})
	require.NoError(t, err)

	_, err = identity.VerifyToken(token, pub, identity.VerifyOptions{})
	require.Error(t, err)

	claims, err := identity.VerifyToken(token, pub, identity.VerifyOptions{ClockTolerance: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "x", claims.Subject)
}

func TestTokenCodec_FromConfig(t *testing.T) {
	pub, priv := newKeyPair(t)

	cfg := identity.TokenConfig{
		PrivateKey: base64.StdEncoding.EncodeToString(priv.Seed()),
		PublicKey:  identity.EncodeKey(pub),
		Issuer:     "go-identity",
		Audience:   "api",
		TTL:        time.Minute,
	}

	codec, err := identity.NewTokenCodec(cfg)
	require.NoError(t, err)
	assert.True(t, codec.CanSign())

	token, err := codec.Issue(identity.TokenClaims{Roles: []string{"admin"}}.WithSubject("acc-1"))
	require.NoError(t, err)

	principal, err := codec.VerifyPrincipal(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", principal.Subject)
	assert.Equal(t, []string{"admin"}, principal.Roles)
	assert.Equal(t, "go-identity", principal.Issuer)
	assert.Equal(t, []string{"api"}, principal.Audience)
	require.NotNil(t, principal.ExpiresAt)

	verifier, err := identity.NewTokenCodec(identity.TokenConfig{
		PublicKey: cfg.PublicKey,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
	})
	require.NoError(t, err)
	assert.False(t, verifier.CanSign())

	_, err = verifier.Verify(token)
	require.NoError(t, err)

	_, err = verifier.Issue(identity.TokenClaims{}.WithSubject("acc-1"))
	require.Error(t, err)
}

func TestTokenCodec_KeyFormats(t *testing.T) {
	pub, priv := newKeyPair(t)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	tests := []struct {
		name string
		priv string
		pub  string
	}{
		{name: "raw seed base64url", priv: base64.RawURLEncoding.EncodeToString(priv.Seed())},
		{name: "raw private std", priv: base64.StdEncoding.EncodeToString(priv)},
		{name: "pkcs8 der", priv: base64.StdEncoding.EncodeToString(der), pub: base64.URLEncoding.EncodeToString(pubDER)},
		{name: "pem", priv: privPEM, pub: pubPEM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := identity.NewTokenCodec(identity.TokenConfig{PrivateKey: tt.priv, PublicKey: tt.pub})
			require.NoError(t, err)

			token, err := codec.Issue(identity.TokenClaims{}.WithSubject("x"))
			require.NoError(t, err)

			_, err = identity.VerifyToken(token, pub, identity.VerifyOptions{})
			require.NoError(t, err)
		})
	}
}

func TestTokenCodec_BadKeysFailAtConstruction(t *testing.T) {
	_, err := identity.NewTokenCodec(identity.TokenConfig{PrivateKey: "%%%not base64%%%"})
	require.Error(t, err)

	_, err = identity.NewTokenCodec(identity.TokenConfig{PublicKey: base64.StdEncoding.EncodeToString([]byte("short"))})
	require.Error(t, err)

	_, err = identity.NewTokenCodec(identity.TokenConfig{})
	require.Error(t, err)
}
