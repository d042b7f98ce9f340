package identity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/goliatone/go-identity"
)

func TestTokenClaims_JSONPassthrough(t *testing.T) {
	in := identity.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-1"},
		Email:            "a@x.com",
		Extra: map[string]any{
			"tenant": "acme",
			"sub":    "spoofed",
		},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	payload := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "acc-1", payload["sub"])
	assert.Equal(t, "acme", payload["tenant"])
	assert.NotContains(t, payload, "roles")

	var out identity.TokenClaims
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "acc-1", out.Subject)
	assert.Equal(t, "a@x.com", out.Email)
	assert.Equal(t, map[string]any{"tenant": "acme"}, out.Extra)
}

func TestPrincipalFromClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims := &identity.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			Issuer:    "go-identity",
			Audience:  jwt.ClaimStrings{"api"},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles:    []string{"admin"},
		Policies: []string{"read:x"},
		Extra:    map[string]any{"tenant": "acme"},
	}

	p := identity.PrincipalFromClaims(claims)
	require.NotNil(t, p)
	assert.Equal(t, "acc-1", p.Subject)
	assert.Equal(t, []string{"api"}, p.Audience)
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("editor"))
	assert.True(t, p.HasPolicy("read:x"))
	assert.Equal(t, "acme", p.Extra["tenant"])
	require.NotNil(t, p.ExpiresAt)
	assert.True(t, exp.Equal(*p.ExpiresAt))

	claims.Extra["tenant"] = "changed"
	assert.Equal(t, "acme", p.Extra["tenant"])

	assert.Nil(t, identity.PrincipalFromClaims(nil))
}
