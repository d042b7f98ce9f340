package identity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var reservedClaims = map[string]struct{}{
	"sub":      {},
	"iss":      {},
	"aud":      {},
	"exp":      {},
	"nbf":      {},
	"iat":      {},
	"jti":      {},
	"email":    {},
	"roles":    {},
	"policies": {},
}

// TokenClaims is the bearer token payload. Roles and Policies are omitted
// from the wire form when empty. Extra carries passthrough claims and is
// flattened into the payload.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email    string         `json:"email,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Policies []string       `json:"policies,omitempty"`
	Extra    map[string]any `json:"-"`
}

// WithSubject returns a copy of c with sub set.
func (c TokenClaims) WithSubject(subject string) TokenClaims {
	c.Subject = subject
	return c
}

type tokenClaimsWire TokenClaims

// MarshalJSON flattens Extra next to the registered and identity claims.
func (c TokenClaims) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(tokenClaimsWire(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	out := map[string]any{}
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON collects unknown claims into Extra.
func (c *TokenClaims) UnmarshalJSON(data []byte) error {
	var wire tokenClaimsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = TokenClaims(wire)
	c.Extra = nil
	for k, v := range raw {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		if c.Extra == nil {
			c.Extra = map[string]any{}
		}
		c.Extra[k] = v
	}
	return nil
}

// Principal is the authenticated identity derived from a verified token.
type Principal struct {
	Subject   string         `json:"sub"`
	Email     string         `json:"email,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Policies  []string       `json:"policies,omitempty"`
	Issuer    string         `json:"iss,omitempty"`
	Audience  []string       `json:"aud,omitempty"`
	ExpiresAt *time.Time     `json:"exp,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// PrincipalFromClaims maps verified claims to a Principal.
func PrincipalFromClaims(c *TokenClaims) *Principal {
	if c == nil {
		return nil
	}

	p := &Principal{
		Subject:  c.Subject,
		Email:    c.Email,
		Roles:    append([]string(nil), c.Roles...),
		Policies: append([]string(nil), c.Policies...),
		Issuer:   c.Issuer,
	}
	if len(c.Audience) > 0 {
		p.Audience = append([]string(nil), c.Audience...)
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		p.ExpiresAt = &exp
	}
	if len(c.Extra) > 0 {
		p.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			p.Extra[k] = v
		}
	}
	return p
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && containsString(p.Roles, role)
}

// HasPolicy reports whether the principal carries policy.
func (p *Principal) HasPolicy(policy string) bool {
	return p != nil && containsString(p.Policies, policy)
}

// compactStrings drops blank entries and duplicates, preserving first seen
// order. Returns nil for an empty result so omitempty applies.
func compactStrings(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
