package identity

import (
	"strings"
)

// MatchMode decides how a requirement list is combined.
type MatchMode int

const (
	// MatchAll requires every listed value.
	MatchAll MatchMode = iota
	// MatchAny requires at least one listed value.
	MatchAny
)

func (m MatchMode) String() string {
	if m == MatchAny {
		return "any"
	}
	return "all"
}

// ParseMatchMode accepts "all" or "any", case insensitive. Anything else is
// MatchAll.
func ParseMatchMode(s string) MatchMode {
	if strings.EqualFold(strings.TrimSpace(s), "any") {
		return MatchAny
	}
	return MatchAll
}

// Requirements are declared per route. Role and policy modes are independent.
type Requirements struct {
	Roles      []string
	RoleMode   MatchMode
	Policies   []string
	PolicyMode MatchMode
}

// IsZero reports whether nothing is required.
func (r Requirements) IsZero() bool {
	return len(r.Roles) == 0 && len(r.Policies) == 0
}

// RequireRoles builds a requirement on roles.
func RequireRoles(mode MatchMode, roles ...string) Requirements {
	return Requirements{Roles: roles, RoleMode: mode}
}

// RequirePolicies builds a requirement on policies.
func RequirePolicies(mode MatchMode, policies ...string) Requirements {
	return Requirements{Policies: policies, PolicyMode: mode}
}

// Authorize checks principal against req. Roles are evaluated first; the
// policy check only runs once the role check passes. An empty list is
// satisfied.
func Authorize(principal *Principal, req Requirements) error {
	if principal == nil {
		return NewError(ErrUnauthenticated, CodeTokenMissing, MsgTokenMissing)
	}

	if !satisfies(principal.Roles, req.Roles, req.RoleMode) {
		return NewError(ErrForbidden, CodeForbiddenRole, MsgMissingRole,
			"sub", principal.Subject,
			"required_roles", req.Roles,
			"mode", req.RoleMode.String(),
		)
	}

	if !satisfies(principal.Policies, req.Policies, req.PolicyMode) {
		return NewError(ErrForbidden, CodeForbiddenPolicy, MsgMissingPolicy,
			"sub", principal.Subject,
			"required_policies", req.Policies,
			"mode", req.PolicyMode.String(),
		)
	}

	return nil
}

func satisfies(held, required []string, mode MatchMode) bool {
	if len(required) == 0 {
		return true
	}

	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[h] = struct{}{}
	}

	for _, r := range required {
		_, ok := set[r]
		if mode == MatchAny && ok {
			return true
		}
		if mode == MatchAll && !ok {
			return false
		}
	}
	return mode == MatchAll
}
