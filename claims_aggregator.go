package identity

import (
	"context"

	"github.com/uptrace/bun"
)

// ResolvedClaims is the effective authorization data of an account.
type ResolvedClaims struct {
	Roles    []string
	Policies []string
	// Claims keeps the qualifying (type, value) pairs after dedup, in order.
	Claims []Claim
}

// ClaimsAggregator resolves role names and policy values for an account.
type ClaimsAggregator struct {
	store RoleClaimStore
}

// NewClaimsAggregator creates a ClaimsAggregator over store.
func NewClaimsAggregator(store RoleClaimStore) *ClaimsAggregator {
	return &ClaimsAggregator{store: store}
}

// Resolve walks the account roles in assignment order collecting role claims,
// then the account's own claims, and deduplicates the qualifying claims by
// exact (type, value) keeping the first occurrence.
func (a *ClaimsAggregator) Resolve(ctx context.Context, tx bun.IDB, accountID string) (ResolvedClaims, error) {
	roles, err := a.store.RolesForAccount(ctx, tx, accountID)
	if err != nil {
		return ResolvedClaims{}, Internal(err, "roles_for_account", "account_id", accountID)
	}

	names := make([]string, 0, len(roles))
	groups := make([][]Claim, 0, len(roles)+1)
	for _, role := range roles {
		if role == nil {
			continue
		}
		names = append(names, role.Name)

		claims, err := a.store.ClaimsForRole(ctx, tx, role.ID)
		if err != nil {
			return ResolvedClaims{}, Internal(err, "claims_for_role", "account_id", accountID, "role_id", role.ID)
		}
		groups = append(groups, claims)
	}

	own, err := a.store.ClaimsForAccount(ctx, tx, accountID)
	if err != nil {
		return ResolvedClaims{}, Internal(err, "claims_for_account", "account_id", accountID)
	}
	groups = append(groups, own)

	merged := MergePolicyClaims(groups...)
	return ResolvedClaims{
		Roles:    compactStrings(names),
		Policies: PolicyValues(merged),
		Claims:   merged,
	}, nil
}

// MergePolicyClaims concatenates the groups, keeps only policy claims and
// drops later duplicates of an exact (type, value) pair.
func MergePolicyClaims(groups ...[]Claim) []Claim {
	var out []Claim
	seen := map[Claim]struct{}{}
	for _, group := range groups {
		for _, c := range group {
			if !c.IsPolicy() {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// PolicyValues projects claims to their values as an ordered set. Two claims
// of different policy types sharing a value yield one entry.
func PolicyValues(claims []Claim) []string {
	values := make([]string, 0, len(claims))
	for _, c := range claims {
		values = append(values, c.Value)
	}
	return compactStrings(values)
}
