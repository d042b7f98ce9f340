package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// RoleRepository implements identity.RoleClaimStore using Bun, plus the
// helpers used to seed roles and claims.
type RoleRepository struct {
	db bun.IDB
}

// NewRoleRepository creates a new repository.
func NewRoleRepository(db bun.IDB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) conn(tx bun.IDB) bun.IDB {
	if tx == nil {
		return r.db
	}
	return tx
}

// RolesForAccount implements identity.RoleClaimStore. Roles come back in
// assignment order.
func (r *RoleRepository) RolesForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]*identity.Role, error) {
	var roles []*identity.Role
	err := r.conn(tx).NewSelect().
		Model(&roles).
		Join("JOIN account_roles AS acr ON acr.role_id = rol.id").
		Where("acr.account_id = ?", accountID).
		OrderExpr("acr.assignment_id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return roles, nil
}

// ClaimsForRole implements identity.RoleClaimStore.
func (r *RoleRepository) ClaimsForRole(ctx context.Context, tx bun.IDB, roleID string) ([]identity.Claim, error) {
	var rows []identity.RoleClaim
	err := r.conn(tx).NewSelect().
		Model(&rows).
		Where("role_id = ?", roleID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	claims := make([]identity.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, row.Claim())
	}
	return claims, nil
}

// ClaimsForAccount implements identity.RoleClaimStore.
func (r *RoleRepository) ClaimsForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]identity.Claim, error) {
	var rows []identity.UserClaim
	err := r.conn(tx).NewSelect().
		Model(&rows).
		Where("account_id = ?", accountID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	claims := make([]identity.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, row.Claim())
	}
	return claims, nil
}

// FindRoleByName looks a role up by its normalized name.
func (r *RoleRepository) FindRoleByName(ctx context.Context, tx bun.IDB, name string) (*identity.Role, error) {
	role := new(identity.Role)
	err := r.conn(tx).NewSelect().
		Model(role).
		Relation("Claims").
		Where("rol.normalized_name = ?", identity.Normalize(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("roles")
		}
		return nil, err
	}
	return role, nil
}

// CreateRole inserts a role, or returns the existing one with the same
// normalized name.
func (r *RoleRepository) CreateRole(ctx context.Context, tx bun.IDB, name string) (*identity.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, identity.NewError(identity.ErrValidation, identity.CodeValidation, "Role name is required")
	}

	if existing, err := r.FindRoleByName(ctx, tx, name); err == nil {
		return existing, nil
	} else if !errors.Is(err, identity.ErrNotFound) {
		return nil, err
	}

	role := &identity.Role{
		ID:             identity.NewID(),
		Name:           name,
		NormalizedName: identity.Normalize(name),
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := r.conn(tx).NewInsert().Model(role).Exec(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

// AssignRole links an account to a role. Assigning twice keeps the original
// assignment order.
func (r *RoleRepository) AssignRole(ctx context.Context, tx bun.IDB, accountID, roleID string) error {
	link := &identity.AccountRole{
		AccountID:    accountID,
		RoleID:       roleID,
		AssignmentID: identity.NewID(),
	}
	_, err := r.conn(tx).NewInsert().
		Model(link).
		On("CONFLICT (account_id, role_id) DO NOTHING").
		Exec(ctx)
	return err
}

// UnassignRole removes an account to role link.
func (r *RoleRepository) UnassignRole(ctx context.Context, tx bun.IDB, accountID, roleID string) error {
	res, err := r.conn(tx).NewDelete().
		Model((*identity.AccountRole)(nil)).
		Where("account_id = ? AND role_id = ?", accountID, roleID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "account_roles")
}

// AddRoleClaim attaches a claim to a role.
func (r *RoleRepository) AddRoleClaim(ctx context.Context, tx bun.IDB, roleID string, claim identity.Claim) error {
	row := &identity.RoleClaim{
		ID:         identity.NewID(),
		RoleID:     roleID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
	_, err := r.conn(tx).NewInsert().Model(row).Exec(ctx)
	return err
}

// AddAccountClaim attaches a claim directly to an account.
func (r *RoleRepository) AddAccountClaim(ctx context.Context, tx bun.IDB, accountID string, claim identity.Claim) error {
	row := &identity.UserClaim{
		ID:         identity.NewID(),
		AccountID:  accountID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
	_, err := r.conn(tx).NewInsert().Model(row).Exec(ctx)
	return err
}
