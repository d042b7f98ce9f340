package repository

import (
	"context"

	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

var models = []any{
	(*identity.Account)(nil),
	(*identity.Role)(nil),
	(*identity.RoleClaim)(nil),
	(*identity.UserClaim)(nil),
	(*identity.AccountRole)(nil),
	(*identity.ExternalLogin)(nil),
	(*identity.UserToken)(nil),
}

// Partial unique indexes keep normalized identifiers unique among active
// accounts only. Both sqlite and postgres accept this form.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_normalized_email ON accounts (normalized_email) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_normalized_username ON accounts (normalized_username) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_external_logins_provider_key ON external_logins (provider, provider_key)`,
	`CREATE INDEX IF NOT EXISTS ix_external_logins_account ON external_logins (account_id)`,
	`CREATE INDEX IF NOT EXISTS ix_account_roles_assignment ON account_roles (account_id, assignment_id)`,
	`CREATE INDEX IF NOT EXISTS ix_role_claims_role ON role_claims (role_id)`,
	`CREATE INDEX IF NOT EXISTS ix_user_claims_account ON user_claims (account_id)`,
}

// CreateSchema creates every table and index if missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema drops every table. Used by tests and the migrate command.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
