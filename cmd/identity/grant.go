package main

import (
	"context"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository"
)

// NewGrantCmd creates the grant subcommand.
func NewGrantCmd() *cobra.Command {
	var policies []string

	cmd := &cobra.Command{
		Use:   "grant <email> <role>",
		Short: "Assign a role to an account, creating the role when missing",
		Long: `Assign a role to the account registered with the given email. The
role is created when it does not exist; every --policy value is
attached to the role as a policy claim.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			db, err := repository.Open(cfg.Database, logger)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer db.Close()

			if err := grantRole(cmd.Context(), repository.NewManager(db), args[0], args[1], policies); err != nil {
				return err
			}
			cmd.Printf("Granted %s to %s\n", args[1], args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policies, "policy", nil, "policy claim to attach to the role (repeatable)")
	return cmd
}

func grantRole(ctx context.Context, manager *repository.Manager, email, roleName string, policies []string) error {
	return manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := manager.Accounts().FindByNormalizedEmail(ctx, tx, identity.Normalize(email))
		if err != nil {
			return oops.With("email", email).Wrapf(err, "find account")
		}

		role, err := manager.Roles().CreateRole(ctx, tx, roleName)
		if err != nil {
			return oops.With("role", roleName).Wrapf(err, "create role")
		}

		if err := manager.Roles().AssignRole(ctx, tx, account.ID, role.ID); err != nil {
			return oops.With("role", roleName).Wrapf(err, "assign role")
		}

		for _, policy := range policies {
			policy = strings.TrimSpace(policy)
			if policy == "" {
				continue
			}
			claim := identity.Claim{Type: identity.ClaimTypePolicy, Value: policy}
			if err := manager.Roles().AddRoleClaim(ctx, tx, role.ID, claim); err != nil {
				return oops.With("policy", policy).Wrapf(err, "add policy")
			}
		}
		return nil
	})
}
