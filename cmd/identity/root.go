package main

import (
	"github.com/spf13/cobra"

	identity "github.com/goliatone/go-identity"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the identity CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Identity and access control service",
		Long: `identity manages accounts, credentials, provider logins and roles,
and issues signed bearer tokens carrying roles and policies.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewGrantCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

func loadRuntime() (identity.Config, identity.Logger, error) {
	cfg, err := identity.LoadConfig(configFile)
	if err != nil {
		return identity.Config{}, nil, err
	}

	logger, err := identity.NewLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return identity.Config{}, nil, err
	}
	return cfg, logger, nil
}
