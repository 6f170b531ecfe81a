package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tables and indexes of the postgres backend",
	Long: `Creates the Platform States and Token Generation States tables with their
secondary indexes. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Backend != config.BackendPostgres {
			logSuccess("the %s backend needs no migration", bold(cfg.Store.Backend))
			return nil
		}

		backend, err := f.OpenBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.Migrate(cmd.Context()); err != nil {
			return logError(err, "", "migration failed")
		}
		logSuccess("tables %s and %s are up to date",
			bold(cfg.Store.PlatformStatesTable), bold(cfg.Store.TokenGenerationStatesTable))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
