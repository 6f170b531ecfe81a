package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/issuer"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Parses the configuration, applies defaults and checks it. The signer is built
as well, so that an unreadable signing key is reported before the server starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			log.Error().Err(err).Msgf("%s Configuration is invalid.", redCross)
			return BeQuietError{}
		}
		if _, err := issuer.NewSigner(cfg.Issuer); err != nil {
			log.Error().Err(err).Msgf("%s Issuer configuration is invalid.", redCross)
			return BeQuietError{}
		}
		if cfg.Server.AdminKey == "" {
			log.Warn().Msg("server.admin_key is not set, admin routes will be disabled")
		}
		logSuccess("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
