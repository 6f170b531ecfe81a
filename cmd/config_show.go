package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration with defaults applied",
	Long:  `Prints the effective configuration. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}

		if cfg.Store.DSN != "" {
			cfg.Store.DSN = redacted
		}
		if cfg.Stream.RedisPassword != "" {
			cfg.Stream.RedisPassword = redacted
		}
		if cfg.Server.AdminKey != "" {
			cfg.Server.AdminKey = redacted
		}
		if _, ok := cfg.Issuer.Options["private_key"]; ok {
			cfg.Issuer.Options["private_key"] = redacted
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
