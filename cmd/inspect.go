package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/core"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show projected entries by primary key",
	Long: `Reads one entry of the Platform States or Token Generation States table, from a
remote server with --server (admin token required) or from the configured store.`,
}

var inspectPlatformCmd = &cobra.Command{
	Use:   "platform PK",
	Short: "Show a platform state entry",
	Example: `  platform-state inspect platform AGREEMENT#<agreement-id>
  platform-state inspect platform ESERVICEDESCRIPTOR#<eservice-id>#<descriptor-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk := args[0]
		if f.IsRemote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			item, correlation, err := cli.PlatformState(cmd.Context(), pk)
			if err != nil {
				return logError(err, correlation, "failed to read platform state")
			}
			return printItem(pk, item)
		}

		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}
		backend, err := f.OpenBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		entry, err := backend.Stores.Platform.Lookup(cmd.Context(), pk)
		if err != nil {
			return err
		}
		if entry == nil {
			log.Warn().Str("pk", pk).Msg("no platform state entry found")
			return BeQuietError{}
		}
		return printItem(pk, entry.ToItem())
	},
}

var inspectTokenCmd = &cobra.Command{
	Use:   "token PK",
	Short: "Show a token generation state entry",
	Example: `  platform-state inspect token CLIENTKIDPURPOSE#<client-id>#<kid>#<purpose-id>
  platform-state inspect token CLIENTKID#<client-id>#<kid>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk := args[0]
		if _, err := core.ParseTokenGenerationPK(pk); err != nil {
			return err
		}
		if f.IsRemote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			item, correlation, err := cli.TokenState(cmd.Context(), pk)
			if err != nil {
				return logError(err, correlation, "failed to read token generation state")
			}
			return printItem(pk, item)
		}

		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}
		backend, err := f.OpenBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		entry, err := backend.Stores.Tokens.Get(cmd.Context(), pk)
		if err != nil {
			return err
		}
		if entry == nil {
			log.Warn().Str("pk", pk).Msg("no token generation state entry found")
			return BeQuietError{}
		}
		return printItem(pk, entry.ToItem())
	},
}

func printItem(pk string, item map[string]any) error {
	out, err := yaml.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	fmt.Printf("%s %s\n", bold("──"), bold(pk))
	fmt.Print(string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectPlatformCmd)
	inspectCmd.AddCommand(inspectTokenCmd)
}
