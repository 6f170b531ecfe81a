package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

// configCmd prints where each domain is read from and projected to; its
// subcommands validate and show the full configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the stores and streams the projectors are wired to",
	Long: `Without a subcommand, prints the projection store and, for every event
domain, the stream it is consumed from together with the streams where
undecodable and integrity-faulted messages are parked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}

		fmt.Println(bold("\n── Projection Store ──"))
		fmt.Printf("  %s:          %s\n", faint("Backend"), cfg.Store.Backend)
		fmt.Printf("  %s:  %s\n", faint("Platform States"), cfg.Store.PlatformStatesTable)
		fmt.Printf("  %s:     %s\n\n", faint("Token States"), cfg.Store.TokenGenerationStatesTable)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Domain", "Stream", "Dead Letters", "Integrity Faults"})
		for _, domain := range config.Domains {
			key := cfg.Stream.StreamKey(domain)
			t.AppendRow(table.Row{bold(domain), key, stream.DeadLetterStream(key), stream.IntegrityStream(key)})
		}
		applyTableFormat(t)
		t.Render()
		fmt.Printf("%s %s, %s %s\n", faint("group"), cfg.Stream.Group, faint("redis"), cfg.Stream.RedisAddr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
