package cmd

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show build information of this binary, or of a remote server with its health",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !f.IsRemote() {
			info := buildinfo.Current()
			printInfo(&info)
			return nil
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		log.Debug().Msg("Fetching build info from server...")
		info, correlation, err := cli.About(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get info from server")
		}
		printInfo(info)

		health, err := cli.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking server health: %w", err)
		}
		printHealth(health)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(info *buildinfo.Info) {
	commit := info.Commit
	if commit == "" {
		commit = "unknown"
	}
	if info.Modified {
		commit += faint(" (modified)")
	}
	fmt.Println(bold("\n── Platform State Build Information ──"))
	fmt.Printf("  %s:  %s\n", faint("Service"), info.Service)
	fmt.Printf("  %s:  %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:   %s\n", faint("Commit"), commit)
	fmt.Printf("  %s:       %s\n", faint("Go"), info.GoVersion)
}

func printHealth(health *api.Health) {
	status := greenCheck + " " + health.Status
	if health.Status != api.HealthOK {
		status = redCross + " " + red(health.Status)
	}
	fmt.Printf("  %s:   %s\n", faint("Health"), status)

	domains := make([]string, 0, len(health.Consumers))
	for d := range health.Consumers {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		state := "running"
		if !health.Consumers[d] {
			state = red("stopped")
		}
		fmt.Printf("    %s %s\n", faint(d+":"), state)
	}
}
