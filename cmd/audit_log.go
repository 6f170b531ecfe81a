package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/pkg/client"
)

var auditLogOpts client.ListAuditsOpts

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	Example: `  platform-state audit log -n 50
  platform-state audit log --client-id <client-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), auditLogOpts)
		if err != nil {
			return logError(err, correlation, "failed to fetch audit log")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "Action", "Client", "Kind", "Result", "Failed Step", "Correlation ID",
		})

		for _, e := range audits {
			status := greenCheck + " issued"
			if !e.Success {
				status = redCross + " denied"
			}

			t.AppendRow(table.Row{
				e.Time.Local().Format(time.RFC3339),
				e.Action,
				bold(truncate(e.ClientID, 36)),
				e.ClientKind,
				status,
				e.FailedStep,
				faint(e.ID),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().UintVarP(&auditLogOpts.Limit, "limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().StringVar(&auditLogOpts.ClientID, "client-id", "", "Only entries of this client")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Fingerprint, "fingerprint", "", "Only the entry of the token with this fingerprint")
}
