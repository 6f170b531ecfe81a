package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagopa/interop-platform-state/pkg/client"
)

var auditInspectCmd = &cobra.Command{
	Use:     "inspect CORRELATION-ID",
	Short:   "Show full details of a specific audit log entry",
	Example: `  platform-state audit inspect cq1v2kd0hv1c73a4ph2g`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		correlationID := args[0]
		if correlationID == "" {
			return fmt.Errorf("correlation ID cannot be empty")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving entry with correlation ID '%s'...", correlationID)
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:         1,
			CorrelationID: correlationID,
		})
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log entry")
		}
		if len(audits) == 0 {
			log.Warn().Str("correlation_id", correlationID).Msg("no audit log entries found")
			return nil
		}

		entry := audits[0]

		printKV := func(key string, val any) {
			fmt.Printf("  %-26s %v\n", faint(key)+":", val)
		}
		orNone := func(s string) any {
			if s == "" {
				return faint("(none)")
			}
			return s
		}

		status := green("issued")
		if !entry.Success {
			status = red("denied")
		}

		fmt.Println(bold("\n── Audit Entry ──"))
		printKV("Correlation ID", correlationID)
		printKV("Time", entry.Time.Local().Format(time.RFC1123))
		printKV("Action", entry.Action)
		printKV("Decision", status)

		fmt.Println(bold("\n── Client ──"))
		printKV("Client ID", orNone(entry.ClientID))
		printKV("Key ID", orNone(entry.Kid))
		printKV("Purpose ID", orNone(entry.PurposeID))
		printKV("Client Kind", orNone(string(entry.ClientKind)))

		fmt.Println(bold("\n── Validation ──"))
		printKV("Failed Step", orNone(entry.FailedStep))
		if entry.Error != "" {
			printKV("Error Message", red(entry.Error))
		}

		fmt.Println(bold("\n── Output ──"))
		printKV("Token ID", orNone(entry.TokenID))
		printKV("Fingerprint", orNone(entry.TokenFingerprint))
		printKV("Metadata", "")
		if len(entry.Metadata) == 0 {
			fmt.Printf("       %s\n", faint("(none)"))
		}
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("       %-16s %v\n", faint(k)+":", entry.Metadata[k])
		}
		fmt.Println()

		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditInspectCmd)
}
