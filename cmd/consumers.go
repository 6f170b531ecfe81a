package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consumersCmd = &cobra.Command{
	Use:   "consumers",
	Short: "Inspect the projectors of a running server",
	Long: `Shows the event consumers of a server started with 'serve --consume'.
Requires --server and an admin token.`,
}

var consumersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the domain consumers and their counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving consumers...")
		consumers, correlation, err := cli.Consumers(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list consumers")
		}
		if len(consumers) == 0 {
			log.Info().Msg("the server runs no consumers")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Domain", "Stream", "State", "Last Message", "Acked", "Failed", "Dead", "Parked"})

		for _, c := range consumers {
			state := "stopped"
			if c.Running {
				state = color.BlueString("running")
			}

			last := "never"
			if !c.LastHandled.IsZero() {
				prefix := greenCheck
				if c.LastResult != "acked" {
					prefix = redCross
				}
				last = fmt.Sprintf("%s %s %s", prefix, c.LastResult,
					faint(time.Since(c.LastHandled).Round(time.Second).String()+" ago"))
			}

			dead := strconv.FormatInt(c.DeadLettered, 10)
			if c.DeadLettered > 0 {
				dead = red(dead)
			}

			parked := strconv.FormatInt(c.Parked, 10)
			if c.Parked > 0 {
				parked = red(parked)
			}

			t.AppendRow(table.Row{
				bold(c.Domain),
				c.Stream,
				state,
				last,
				c.Acked,
				c.Failed,
				dead,
				parked,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

var consumersFailuresCmd = &cobra.Command{
	Use:   "failures DOMAIN",
	Short: "Show the latest failed messages of a domain consumer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		failures, correlation, err := cli.ConsumerFailures(cmd.Context(), args[0])
		if err != nil {
			return logError(err, correlation, "failed to retrieve consumer failures")
		}
		if len(failures) == 0 {
			logSuccess("no failures recorded for %s", bold(args[0]))
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Message", "Error"})
		for _, fl := range failures {
			t.AppendRow(table.Row{
				fl.Time.Local().Format(time.RFC3339),
				fl.MessageID,
				yellow(truncate(fl.Error, 96)),
			})
		}
		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumersCmd)
	consumersCmd.AddCommand(consumersListCmd)
	consumersCmd.AddCommand(consumersFailuresCmd)
}
