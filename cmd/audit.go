package cmd

import (
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse the token issuance audit log of a server",
	Long: `Lists and inspects audit entries written for every token request.
Requires --server and an admin token.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
