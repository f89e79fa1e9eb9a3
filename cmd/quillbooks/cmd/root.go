package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quillbooks",
	Short: "Quillbooks is a multi-tenant ledger service",
	Long: `A multi-tenant financial-ledger web service. Bookkeeping itself is
delegated to an external ledger engine; this service owns authentication,
CSRF protection, partition selection, organization-scoped access control,
and the audit trail.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
