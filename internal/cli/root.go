// Package cli implements libctl, the offline operator tool for a Libris data directory.
//
// libctl opens the same database, search index, and audit log as the server,
// so the server must be stopped while it runs.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string
	DataDir string
	DBPath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for libctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "libctl",
		Short: "Operate a Libris data directory",
		Long: `libctl administers a Libris server's data directory offline: it creates
admins, seeds catalogs, repairs availability counts, and reads the audit log.

Stop the server before running commands that open the data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to .env file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default: LIBRIS_DATA_DIR or ~/.libris)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db-path", "", "SQLite database path (default: <data-dir>/libris.db)")

	// Add subcommands
	cmd.AddCommand(NewCreateAdminCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}
