package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewReindexCommand creates the reindex command.
func NewReindexCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the book search index from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd.OutOrStdout())

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer a.Close()

			if !a.cfg.Search.Enabled {
				return &ExitError{Code: ExitFailure, Message: "search is disabled (SEARCH_ENABLED=false)"}
			}

			catalog, err := a.catalog()
			if err != nil {
				return WrapExitError(ExitCommandError, "open data directory", err)
			}
			n, err := catalog.RebuildIndex(cmd.Context())
			if err != nil {
				return out.Failure(err)
			}

			return out.Success(map[string]int{"indexed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Indexed %d book(s)\n", n)
			})
		},
	}
}
