package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair available-copy counts from open loans",
		Long: `Recompute every book's available count as its total copies minus its
open loans, and fix the books whose stored count disagrees.

The repaired books are listed with the values found before the repair.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd.OutOrStdout())

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer a.Close()

			ledger, err := a.ledger()
			if err != nil {
				return WrapExitError(ExitCommandError, "open data directory", err)
			}
			repaired, err := ledger.ReconcileAvailability(cmd.Context(), operator)
			if err != nil {
				return out.Failure(err)
			}

			return out.Success(map[string]any{"repaired": repaired}, func(w io.Writer) {
				if len(repaired) == 0 {
					fmt.Fprintln(w, "All availability counts are consistent")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BOOK\tNAME\tTOTAL\tWAS\tOPEN LOANS\tNOW")
				for _, d := range repaired {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
						d.BookID, d.Name, d.TotalCopies, d.CountAvailable, d.OpenLoans, d.Expected())
				}
				_ = tw.Flush()
				fmt.Fprintf(w, "Repaired %d book(s)\n", len(repaired))
			})
		},
	}
}
