package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent audited API requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 1000 {
				return &ExitError{Code: ExitCommandError, Message: "--limit must be between 1 and 1000"}
			}
			out := newFormatter(opts, cmd.OutOrStdout())

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer a.Close()

			handle, err := a.auditLog()
			if err != nil {
				return WrapExitError(ExitCommandError, "open audit log", err)
			}
			if handle.Log == nil {
				return &ExitError{Code: ExitFailure, Message: "the audit log is disabled (AUDIT_ENABLED=false)"}
			}

			records, err := handle.List(cmd.Context(), limit)
			if err != nil {
				return out.Failure(err)
			}

			return out.Success(records, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tSTATUS\tMETHOD\tPATH\tACTOR\tDURATION")
				for _, r := range records {
					actor := "-"
					if r.ActorRole != "" {
						actor = r.ActorRole + ":" + r.ActorID
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%dms\n",
						r.At.Local().Format(time.DateTime), r.Status, r.Method, r.Path, actor, r.DurationMs)
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of records to show, newest first")

	return cmd
}
