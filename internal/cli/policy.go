package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/libris/libris-server/internal/access"
)

// PolicyEntry is one row of the access policy.
type PolicyEntry struct {
	Operation string   `json:"operation"`
	Public    bool     `json:"public"`
	Roles     []string `json:"roles,omitempty"`
}

// PolicyTable returns the access policy sorted by operation.
func PolicyTable() []PolicyEntry {
	ops := access.Operations()
	slices.Sort(ops)

	entries := make([]PolicyEntry, 0, len(ops))
	for _, op := range ops {
		e := PolicyEntry{Operation: string(op), Public: access.IsPublic(op)}
		for _, r := range access.Allowed(op) {
			e.Roles = append(e.Roles, string(r))
		}
		entries = append(entries, e)
	}
	return entries
}

// NewPolicyCommand creates the policy command. It does not open the data directory.
func NewPolicyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print which roles may perform each operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := PolicyTable()
			return newFormatter(opts, cmd.OutOrStdout()).Success(entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "OPERATION\tALLOWED")
				for _, e := range entries {
					allowed := strings.Join(e.Roles, ", ")
					if e.Public {
						allowed = "anyone"
					}
					fmt.Fprintf(tw, "%s\t%s\n", e.Operation, allowed)
				}
				_ = tw.Flush()
			})
		},
	}
}
