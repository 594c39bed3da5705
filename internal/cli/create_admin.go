package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/libris/libris-server/internal/service"
)

// NewCreateAdminCommand creates the create-admin command.
func NewCreateAdminCommand(opts *RootOptions) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long: `Create an admin account directly in the database.

Use this to recover a server whose admins are all locked out, or to add an
admin before the first start instead of going through the setup endpoint.`,
		Example: `  libctl create-admin --username root --password-stdin < secret.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd.OutOrStdout())

			if passwordStdin {
				if password != "" {
					return &ExitError{Code: ExitCommandError, Message: "--password and --password-stdin are mutually exclusive"}
				}
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return WrapExitError(ExitCommandError, "read password", err)
				}
				password = p
			}
			if password == "" {
				return &ExitError{Code: ExitCommandError, Message: "a password is required (--password or --password-stdin)"}
			}

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer a.Close()

			authService, err := a.auth()
			if err != nil {
				return WrapExitError(ExitCommandError, "open data directory", err)
			}
			admin, err := authService.CreateAdminUnchecked(cmd.Context(), service.Credentials{
				Username: username,
				Password: password,
			})
			if err != nil {
				return out.Failure(err)
			}

			return out.Success(admin, func(w io.Writer) {
				fmt.Fprintf(w, "Created admin %s (%s)\n", admin.Username, admin.ID)
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password (visible in shell history)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
