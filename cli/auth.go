package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etnz/ggbackup/ggapp"
)

func newLoginCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize ggbackup to store backups in your Google Drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Auth.Open = e.opener()
			app.Auth.Fallback = e.pastedAddress
			if !e.noBrowser {
				fmt.Fprintln(e.stderr, "Your browser should open for you to grant ggbackup access to your Google Drive...")
			}

			err = app.SignIn(ctx)
			if errors.Is(err, ggapp.ErrPopupBlocked) {
				// The sign-in server is already closed; a new run must print the URL instead.
				notify(e.stderr, levelWarning, "Could not open a browser. Run 'ggbackup login --no-browser' and open the printed URL yourself.")
			}
			if err != nil {
				return err
			}
			notify(e.stdout, levelSuccess, "Connected to Google Drive!")
			return nil
		},
	}
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the Google Drive access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.app(commandContext(cmd), false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.SignOut(); err != nil {
				return err
			}
			notify(e.stdout, levelInfo, "Disconnected from Google Drive.")
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connection and a summary of the local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Status(ctx)
			if err != nil {
				return err
			}
			return render(e.stdout, e.output, status, statusRows(status))
		},
	}
}
