package cli

import (
	"github.com/spf13/cobra"

	"github.com/etnz/ggbackup/config"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ggbackup settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-client-id <client-id>",
		Short: "Store the OAuth client id of your Google Cloud project",
		Long: `Store the OAuth client id used to sign in.

Create a "Web application" OAuth client in the Google Cloud Console, enable the Google
Drive API, and add the redirect URL (default http://localhost:8080/) to its authorized
redirect URIs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := e.path()
			if err != nil {
				return err
			}
			if err := config.SetClientID(path, args[0]); err != nil {
				return err
			}
			notify(e.stdout, levelSuccess, "Client id saved to "+path)
			return nil
		},
	})
	return cmd
}
