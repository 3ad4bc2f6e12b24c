package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etnz/ggbackup/ggapp"
)

func newBackupCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore and download backups",
	}

	cmd.AddCommand(newBackupCreateCmd(e))
	cmd.AddCommand(newBackupListCmd(e))
	cmd.AddCommand(newBackupRestoreCmd(e))
	cmd.AddCommand(newBackupDownloadCmd(e))

	return cmd
}

func newBackupCreateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "create [description]",
		Short: "Upload a backup of the current data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			var description string
			if len(args) == 1 {
				description = args[0]
			}
			if e.output == "table" {
				notify(e.stderr, levelInfo, "Creating backup...")
			}
			rec, err := app.Backups.CreateBackup(ctx, app.Session, description)
			if err != nil {
				return err
			}
			if e.output == "table" {
				notify(e.stdout, levelSuccess, fmt.Sprintf("Backup created: %s (%s)", rec.Name, rec.ID))
				return nil
			}
			return render(e.stdout, e.output, rec, nil)
		},
	}
}

func newBackupListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if !app.Session.Authenticated() {
				notify(e.stderr, levelWarning, "Not connected to Google Drive. Run 'ggbackup login' to see your backups.")
			}
			records, err := app.Backups.ListBackups(ctx, app.Session)
			if err != nil {
				return err
			}
			if len(records) == 0 && e.output == "table" {
				notify(e.stdout, levelInfo, "No backups found.")
				return nil
			}
			return render(e.stdout, e.output, records, backupRows(records))
		},
	}
}

func newBackupRestoreCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Replace the local data with a backup",
		Long: `Replace ALL local finance data with the content of a backup.

A backup of the current data (described "antes_da_restauracao") is uploaded first. If
that upload fails nothing is restored and your data is unchanged; the GG Controle
Financeiro web app, by contrast, goes on with the restore without that copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := ggapp.RestoreOptions{
				Confirm: e.restoreConfirmer(),
				Steps: []ggapp.Step{
					func(ctx context.Context) error {
						st := app.Ledger.State()
						notify(e.stdout, levelInfo, fmt.Sprintf("%d transactions, %d recurring, %d goals, balance %s.",
							len(st.Transactions), len(st.RecurringTransactions), len(st.FinancialGoals), st.Balance().StringFixed(2)))
						return nil
					},
				},
				Restart: func(ctx context.Context) error {
					// The ledger is reopened from disk, as a fresh start of the application would.
					return app.Reopen(ctx)
				},
			}
			if e.output == "table" {
				notify(e.stderr, levelInfo, "Restoring backup...")
			}
			res, err := app.Backups.RestoreBackup(ctx, app.Session, args[0], opts)
			if res == nil {
				return err
			}
			notify(e.stdout, levelSuccess, fmt.Sprintf("Backup restored. Previous data saved as %s.", res.SafetyBackup.Name))
			return err
		},
	}
}

func newBackupDownloadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "download <backup-id> [path]",
		Short: "Save a copy of a backup on this computer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			var path string
			if len(args) == 2 {
				path = args[1]
			}
			written, err := app.Backups.DownloadBackupLocally(ctx, app.Session, args[0], path)
			if err != nil {
				return err
			}
			notify(e.stdout, levelSuccess, "Backup downloaded to "+written)
			return nil
		},
	}
}
