// Package cli is the ggbackup command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/etnz/ggbackup/config"
	"github.com/etnz/ggbackup/ggapp"
)

// openBrowser shows a URL to the user; replaced in tests.
var openBrowser = browser.OpenURL

// env is what every command shares: the process streams and the global flags.
type env struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	configPath string
	verbose    bool
	yes        bool
	noBrowser  bool
	output     string
}

// NewRootCmd returns the root cobra command for the ggbackup CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	e := &env{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:   "ggbackup",
		Short: "Back up and restore GG Controle Financeiro data to Google Drive",
		Long: `ggbackup keeps copies of your finance data (transactions, recurring transactions,
financial goals and notification settings) as JSON files in the "Financeiro GG Backups"
folder of your Google Drive.

Run 'ggbackup config set-client-id <id>' once, then 'ggbackup login'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			e.stdin = cmd.InOrStdin()
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&e.configPath, "config", "", "Config file (default <user config dir>/ggbackup/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Print logs")
	cmd.PersistentFlags().BoolVarP(&e.yes, "yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().BoolVar(&e.noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.PersistentFlags().StringVarP(&e.output, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(newLoginCmd(e))
	cmd.AddCommand(newLogoutCmd(e))
	cmd.AddCommand(newStatusCmd(e))
	cmd.AddCommand(newConfigCmd(e))
	cmd.AddCommand(newBackupCmd(e))
	cmd.AddCommand(newTxCmd(e))

	return cmd
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		notify(os.Stderr, levelError, describe(err))
		return 1
	}
	return 0
}

func (e *env) logger() *zap.Logger {
	if !e.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (e *env) path() (string, error) {
	if e.configPath != "" {
		return e.configPath, nil
	}
	return config.DefaultPath()
}

// app loads the configuration and opens the application. When connect is set the
// persisted token, if still valid, connects the session.
func (e *env) app(ctx context.Context, connect bool) (*ggapp.App, error) {
	path, err := e.path()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	app, err := ggapp.New(ctx, cfg, nil, e.logger())
	if err != nil {
		return nil, err
	}
	if connect {
		app.Connect(ctx)
	}
	return app, nil
}

func (e *env) opener() func(string) error {
	if e.noBrowser {
		return func(url string) error {
			fmt.Fprintf(e.stderr, "Open this URL in your browser to grant access to your Google Drive:\n\n%s\n\n", url)
			return nil
		}
	}
	return openBrowser
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
