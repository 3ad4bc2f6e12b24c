// Package ggapp backs up and restores the finance ledger to Google Drive.
package ggapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/etnz/ggbackup/config"
	"github.com/etnz/ggbackup/ledger"
)

// App holds the application's state and dependencies: the session, the stores and the
// Drive client shared by every operation of a running process.
type App struct {
	Config  *config.Config
	Session *Session

	Tokens  *TokenStore
	Auth    *AuthFlow
	Drive   *DriveClient
	Ledger  *ledger.Store
	Backups *BackupService
	Auto    *AutoBackup

	logger *zap.Logger
}

// New creates and returns a new, fully initialized App instance. The session starts
// disconnected; call Connect to reuse a persisted token.
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}

	store, err := ledger.Open(ctx, cfg.DBPath, logger.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("could not open ledger: %w", err)
	}

	a := &App{
		Config:  cfg,
		Session: &Session{},
		Tokens:  NewTokenStore(cfg.TokenPath, cfg.TokenInfoEndpoint, httpClient, logger.Named("tokens")),
		Auth:    NewAuthFlow(cfg.ClientID, cfg.RedirectURL, logger.Named("auth")),
		Drive:   NewDriveClient(cfg.DriveEndpoint, httpClient, logger.Named("drive")),
		Ledger:  store,
		logger:  logger,
	}
	a.Auth.Timeout = cfg.AuthTimeout

	a.Backups = NewBackupService(a.Drive, store, logger.Named("backup"))
	if cfg.FolderName != "" {
		a.Backups.Folder = cfg.FolderName
	}
	if cfg.Locale != "" {
		a.Backups.Locale = cfg.Locale
	}

	a.Auto = NewAutoBackup(a.Backups, store, a.Backups.Clock, logger.Named("auto"))
	if cfg.AutoBackupInterval > 0 {
		a.Auto.Interval = cfg.AutoBackupInterval
	}
	store.OnSave(a.Auto.Hook(a.Session))
	return a, nil
}

// Connect restores the persisted token into the session when it is still valid.
func (a *App) Connect(ctx context.Context) bool {
	return a.Tokens.Restore(ctx, a.Session)
}

// SignIn runs the authorization flow, then connects the session and persists the token.
// On failure the session is left as it was.
func (a *App) SignIn(ctx context.Context) error {
	tok, err := a.Auth.Run(ctx)
	if err != nil {
		return err
	}
	a.Session.set(tok)
	if err := a.Tokens.Save(tok); err != nil {
		return err
	}
	a.logger.Info("signed in", zap.String("token", redact(tok.AccessToken)), zap.Time("expiry", tok.Expiry))
	return nil
}

// SignOut disconnects the session and forgets the persisted token.
func (a *App) SignOut() error {
	a.Session.clear()
	return a.Tokens.Clear()
}

// Status summarizes the connection and the ledger.
type Status struct {
	Connected    bool      `json:"connected" yaml:"connected"`
	Expiry       time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Folder       string    `json:"folder" yaml:"folder"`
	Transactions int       `json:"transactions" yaml:"transactions"`
	Recurring    int       `json:"recurring" yaml:"recurring"`
	Goals        int       `json:"goals" yaml:"goals"`
	Balance      string    `json:"balance" yaml:"balance"`
	LastAuto     time.Time `json:"lastAutoBackup,omitempty" yaml:"lastAutoBackup,omitempty"`
}

// Status returns the current Status.
func (a *App) Status(ctx context.Context) (Status, error) {
	st := a.Ledger.State()
	s := Status{
		Connected:    a.Session.Authenticated(),
		Expiry:       a.Session.Expiry(),
		Folder:       a.Backups.Folder,
		Transactions: len(st.Transactions),
		Recurring:    len(st.RecurringTransactions),
		Goals:        len(st.FinancialGoals),
		Balance:      st.Balance().StringFixed(2),
	}
	last, err := a.Auto.LastRun(ctx)
	if err != nil {
		return s, err
	}
	s.LastAuto = last
	return s, nil
}

// Reopen closes the ledger and opens it again from disk, keeping the save hooks wired.
func (a *App) Reopen(ctx context.Context) error {
	if err := a.Ledger.Close(); err != nil {
		a.logger.Warn("failed to close ledger", zap.Error(err))
	}
	store, err := ledger.Open(ctx, a.Config.DBPath, a.logger.Named("ledger"))
	if err != nil {
		return fmt.Errorf("could not reopen ledger: %w", err)
	}
	a.Ledger = store
	a.Backups.store = store
	a.Auto.marks = store
	store.OnSave(a.Auto.Hook(a.Session))
	return nil
}

// Close releases the ledger.
func (a *App) Close() error {
	return a.Ledger.Close()
}
