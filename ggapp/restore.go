package ggapp

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// SafetyBackupDescription is the description of the backup taken before a restore.
const SafetyBackupDescription = "antes_da_restauracao"

// Confirmer asks the user whether the backup fileID may replace the current data.
type Confirmer func(ctx context.Context, fileID string) (bool, error)

// Step is run once a restore has been written.
type Step func(ctx context.Context) error

// RestoreOptions configures RestoreBackup.
type RestoreOptions struct {
	// Confirm is required; a nil Confirm declines.
	Confirm Confirmer
	// Steps run after the state has been reloaded, in order.
	Steps []Step
	// Restart runs last.
	Restart Step
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	FileID       string
	SafetyBackup BackupRecord
	// Keys lists the ledger entries that were replaced.
	Keys []string
	// Info is the backupInfo section of the restored file, when it has one.
	Info *BackupInfo
}

// RestoreBackup replaces the application state with the content of the backup fileID.
//
// Nothing is written unless the user confirms, the file is a valid backup and a safety
// backup of the current state has been uploaded. Once written, the state is reloaded and
// the completion steps run in order; their failures are returned together with the
// result, the restore itself being done.
func (s *BackupService) RestoreBackup(ctx context.Context, sess *Session, fileID string, opts RestoreOptions) (*RestoreResult, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if opts.Confirm == nil {
		return nil, ErrRestoreCancelled
	}
	ok, err := opts.Confirm(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return nil, ErrRestoreCancelled
	}

	data, err := s.files.DownloadFile(ctx, sess, fileID)
	if err != nil {
		return nil, err
	}
	entries, info, err := decodeBackup(data)
	if err != nil {
		return nil, err
	}

	safety, err := s.CreateBackup(ctx, sess, SafetyBackupDescription)
	if err != nil {
		return nil, fmt.Errorf("safety backup failed, nothing restored: %w", err)
	}

	if err := s.store.PutAll(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to write restored data: %w", err)
	}

	res := &RestoreResult{FileID: fileID, SafetyBackup: safety, Info: info}
	for k := range entries {
		res.Keys = append(res.Keys, k)
	}
	sort.Strings(res.Keys)
	s.logger.Info("backup restored", zap.String("id", fileID), zap.Strings("keys", res.Keys), zap.String("safety_backup", safety.ID))

	chain := append([]Step{s.store.Reload}, opts.Steps...)
	if opts.Restart != nil {
		chain = append(chain, opts.Restart)
	}
	var result *multierror.Error
	for _, step := range chain {
		if err := step(ctx); err != nil {
			s.logger.Warn("restore completion step failed", zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	return res, result.ErrorOrNil()
}
