package ggapp

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/etnz/ggbackup/ledger"
)

// Auto backup defaults.
const (
	DefaultAutoBackupInterval = time.Hour
	AutoBackupDescription     = "auto_backup"
)

// BackupCreator takes a backup.
type BackupCreator interface {
	CreateBackup(ctx context.Context, sess *Session, description string) (BackupRecord, error)
}

// MarkStore keeps the time of the last automatic backup.
type MarkStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// AutoBackup takes a backup after transactions are saved, at most once per Interval.
type AutoBackup struct {
	backups BackupCreator
	marks   MarkStore
	clock   clock.PassiveClock
	logger  *zap.Logger

	// Interval is the minimum time between two automatic backups.
	Interval time.Duration
}

// NewAutoBackup returns an AutoBackup with the default interval. A nil clk means the real clock.
func NewAutoBackup(backups BackupCreator, marks MarkStore, clk clock.PassiveClock, logger *zap.Logger) *AutoBackup {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoBackup{
		backups:  backups,
		marks:    marks,
		clock:    clk,
		logger:   logger,
		Interval: DefaultAutoBackupInterval,
	}
}

// due reports whether more than Interval elapsed since the recorded backup time.
func (a *AutoBackup) due(ctx context.Context, now time.Time) bool {
	raw, ok, err := a.marks.Get(ctx, ledger.KeyLastAutoBackup)
	if err != nil {
		a.logger.Warn("could not read last auto backup time", zap.Error(err))
		return false
	}
	if !ok {
		return true
	}
	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return now.UnixMilli()-last > a.Interval.Milliseconds()
}

// Trigger takes a backup when sess is connected and the interval has elapsed. It reports
// whether a backup was attempted. The attempt time is recorded even when the upload
// fails, so the next try waits for the next save after the interval.
func (a *AutoBackup) Trigger(ctx context.Context, sess *Session) (bool, error) {
	if !sess.Authenticated() {
		return false, nil
	}
	now := a.clock.Now()
	if !a.due(ctx, now) {
		return false, nil
	}

	_, err := a.backups.CreateBackup(ctx, sess, AutoBackupDescription)
	if err != nil {
		a.logger.Warn("automatic backup failed", zap.Error(err))
	}
	if perr := a.marks.Put(ctx, ledger.KeyLastAutoBackup, strconv.FormatInt(now.UnixMilli(), 10)); perr != nil {
		a.logger.Warn("could not record auto backup time", zap.Error(perr))
	}
	return true, err
}

// Hook returns a save hook triggering a backup when the transactions are saved.
func (a *AutoBackup) Hook(sess *Session) ledger.SaveHook {
	return func(ctx context.Context, key string) {
		if key != ledger.KeyTransactions {
			return
		}
		if ran, err := a.Trigger(ctx, sess); ran && err == nil {
			a.logger.Info("automatic backup done")
		}
	}
}

// LastRun returns when the last automatic backup was attempted; zero if never.
func (a *AutoBackup) LastRun(ctx context.Context) (time.Time, error) {
	raw, ok, err := a.marks.Get(ctx, ledger.KeyLastAutoBackup)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
