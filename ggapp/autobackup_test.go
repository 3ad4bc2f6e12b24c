package ggapp

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/etnz/ggbackup/ledger"
)

func newAutoBackup(t *testing.T, f *fixture) *AutoBackup {
	return NewAutoBackup(f.backups, f.store, f.clock, zaptest.NewLogger(t))
}

func TestAutoBackupThrottle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auto := newAutoBackup(t, f)
	sess := liveSession()

	ran, err := auto.Trigger(ctx, sess)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, f.backupFiles(), 1)
	assert.Equal(t, "Financeiro_GG_auto_backup_01-05-2024.json", f.backupFiles()[0].Name)

	f.clock.SetTime(t0.Add(3_599_000 * time.Millisecond))
	ran, err = auto.Trigger(ctx, sess)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Len(t, f.backupFiles(), 1)

	f.clock.SetTime(t0.Add(3_600_000 * time.Millisecond))
	ran, err = auto.Trigger(ctx, sess)
	require.NoError(t, err)
	assert.False(t, ran, "exactly one interval is not enough")

	f.clock.SetTime(t0.Add(3_600_001 * time.Millisecond))
	ran, err = auto.Trigger(ctx, sess)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Len(t, f.backupFiles(), 2)
}

func TestAutoBackupUnauthenticated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auto := newAutoBackup(t, f)

	ran, err := auto.Trigger(ctx, &Session{})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 0, f.srv.Requests())

	_, ok, err := f.store.Get(ctx, ledger.KeyLastAutoBackup)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAutoBackupRecordsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auto := newAutoBackup(t, f)
	f.srv.UploadError = "Backend Error"

	ran, err := auto.Trigger(ctx, liveSession())
	assert.True(t, ran)
	var uerr *UploadError
	assert.True(t, errors.As(err, &uerr), "got %v", err)

	raw, ok, err := f.store.Get(ctx, ledger.KeyLastAutoBackup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(t0.UnixMilli(), 10), raw)

	last, err := auto.LastRun(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(t0))

	// No retry before the interval has passed.
	f.srv.UploadError = ""
	f.clock.Step(time.Minute)
	ran, err = auto.Trigger(ctx, liveSession())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, f.backupFiles())
}

func TestAutoBackupUnreadableMark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, ledger.KeyLastAutoBackup, "yesterday"))

	ran, err := newAutoBackup(t, f).Trigger(ctx, liveSession())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestAutoBackupInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auto := newAutoBackup(t, f)
	auto.Interval = 10 * time.Minute

	_, err := auto.Trigger(ctx, liveSession())
	require.NoError(t, err)
	f.clock.Step(10*time.Minute + time.Millisecond)
	ran, err := auto.Trigger(ctx, liveSession())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestAutoBackupHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := liveSession()
	f.store.OnSave(newAutoBackup(t, f).Hook(sess))

	require.NoError(t, f.store.AddTransaction(ctx, ledger.Transaction{
		ID:          ledger.NewID("t1"),
		Description: "Café",
		Amount:      decimal.RequireFromString("4.5"),
		Type:        ledger.Expense,
		Date:        "2024-05-01",
	}))
	files := f.backupFiles()
	require.Len(t, files, 1)
	assert.Contains(t, string(files[0].Content), "Café")

	// A second save within the hour does not upload again.
	require.NoError(t, f.store.AddTransaction(ctx, ledger.Transaction{ID: ledger.NewID("t2"), Type: ledger.Income, Amount: decimal.NewFromInt(1)}))
	assert.Len(t, f.backupFiles(), 1)
}

func TestAutoBackupHookIgnoresOtherKeys(t *testing.T) {
	f := newFixture(t)
	hook := newAutoBackup(t, f).Hook(liveSession())

	hook(context.Background(), ledger.KeyFinancialGoals)
	assert.Equal(t, 0, f.srv.Requests())
}
