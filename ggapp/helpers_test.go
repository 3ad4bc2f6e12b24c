package ggapp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/etnz/ggbackup/internal/drivetest"
	"github.com/etnz/ggbackup/ledger"
)

const testToken = "ya29.test-token"

// t0 is 2024-05-01 14:30:15 UTC.
var t0 = time.Date(2024, 5, 1, 14, 30, 15, 0, time.UTC)

func liveSession() *Session {
	return NewSession(&oauth2.Token{
		AccessToken: testToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fixture struct {
	srv     *drivetest.Server
	store   *ledger.Store
	drive   *DriveClient
	backups *BackupService
	clock   *testingclock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := drivetest.NewServer(t, testToken)
	store := openLedger(t)
	dc := NewDriveClient(srv.DriveEndpoint(), srv.Client(), zaptest.NewLogger(t))
	bs := NewBackupService(dc, store, zaptest.NewLogger(t))
	clk := testingclock.NewFakeClock(t0)
	bs.Clock = clk
	return &fixture{srv: srv, store: store, drive: dc, backups: bs, clock: clk}
}

// backupFiles returns the JSON files held by the fake server, oldest first.
func (f *fixture) backupFiles() []drivetest.File {
	var out []drivetest.File
	for _, file := range f.srv.Files() {
		if file.MimeType == backupMimeType {
			out = append(out, file)
		}
	}
	return out
}

// seed writes a known state into the ledger.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.PutAll(ctx, map[string]string{
		ledger.KeyTransactions:          `[{"id":"t1","description":"Salário","amount":"3500","type":"income","category":"salary","date":"2024-04-30"},{"id":"t2","description":"Mercado","amount":"212.4","type":"expense","category":"food","date":"2024-05-01"}]`,
		ledger.KeyRecurringTransactions: `[{"id":"r1","description":"Aluguel","amount":"1200","type":"expense","frequency":"monthly","dayOfMonth":5,"active":true}]`,
		ledger.KeyFinancialGoals:        `[{"id":"g1","name":"Viagem","targetAmount":"5000","currentAmount":"750","deadline":"2024-12-31"}]`,
		ledger.KeyNotificationSettings:  `{"enabled":true,"daysBefore":3}`,
	}))
	require.NoError(t, f.store.Reload(ctx))
}

func confirmYes(context.Context, string) (bool, error) { return true, nil }
