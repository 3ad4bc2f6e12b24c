package ggapp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/ggbackup/internal/drivetest"
	"github.com/etnz/ggbackup/ledger"
)

var allKeys = []string{
	ledger.KeyTransactions,
	ledger.KeyRecurringTransactions,
	ledger.KeyFinancialGoals,
	ledger.KeyNotificationSettings,
}

// rawState returns the persisted value of every ledger key.
func rawState(t *testing.T, s *ledger.Store) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, k := range allKeys {
		v, ok, err := s.Get(context.Background(), k)
		require.NoError(t, err)
		if ok {
			out[k] = v
		}
	}
	return out
}

func addBackup(f *fixture, content string) string {
	return f.srv.AddFile(drivetest.File{Name: "Financeiro_GG_x_01-05-2024.json", MimeType: "application/json", Content: []byte(content)})
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	want := f.store.State()

	rec, err := f.backups.CreateBackup(ctx, liveSession(), "monthly")
	require.NoError(t, err)

	// Change everything after the backup.
	require.NoError(t, f.store.PutAll(ctx, map[string]string{
		ledger.KeyRecurringTransactions: `[]`,
		ledger.KeyFinancialGoals:        `[]`,
		ledger.KeyNotificationSettings:  `{"enabled":false}`,
	}))
	require.NoError(t, f.store.SaveTransactions(ctx, nil))

	res, err := f.backups.RestoreBackup(ctx, liveSession(), rec.ID, RestoreOptions{Confirm: confirmYes})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, res.FileID)
	assert.ElementsMatch(t, allKeys, res.Keys)
	require.NotNil(t, res.Info)
	assert.Equal(t, "monthly", res.Info.Description)

	got := f.store.State()
	assert.JSONEq(t, mustJSON(t, want.Transactions), mustJSON(t, got.Transactions))
	assert.JSONEq(t, mustJSON(t, want.RecurringTransactions), mustJSON(t, got.RecurringTransactions))
	assert.JSONEq(t, mustJSON(t, want.FinancialGoals), mustJSON(t, got.FinancialGoals))
	assert.JSONEq(t, mustJSON(t, want.NotificationSettings), mustJSON(t, got.NotificationSettings))
}

func TestRestoreTakesSafetyBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	id := addBackup(f, `{"transactions":[]}`)

	res, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
	require.NoError(t, err)
	assert.Equal(t, "Financeiro_GG_antes_da_restauracao_01-05-2024.json", res.SafetyBackup.Name)

	// The safety backup holds the state from before the restore.
	safety, ok := f.srv.File(res.SafetyBackup.ID)
	require.True(t, ok)
	assert.Contains(t, string(safety.Content), "Salário")
	assert.Empty(t, f.store.State().Transactions)
}

func TestRestoreInvalidFormatLeavesStateUntouched(t *testing.T) {
	docs := map[string]string{
		"transactions missing":   `{"financialGoals":[],"notificationSettings":{"enabled":false}}`,
		"transactions string":    `{"transactions":"nope","financialGoals":[]}`,
		"not a backup":           `<!doctype html>`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.seed(t)
			before := rawState(t, f.store)
			id := addBackup(f, doc)

			_, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
			assert.ErrorIs(t, err, ErrInvalidBackupFormat)
			assert.Equal(t, before, rawState(t, f.store))
			assert.Len(t, f.backupFiles(), 1, "no safety backup before validation")
		})
	}
}

func TestRestoreWebAppBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	id := addBackup(f, `{
		"transactions":[{"id":1714560000000,"description":"Mercado","amount":212.4,"type":"expense","date":"2024-05-01"}],
		"recurringTransactions":[{"id":1714560000001,"description":"Aluguel","amount":1200,"type":"expense","frequency":"monthly","dayOfMonth":"5","active":"true"}],
		"financialGoals":[{"id":"g9","name":"Carro","targetAmount":30000,"currentAmount":0}]
	}`)

	res, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ledger.KeyTransactions, ledger.KeyRecurringTransactions, ledger.KeyFinancialGoals}, res.Keys)

	st := f.store.State()
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "1714560000000", st.Transactions[0].ID.String())
	assert.Equal(t, "212.4", st.Transactions[0].Amount.String())
	require.Len(t, st.RecurringTransactions, 1)
	assert.Equal(t, ledger.Int(5), st.RecurringTransactions[0].DayOfMonth)
	assert.True(t, bool(st.RecurringTransactions[0].Active))
	require.Len(t, st.FinancialGoals, 1)
	assert.Equal(t, "30000", st.FinancialGoals[0].TargetAmount.String())

	// The records are stored as the web app wrote them.
	raw := rawState(t, f.store)
	assert.Contains(t, raw[ledger.KeyTransactions], `"id":1714560000000`)
}

func TestRestoreKeepsUnreadableRecordsStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := addBackup(f, `{"transactions":[{"id":"t9","amount":"lots"},{"id":"t10","amount":5,"type":"income"}]}`)

	_, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
	require.NoError(t, err)

	st := f.store.State()
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "t10", st.Transactions[0].ID.String())
	assert.Contains(t, rawState(t, f.store)[ledger.KeyTransactions], `"lots"`)
}

func TestRestoreKeepsMissingSections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := rawState(t, f.store)
	id := addBackup(f, `{"transactions":[{"id":"n1","description":"Novo","amount":10,"type":"income","date":"2024-05-01"}]}`)

	_, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
	require.NoError(t, err)

	after := rawState(t, f.store)
	assert.Equal(t, before[ledger.KeyNotificationSettings], after[ledger.KeyNotificationSettings])
	assert.Equal(t, before[ledger.KeyRecurringTransactions], after[ledger.KeyRecurringTransactions])
	assert.Equal(t, before[ledger.KeyFinancialGoals], after[ledger.KeyFinancialGoals])
	assert.NotEqual(t, before[ledger.KeyTransactions], after[ledger.KeyTransactions])

	st := f.store.State()
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "n1", st.Transactions[0].ID.String())
	assert.Equal(t, "10", st.Transactions[0].Amount.String())
	assert.Equal(t, true, st.NotificationSettings["enabled"])
}

func TestRestoreDeclined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := rawState(t, f.store)

	decline := func(context.Context, string) (bool, error) { return false, nil }
	for _, confirm := range []Confirmer{decline, nil} {
		_, err := f.backups.RestoreBackup(ctx, liveSession(), "file-001", RestoreOptions{Confirm: confirm})
		assert.ErrorIs(t, err, ErrRestoreCancelled)
	}
	assert.Equal(t, 0, f.srv.Requests())
	assert.Equal(t, before, rawState(t, f.store))
}

func TestRestoreConfirmSeesFileID(t *testing.T) {
	f := newFixture(t)
	id := addBackup(f, `{"transactions":[]}`)

	var asked string
	confirm := func(_ context.Context, fileID string) (bool, error) {
		asked = fileID
		return false, nil
	}
	_, err := f.backups.RestoreBackup(context.Background(), liveSession(), id, RestoreOptions{Confirm: confirm})
	assert.ErrorIs(t, err, ErrRestoreCancelled)
	assert.Equal(t, id, asked)
}

func TestRestoreUnauthenticated(t *testing.T) {
	f := newFixture(t)
	called := false
	confirm := func(context.Context, string) (bool, error) { called = true; return true, nil }

	_, err := f.backups.RestoreBackup(context.Background(), &Session{}, "file-001", RestoreOptions{Confirm: confirm})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, called)
	assert.Equal(t, 0, f.srv.Requests())
}

func TestRestoreAbortsWhenSafetyBackupFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := rawState(t, f.store)
	id := addBackup(f, `{"transactions":[]}`)
	f.srv.UploadError = "Rate limit exceeded"

	_, err := f.backups.RestoreBackup(ctx, liveSession(), id, RestoreOptions{Confirm: confirmYes})
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, before, rawState(t, f.store))
	assert.Len(t, f.store.State().Transactions, 2)
}

func TestRestoreDownloadError(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	before := rawState(t, f.store)

	_, err := f.backups.RestoreBackup(context.Background(), liveSession(), "missing", RestoreOptions{Confirm: confirmYes})
	var derr *DownloadError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, before, rawState(t, f.store))
}

func TestRestoreCompletionChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := addBackup(f, `{"transactions":[{"id":"n1","description":"Novo","amount":"10","type":"income","date":"2024-05-01"}]}`)

	var order []string
	opts := RestoreOptions{
		Confirm: confirmYes,
		Steps: []Step{
			func(context.Context) error {
				// The in-memory state is already reloaded.
				order = append(order, "render:"+f.store.State().Transactions[0].ID.String())
				return nil
			},
			func(context.Context) error {
				order = append(order, "broken")
				return errors.New("summary unavailable")
			},
		},
		Restart: func(context.Context) error {
			order = append(order, "restart")
			return nil
		},
	}

	res, err := f.backups.RestoreBackup(ctx, liveSession(), id, opts)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "summary unavailable"))
	require.NotNil(t, res, "the restore itself succeeded")
	assert.Equal(t, []string{"render:n1", "broken", "restart"}, order)
	assert.Len(t, f.store.State().Transactions, 1)
}
