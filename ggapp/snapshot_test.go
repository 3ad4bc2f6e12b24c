package ggapp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/ggbackup/ledger"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := f.store.State()

	data, err := NewSnapshot(before, "", t0).Encode()
	require.NoError(t, err)

	entries, info, err := decodeBackup(data)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, DefaultDescription, info.Description)

	other := openLedger(t)
	require.NoError(t, other.PutAll(ctx, entries))
	require.NoError(t, other.Reload(ctx))
	after := other.State()

	assert.JSONEq(t, mustJSON(t, before.Transactions), mustJSON(t, after.Transactions))
	assert.JSONEq(t, mustJSON(t, before.RecurringTransactions), mustJSON(t, after.RecurringTransactions))
	assert.JSONEq(t, mustJSON(t, before.FinancialGoals), mustJSON(t, after.FinancialGoals))
	assert.JSONEq(t, mustJSON(t, before.NotificationSettings), mustJSON(t, after.NotificationSettings))
}

func TestSnapshotDocument(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	data, err := NewSnapshot(f.store.State(), "monthly", t0).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"transactions\": [")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]any{
		"totalTransactions": float64(2),
		"totalRecurring":    float64(1),
		"totalGoals":        float64(1),
		"lastUpdate":        "2024-05-01T14:30:15.000Z",
	}, doc["summary"])
	assert.Equal(t, map[string]any{
		"date":        "2024-05-01T14:30:15.000Z",
		"description": "monthly",
		"version":     "1.0",
		"app":         "GG Controle Financeiro",
	}, doc["backupInfo"])

	txs := doc["transactions"].([]any)
	assert.Equal(t, float64(3500), txs[0].(map[string]any)["amount"], "amounts are JSON numbers")
}

func TestSnapshotKeepsWebAppValues(t *testing.T) {
	ctx := context.Background()
	store := openLedger(t)
	require.NoError(t, store.PutAll(ctx, map[string]string{
		ledger.KeyTransactions:          `[{"id":1714560000000,"description":"Mercado","amount":212.4,"type":"expense","date":"2024-05-01"}]`,
		ledger.KeyRecurringTransactions: `[{"id":"r1","description":"Aluguel","amount":1200,"type":"expense","frequency":"monthly","dayOfMonth":"5","active":"true"}]`,
	}))
	require.NoError(t, store.Reload(ctx))

	data, err := NewSnapshot(store.State(), "", t0).Encode()
	require.NoError(t, err)

	var doc struct {
		Transactions          []map[string]any `json:"transactions"`
		RecurringTransactions []map[string]any `json:"recurringTransactions"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Transactions, 1)
	assert.Equal(t, float64(1714560000000), doc.Transactions[0]["id"])
	assert.Equal(t, 212.4, doc.Transactions[0]["amount"])
	require.Len(t, doc.RecurringTransactions, 1)
	assert.Equal(t, "r1", doc.RecurringTransactions[0]["id"])
	assert.Equal(t, float64(5), doc.RecurringTransactions[0]["dayOfMonth"])
	assert.Equal(t, true, doc.RecurringTransactions[0]["active"])
}

func TestSnapshotEmptyState(t *testing.T) {
	data, err := NewSnapshot(ledger.State{}, "", t0).Encode()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{}, doc["transactions"])
	assert.Equal(t, []any{}, doc["recurringTransactions"])
	assert.Equal(t, []any{}, doc["financialGoals"])
	assert.Equal(t, map[string]any{}, doc["notificationSettings"])
}

func TestDecodeBackup(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		keys    []string
		invalid bool
	}{
		{
			name: "transactions only",
			doc:  `{"transactions":[]}`,
			keys: []string{ledger.KeyTransactions},
		},
		{
			name: "every section",
			doc:  `{"transactions":[],"recurringTransactions":[],"financialGoals":[],"notificationSettings":{"a":1}}`,
			keys: []string{ledger.KeyTransactions, ledger.KeyRecurringTransactions, ledger.KeyFinancialGoals, ledger.KeyNotificationSettings},
		},
		{
			name: "wrong optional shapes are skipped",
			doc:  `{"transactions":[],"recurringTransactions":"oops","financialGoals":null,"notificationSettings":[1]}`,
			keys: []string{ledger.KeyTransactions},
		},
		{name: "transactions missing", doc: `{"financialGoals":[]}`, invalid: true},
		{name: "transactions not a list", doc: `{"transactions":"x"}`, invalid: true},
		{name: "transactions null", doc: `{"transactions":null}`, invalid: true},
		{
			name: "records are not checked",
			doc:  `{"transactions":[{"id":1714560000000,"amount":"abc"}],"financialGoals":[{"targetAmount":true}]}`,
			keys: []string{ledger.KeyTransactions, ledger.KeyFinancialGoals},
		},
		{
			name: "unreadable backupInfo is ignored",
			doc:  `{"transactions":[],"backupInfo":{"version":1}}`,
			keys: []string{ledger.KeyTransactions},
		},
		{name: "not json", doc: `<html>`, invalid: true},
		{name: "not an object", doc: `[1,2]`, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _, err := decodeBackup([]byte(tt.doc))
			if tt.invalid {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidBackupFormat))
				return
			}
			require.NoError(t, err)
			var keys []string
			for k := range entries {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.keys, keys)
		})
	}
}
