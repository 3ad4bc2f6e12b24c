package ggapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/etnz/ggbackup/ledger"
)

// Backup document constants.
const (
	FormatVersion      = "1.0"
	ProducerName       = "GG Controle Financeiro"
	DefaultDescription = "Backup automático"
)

// isoMillis is the timestamp format of backup documents.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Summary holds the counts of a Snapshot.
type Summary struct {
	TotalTransactions int    `json:"totalTransactions"`
	TotalRecurring    int    `json:"totalRecurring"`
	TotalGoals        int    `json:"totalGoals"`
	LastUpdate        string `json:"lastUpdate"`
}

// BackupInfo describes when and why a Snapshot was taken.
type BackupInfo struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Version     string `json:"version"`
	App         string `json:"app"`
}

// Snapshot is the backup document: the whole application state at one instant.
type Snapshot struct {
	Transactions          []ledger.Transaction          `json:"transactions"`
	RecurringTransactions []ledger.RecurringTransaction `json:"recurringTransactions"`
	FinancialGoals        []ledger.Goal                 `json:"financialGoals"`
	NotificationSettings  map[string]any                `json:"notificationSettings"`
	Summary               Summary                       `json:"summary"`
	BackupInfo            BackupInfo                    `json:"backupInfo"`
}

// NewSnapshot captures st at now.
func NewSnapshot(st ledger.State, description string, now time.Time) Snapshot {
	if description == "" {
		description = DefaultDescription
	}
	stamp := now.UTC().Format(isoMillis)
	snap := Snapshot{
		Transactions:          st.Transactions,
		RecurringTransactions: st.RecurringTransactions,
		FinancialGoals:        st.FinancialGoals,
		NotificationSettings:  st.NotificationSettings,
		Summary: Summary{
			TotalTransactions: len(st.Transactions),
			TotalRecurring:    len(st.RecurringTransactions),
			TotalGoals:        len(st.FinancialGoals),
			LastUpdate:        stamp,
		},
		BackupInfo: BackupInfo{
			Date:        stamp,
			Description: description,
			Version:     FormatVersion,
			App:         ProducerName,
		},
	}
	if snap.Transactions == nil {
		snap.Transactions = []ledger.Transaction{}
	}
	if snap.RecurringTransactions == nil {
		snap.RecurringTransactions = []ledger.RecurringTransaction{}
	}
	if snap.FinancialGoals == nil {
		snap.FinancialGoals = []ledger.Goal{}
	}
	if snap.NotificationSettings == nil {
		snap.NotificationSettings = map[string]any{}
	}
	return snap
}

// Encode returns the document as 2-space indented JSON.
func (s Snapshot) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return b, nil
}

// backupDocument is a downloaded backup with every section kept raw until validated.
type backupDocument struct {
	Transactions          json.RawMessage `json:"transactions"`
	RecurringTransactions json.RawMessage `json:"recurringTransactions"`
	FinancialGoals        json.RawMessage `json:"financialGoals"`
	NotificationSettings  json.RawMessage `json:"notificationSettings"`
	BackupInfo            json.RawMessage `json:"backupInfo"`
}

// decodeBackup validates a downloaded backup and returns the ledger entries to write.
// Only the shape of the sections is checked: transactions must be a list. Sections that are
// absent (or of the wrong shape, for the optional ones) are left out so the matching ledger
// entries stay as they are. Records are stored as written.
func decodeBackup(data []byte) (map[string]string, *BackupInfo, error) {
	var doc backupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBackupFormat, err)
	}
	if !isArray(doc.Transactions) {
		return nil, nil, fmt.Errorf("%w: missing transactions list", ErrInvalidBackupFormat)
	}

	entries := make(map[string]string)
	sections := []struct {
		key string
		raw json.RawMessage
	}{
		{ledger.KeyTransactions, doc.Transactions},
		{ledger.KeyRecurringTransactions, doc.RecurringTransactions},
		{ledger.KeyFinancialGoals, doc.FinancialGoals},
	}
	for _, s := range sections {
		if !isArray(s.raw) {
			continue
		}
		v, err := compact(s.raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidBackupFormat, s.key, err)
		}
		entries[s.key] = v
	}

	if isObject(doc.NotificationSettings) {
		v, err := compact(doc.NotificationSettings)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidBackupFormat, ledger.KeyNotificationSettings, err)
		}
		entries[ledger.KeyNotificationSettings] = v
	}
	var info *BackupInfo
	if isObject(doc.BackupInfo) {
		// Informational only; a backupInfo this version cannot read does not block a restore.
		info = &BackupInfo{}
		if err := json.Unmarshal(doc.BackupInfo, info); err != nil {
			info = nil
		}
	}
	return entries, info, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func compact(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
