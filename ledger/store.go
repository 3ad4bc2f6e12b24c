// Package ledger holds the finance application's durable state: a sqlite key-value
// table where each entry is an independently JSON-encoded value, an in-memory copy of
// the decoded state, and the save hooks observers register to react to persistence.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Persisted keys.
const (
	KeyTransactions          = "financialTransactions"
	KeyRecurringTransactions = "recurringTransactions"
	KeyFinancialGoals        = "financialGoals"
	KeyNotificationSettings  = "notificationSettings"
	KeyLastAutoBackup        = "last_auto_backup_financeiro"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const upsert = `INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = CURRENT_TIMESTAMP`

// SaveHook is called after a value has been persisted successfully.
type SaveHook func(ctx context.Context, key string)

// Store is the application's durable key-value state.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	hooks []SaveHook
}

// Open opens (creating if needed) the sqlite database at path and loads its state.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// sqlite has a single writer; one connection keeps every statement on the same database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores a raw value under key. It does not touch the in-memory state nor run hooks.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// PutAll stores every value in a single transaction: either all keys are written or none.
func (s *Store) PutAll(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Reload replaces the in-memory state with what is persisted. A value that is not a list
// (or, for the settings, an object) is an error; a single record that cannot be read is
// skipped and left in storage.
func (s *Store) Reload(ctx context.Context) error {
	var st State
	var err error
	if st.Transactions, err = loadRecords[Transaction](ctx, s, KeyTransactions); err != nil {
		return err
	}
	if st.RecurringTransactions, err = loadRecords[RecurringTransaction](ctx, s, KeyRecurringTransactions); err != nil {
		return err
	}
	if st.FinancialGoals, err = loadRecords[Goal](ctx, s, KeyFinancialGoals); err != nil {
		return err
	}
	raw, ok, err := s.Get(ctx, KeyNotificationSettings)
	if err != nil {
		return err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &st.NotificationSettings); err != nil {
			return fmt.Errorf("failed to decode %q: %w", KeyNotificationSettings, err)
		}
	}

	s.mu.Lock()
	s.state = st.clone()
	s.mu.Unlock()
	s.logger.Debug("ledger state loaded",
		zap.Int("transactions", len(st.Transactions)),
		zap.Int("recurring", len(st.RecurringTransactions)),
		zap.Int("goals", len(st.FinancialGoals)))
	return nil
}

func loadRecords[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	records := make([]T, 0, len(items))
	for i, item := range items {
		var r T
		if err := json.Unmarshal(item, &r); err != nil {
			s.logger.Warn("skipping unreadable record", zap.String("key", key), zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// State returns a copy of the in-memory state. Slices and the settings map are never nil.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// OnSave registers a hook run after every successful save.
func (s *Store) OnSave(h SaveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// SaveTransactions persists the whole transaction list and notifies the save hooks.
func (s *Store) SaveTransactions(ctx context.Context, txs []Transaction) error {
	b, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("failed to encode transactions: %w", err)
	}
	if err := s.Put(ctx, KeyTransactions, string(b)); err != nil {
		return err
	}
	s.saved(ctx, KeyTransactions, func(st *State) {
		st.Transactions = append([]Transaction{}, txs...)
	})
	return nil
}

// AddTransaction appends tx to the stored transaction list and notifies the save hooks.
// Stored records the state could not read are kept.
func (s *Store) AddTransaction(ctx context.Context, tx Transaction) error {
	raw, ok, err := s.Get(ctx, KeyTransactions)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if ok {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("failed to decode %q: %w", KeyTransactions, err)
		}
	}
	item, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	b, err := json.Marshal(append(items, item))
	if err != nil {
		return fmt.Errorf("failed to encode transactions: %w", err)
	}
	if err := s.Put(ctx, KeyTransactions, string(b)); err != nil {
		return err
	}
	s.saved(ctx, KeyTransactions, func(st *State) {
		st.Transactions = append(st.Transactions, tx)
	})
	return nil
}

// saved applies update to the in-memory state, then runs the save hooks for key.
func (s *Store) saved(ctx context.Context, key string, update func(*State)) {
	s.mu.Lock()
	update(&s.state)
	hooks := append([]SaveHook{}, s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(ctx, key)
	}
}
