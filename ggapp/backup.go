package ggapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/etnz/ggbackup/ledger"
)

// Backup defaults.
const (
	DefaultFolderName   = "Financeiro GG Backups"
	DefaultLocale       = "pt-BR"
	DefaultDownloadName = "backup_financeiro_gg.json"
	backupMimeType      = "application/json"
)

// FileClient is the remote file store backups are kept in.
type FileClient interface {
	FindFolder(ctx context.Context, sess *Session, name string) (string, error)
	FindOrCreateFolder(ctx context.Context, sess *Session, name string) (string, error)
	CreateFile(ctx context.Context, sess *Session, folderID, name, mimeType string, content io.Reader) (File, error)
	ListFiles(ctx context.Context, sess *Session, folderID, mimeType string) ([]File, error)
	DownloadFile(ctx context.Context, sess *Session, fileID string) ([]byte, error)
}

// StateStore is the application state backups are taken from and restored into.
type StateStore interface {
	State() ledger.State
	PutAll(ctx context.Context, values map[string]string) error
	Reload(ctx context.Context) error
}

// BackupRecord describes one backup file in the remote folder.
type BackupRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Label       string    `json:"label" yaml:"label"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	SizeBytes   int64     `json:"sizeBytes" yaml:"sizeBytes"`
	DisplayTime string    `json:"displayTime" yaml:"displayTime"`
}

// BackupService creates, lists, restores and downloads backups of a StateStore.
type BackupService struct {
	files  FileClient
	store  StateStore
	logger *zap.Logger

	// Folder is the name of the remote folder holding the backups.
	Folder string
	// Locale selects the date and time layouts of file names and listings.
	Locale string
	// Clock stamps the backups.
	Clock clock.PassiveClock
}

// NewBackupService returns a service using the default folder, locale and the real clock.
func NewBackupService(files FileClient, store StateStore, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		files:  files,
		store:  store,
		logger: logger,
		Folder: DefaultFolderName,
		Locale: DefaultLocale,
		Clock:  clock.RealClock{},
	}
}

func (s *BackupService) record(f File) BackupRecord {
	return BackupRecord{
		ID:          f.ID,
		Name:        f.Name,
		Label:       DisplayName(f.Name),
		CreatedAt:   f.Created,
		SizeBytes:   f.Size,
		DisplayTime: DisplayTime(f.Created.Local(), s.Locale),
	}
}

// CreateBackup uploads a snapshot of the current state. An empty description gives a
// time-stamped name and the default description.
func (s *BackupService) CreateBackup(ctx context.Context, sess *Session, description string) (BackupRecord, error) {
	if !sess.Authenticated() {
		return BackupRecord{}, ErrUnauthenticated
	}

	now := s.Clock.Now()
	data, err := NewSnapshot(s.store.State(), description, now).Encode()
	if err != nil {
		return BackupRecord{}, err
	}
	name := BackupFileName(description, now, s.Locale)

	folderID, err := s.files.FindOrCreateFolder(ctx, sess, s.Folder)
	if err != nil {
		return BackupRecord{}, fmt.Errorf("failed to prepare backup folder: %w", err)
	}
	f, err := s.files.CreateFile(ctx, sess, folderID, name, backupMimeType, bytes.NewReader(data))
	if err != nil {
		return BackupRecord{}, err
	}
	if f.Created.IsZero() {
		f.Created = now
	}
	if f.Size == 0 {
		f.Size = int64(len(data))
	}
	s.logger.Info("backup created", zap.String("id", f.ID), zap.String("name", f.Name), zap.Int("bytes", len(data)))
	return s.record(f), nil
}

// ListBackups returns the backups, newest first. A disconnected session or a missing
// folder gives an empty list.
func (s *BackupService) ListBackups(ctx context.Context, sess *Session) ([]BackupRecord, error) {
	records := []BackupRecord{}
	if !sess.Authenticated() {
		return records, nil
	}

	folderID, err := s.files.FindFolder(ctx, sess, s.Folder)
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		s.logger.Debug("no backup folder yet", zap.String("folder", s.Folder))
		return records, nil
	}

	files, err := s.files.ListFiles(ctx, sess, folderID, backupMimeType)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		records = append(records, s.record(f))
	}
	return records, nil
}

// DownloadBackupLocally writes an indented copy of a backup to path, or to
// DefaultDownloadName when path is empty, and returns the path written.
// The application state is not touched.
func (s *BackupService) DownloadBackupLocally(ctx context.Context, sess *Session, fileID, path string) (string, error) {
	data, err := s.files.DownloadFile(ctx, sess, fileID)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBackupFormat, err)
	}
	out.WriteByte('\n')

	if path == "" {
		path = DefaultDownloadName
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, out.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("backup downloaded", zap.String("id", fileID), zap.String("path", path))
	return path, nil
}
