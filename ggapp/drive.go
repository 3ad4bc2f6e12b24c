package ggapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// File is a file or folder within Google Drive.
type File struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
	Size    int64     `json:"size"`
}

// DriveClient performs the Drive calls needed by backups. Every call is authorized with
// the token of the session it is given.
type DriveClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDriveClient returns a client. endpoint overrides the Drive base URL when non-empty;
// httpClient is the transport the bearer token is added on top of.
func NewDriveClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *DriveClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveClient{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// service returns a Drive service authorized by sess, without touching the network when
// sess is not connected.
func (c *DriveClient) service(ctx context.Context, sess *Session) (*drive.Service, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(sess.Token()))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create drive service: %w", err)
	}
	return svc, nil
}

// quote escapes a value for use inside a single-quoted Drive query literal.
func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// FindFolder returns the id of the oldest non-trashed folder called name, or "" when there is none.
func (c *DriveClient) FindFolder(ctx context.Context, sess *Session, name string) (string, error) {
	svc, err := c.service(ctx, sess)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", quote(name), folderMimeType)
	list, err := svc.Files.List().Q(query).OrderBy("createdTime").PageSize(1).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", classify("search folder "+name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// FindOrCreateFolder returns the id of the folder called name, creating it when missing.
func (c *DriveClient) FindOrCreateFolder(ctx context.Context, sess *Session, name string) (string, error) {
	id, err := c.FindFolder(ctx, sess, name)
	if err != nil || id != "" {
		return id, err
	}

	svc, err := c.service(ctx, sess)
	if err != nil {
		return "", err
	}
	folder, err := svc.Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classify("create folder "+name, err)
	}
	c.logger.Info("created backup folder", zap.String("name", name), zap.String("id", folder.Id))
	return folder.Id, nil
}

// CreateFile uploads content as a new file called name inside folderID in a single
// multipart request.
func (c *DriveClient) CreateFile(ctx context.Context, sess *Session, folderID, name, mimeType string, content io.Reader) (File, error) {
	svc, err := c.service(ctx, sess)
	if err != nil {
		return File{}, err
	}
	meta := &drive.File{Name: name, MimeType: mimeType}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	f, err := svc.Files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Fields("id, name, createdTime, size").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return File{}, &UploadError{Name: name, Message: apiMessage(apiErr), Err: err}
		}
		return File{}, &NetworkError{Op: "upload " + name, Err: err}
	}
	return toFile(f), nil
}

// ListFiles returns the non-trashed files of type mimeType inside folderID, newest first.
func (c *DriveClient) ListFiles(ctx context.Context, sess *Session, folderID, mimeType string) ([]File, error) {
	svc, err := c.service(ctx, sess)
	if err != nil {
		return nil, err
	}
	var files []File
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", quote(folderID), quote(mimeType))
	err = svc.Files.List().
		Q(query).
		OrderBy("createdTime desc").
		Fields("nextPageToken, files(id, name, createdTime, size)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, toFile(f))
			}
			return nil
		})
	if err != nil {
		return nil, classify("list folder "+folderID, err)
	}
	return files, nil
}

// DownloadFile returns the content of a file.
func (c *DriveClient) DownloadFile(ctx context.Context, sess *Session, fileID string) ([]byte, error) {
	svc, err := c.service(ctx, sess)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &DownloadError{FileID: fileID, Message: apiMessage(apiErr), Err: err}
		}
		return nil, &NetworkError{Op: "download " + fileID, Err: err}
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read " + fileID, Err: err}
	}
	return content, nil
}

func toFile(f *drive.File) File {
	out := File{ID: f.Id, Name: f.Name, Size: f.Size}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		out.Created = t
	}
	return out
}

// classify wraps transport failures in a NetworkError and keeps API answers as they are.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %w", op, apiMessage(apiErr), err)
	}
	return &NetworkError{Op: op, Err: err}
}

func apiMessage(e *googleapi.Error) string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.Code); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}
