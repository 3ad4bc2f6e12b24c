package ggapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// TokenStore persists a single bearer token in a file and checks it is still alive.
type TokenStore struct {
	path         string
	infoEndpoint string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewTokenStore returns a store writing to path. infoEndpoint overrides Google's tokeninfo
// base URL when non-empty; httpClient defaults to http.DefaultClient.
func NewTokenStore(path, infoEndpoint string, httpClient *http.Client, logger *zap.Logger) *TokenStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{path: path, infoEndpoint: infoEndpoint, httpClient: httpClient, logger: logger}
}

// Path returns the token file path.
func (s *TokenStore) Path() string { return s.path }

// Save writes token to the token file, replacing any previous one.
func (s *TokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read/write for the user only.
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token to file: %w", err)
	}
	return nil
}

// Load returns the persisted token, or nil when there is none.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode token from file: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	return tok, nil
}

// Clear removes the persisted token.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Validate asks the tokeninfo endpoint whether token is still alive. Any failure, network
// included, counts as dead and clears the persisted token. On success the token expiry is
// refreshed from the remote answer.
func (s *TokenStore) Validate(ctx context.Context, token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}
	if !token.Expiry.IsZero() && time.Now().After(token.Expiry) {
		s.logger.Info("stored token expired", zap.Time("expiry", token.Expiry))
		s.clearQuietly()
		return false
	}

	opts := []option.ClientOption{option.WithHTTPClient(s.httpClient)}
	if s.infoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.infoEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		s.logger.Warn("could not create tokeninfo client", zap.Error(err))
		s.clearQuietly()
		return false
	}

	info, err := svc.Tokeninfo().AccessToken(token.AccessToken).Context(ctx).Do()
	if err != nil {
		s.logger.Info("stored token rejected", zap.String("token", redact(token.AccessToken)), zap.Error(err))
		s.clearQuietly()
		return false
	}
	if info.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(info.ExpiresIn) * time.Second)
	}
	s.logger.Debug("stored token is alive", zap.String("token", redact(token.AccessToken)), zap.Int64("expires_in", info.ExpiresIn))
	return true
}

// Restore loads the persisted token and, when it is alive, connects sess with it.
// It makes at most one validation request.
func (s *TokenStore) Restore(ctx context.Context, sess *Session) bool {
	tok, err := s.Load()
	if err != nil {
		s.logger.Warn("could not load stored token", zap.Error(err))
		s.clearQuietly()
		return false
	}
	if tok == nil {
		return false
	}
	if !s.Validate(ctx, tok) {
		sess.clear()
		return false
	}
	sess.set(tok)
	return true
}

func (s *TokenStore) clearQuietly() {
	if err := s.Clear(); err != nil {
		s.logger.Warn("could not clear stored token", zap.Error(err))
	}
}
