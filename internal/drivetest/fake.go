// Package drivetest provides an in-memory Google Drive v3 and tokeninfo server for tests.
// It understands the small subset of the REST surface ggbackup uses: files.list with a
// name / parent / mimeType / trashed query, files.create (metadata only or multipart
// upload), files.get with alt=media, and oauth2/v2/tokeninfo.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// File is a file or folder held by the Server.
type File struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
	Trashed  bool
	Created  time.Time
	Content  []byte
}

// Server is a fake Drive endpoint. The zero value is not usable; use NewServer.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]*File
	nextID   int
	now      time.Time
	requests []string
	tokens   map[string]bool

	// UploadError, when set, makes every upload fail with this message and a 403.
	UploadError string
	// DownloadStatus, when non-zero, is returned for every media download.
	DownloadStatus int
}

// NewServer starts a Server that is closed when the test ends. Bearer tokens listed in
// validTokens are accepted; every other token is rejected with a 401.
func NewServer(t testing.TB, validTokens ...string) *Server {
	s := &Server{
		files:  make(map[string]*File),
		now:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		tokens: make(map[string]bool),
	}
	for _, tok := range validTokens {
		s.tokens[tok] = true
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// DriveEndpoint is the base path to pass as the Drive service endpoint.
func (s *Server) DriveEndpoint() string { return s.URL + "/drive/v3/" }

// TokenInfoEndpoint is the base path to pass as the oauth2 service endpoint.
func (s *Server) TokenInfoEndpoint() string { return s.URL + "/" }

// Requests returns the number of Drive requests received (tokeninfo excluded).
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// RequestLog returns "METHOD path" for every Drive request received.
func (s *Server) RequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requests...)
}

// AcceptToken adds tok to the accepted bearer tokens.
func (s *Server) AcceptToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok] = true
}

// RevokeToken removes tok from the accepted bearer tokens.
func (s *Server) RevokeToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tok)
}

// AddFile stores f, assigning an id and a creation time when missing, and returns the id.
func (s *Server) AddFile(f File) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&f)
}

// File returns a copy of the file with the given id.
func (s *Server) File(id string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// Files returns a copy of every file, oldest first.
func (s *Server) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []File
	for _, f := range s.files {
		out = append(out, *f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (s *Server) add(f *File) string {
	if f.ID == "" {
		s.nextID++
		f.ID = fmt.Sprintf("file-%03d", s.nextID)
	}
	if f.Created.IsZero() {
		s.now = s.now.Add(time.Minute)
		f.Created = s.now
	}
	s.files[f.ID] = f
	return f.ID
}

type apiFile struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	MimeType    string   `json:"mimeType,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	CreatedTime string   `json:"createdTime,omitempty"`
	Size        string   `json:"size,omitempty"`
}

func toAPI(f *File) apiFile {
	a := apiFile{
		ID:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Parents:     f.Parents,
		CreatedTime: f.Created.Format(time.RFC3339),
	}
	if f.MimeType != "application/vnd.google-apps.folder" {
		a.Size = fmt.Sprint(len(f.Content))
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/tokeninfo") {
		s.handleTokenInfo(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)

	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !s.tokens[tok] {
		writeError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	i := strings.Index(r.URL.Path, "/files")
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	id := strings.Trim(r.URL.Path[i+len("/files"):], "/")

	switch {
	case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") != "":
		s.handleUpload(w, r)
	case r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case r.Method == http.MethodGet && id == "":
		s.handleList(w, r)
	case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		s.handleDownload(w, id)
	case r.Method == http.MethodGet:
		f, ok := s.files[id]
		if !ok {
			writeError(w, http.StatusNotFound, "File not found: "+id)
			return
		}
		writeJSON(w, http.StatusOK, toAPI(f))
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("access_token")
	s.mu.Lock()
	ok := s.tokens[tok]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_token",
			"error_description": "Invalid Value",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issued_to":  "test-client",
		"audience":   "test-client",
		"scope":      "https://www.googleapis.com/auth/drive.file",
		"expires_in": 3599,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var meta apiFile
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata: "+err.Error())
		return
	}
	f := &File{Name: meta.Name, MimeType: meta.MimeType, Parents: meta.Parents}
	s.add(f)
	writeJSON(w, http.StatusOK, toAPI(f))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.UploadError != "" {
		writeError(w, http.StatusForbidden, s.UploadError)
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		writeError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta apiFile
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata: "+err.Error())
		return
	}
	part, err = mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing media part")
		return
	}
	content, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable media part")
		return
	}

	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = part.Header.Get("Content-Type")
	}
	f := &File{Name: meta.Name, MimeType: mimeType, Parents: meta.Parents, Content: content}
	s.add(f)
	writeJSON(w, http.StatusOK, toAPI(f))
}

func (s *Server) handleDownload(w http.ResponseWriter, id string) {
	if s.DownloadStatus != 0 {
		writeError(w, s.DownloadStatus, http.StatusText(s.DownloadStatus))
		return
	}
	f, ok := s.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	w.Header().Set("Content-Type", f.MimeType)
	w.Write(f.Content)
}

var (
	nameRe    = regexp.MustCompile(`name\s*=\s*'((?:[^'\\]|\\.)*)'`)
	parentRe  = regexp.MustCompile(`'([^']+)'\s+in\s+parents`)
	mimeRe    = regexp.MustCompile(`mimeType\s*=\s*'([^']+)'`)
	trashedRe = regexp.MustCompile(`trashed\s*=\s*false`)
	unescape  = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	var matches []*File
	for _, f := range s.files {
		if m := nameRe.FindStringSubmatch(q); m != nil && f.Name != unescape.Replace(m[1]) {
			continue
		}
		if m := mimeRe.FindStringSubmatch(q); m != nil && f.MimeType != m[1] {
			continue
		}
		if m := parentRe.FindStringSubmatch(q); m != nil && !contains(f.Parents, m[1]) {
			continue
		}
		if trashedRe.MatchString(q) && f.Trashed {
			continue
		}
		matches = append(matches, f)
	}

	desc := strings.HasSuffix(strings.TrimSpace(r.URL.Query().Get("orderBy")), "desc")
	sort.SliceStable(matches, func(i, j int) bool {
		if desc {
			return matches[i].Created.After(matches[j].Created)
		}
		return matches[i].Created.Before(matches[j].Created)
	})

	out := make([]apiFile, 0, len(matches))
	for _, f := range matches {
		out = append(out, toAPI(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
