// Package dropboxtest runs an in-memory stand-in for the parts of the
// Dropbox API v2 the dropbox provider uses.
package dropboxtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Server is a fake Dropbox. The same URL serves the RPC, content and OAuth2
// token endpoints.
type Server struct {
	*httptest.Server

	// PageSize limits list_folder pages so cursors get exercised.
	PageSize int
	// Code is the authorization code the token endpoint accepts.
	Code string

	mu      sync.Mutex
	files   map[string][]byte
	folders map[string]bool
	tokens  map[string]bool
	issued  int
	cursors map[string][]entry
	nextCur int
}

type entry struct {
	Tag  string `json:".tag"`
	Name string `json:"name"`
}

// New starts a server that accepts the bearer token "test-token".
func New() *Server {
	s := &Server{
		PageSize: 2,
		Code:     "test-code",
		files:    make(map[string][]byte),
		folders:  map[string]bool{"": true},
		tokens:   map[string]bool{"test-token": true},
		cursors:  make(map[string][]entry),
	}

	r := chi.NewRouter()
	r.Post("/oauth2/token", s.token)
	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/2/users/get_current_account", s.account)
		r.Post("/2/files/download", s.download)
		r.Post("/2/files/upload", s.upload)
		r.Post("/2/files/get_metadata", s.metadata)
		r.Post("/2/files/delete_v2", s.delete)
		r.Post("/2/files/copy_v2", s.relocate(false))
		r.Post("/2/files/move_v2", s.relocate(true))
		r.Post("/2/files/create_folder_v2", s.createFolder)
		r.Post("/2/files/list_folder", s.listFolder)
		r.Post("/2/files/list_folder/continue", s.listContinue)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// File returns the content stored at p ("/dir/name").
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[p]
	return b, ok
}

// Put stores a file, creating its parent folders.
func (s *Server) Put(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(p, data)
}

// RevokeAll invalidates every issued access token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

func (s *Server) putLocked(p string, data []byte) {
	s.mkdirLocked(path.Dir(p))
	s.files[p] = append([]byte(nil), data...)
}

func (s *Server) mkdirLocked(dir string) {
	for dir != "/" && dir != "." && dir != "" {
		s.folders[dir] = true
		dir = path.Dir(dir)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, summary string) {
	writeJSON(w, status, map[string]string{"error_summary": summary})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.tokens[tok]
		s.mu.Unlock()
		if !ok {
			apiError(w, http.StatusUnauthorized, "invalid_access_token/")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		if r.Form.Get("code") != s.Code {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		if r.Form.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	s.issued++
	access := "access-" + strconv.Itoa(s.issued)
	s.tokens[access] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    14400,
		"refresh_token": "refresh-token",
	})
}

func (s *Server) account(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"account_id": "dbid:test", "email": "test@example.com"})
}

type pathArg struct {
	Path string `json:"path"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apiError(w, http.StatusBadRequest, "malformed request")
		return false
	}
	return true
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var arg pathArg
	if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
		apiError(w, http.StatusBadRequest, "malformed Dropbox-API-Arg")
		return
	}
	data, ok := s.File(arg.Path)
	if !ok {
		apiError(w, http.StatusConflict, "path/not_found/")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	var arg struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
		apiError(w, http.StatusBadRequest, "malformed Dropbox-API-Arg")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		apiError(w, http.StatusBadRequest, "read body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[arg.Path]; exists && arg.Mode != "overwrite" {
		apiError(w, http.StatusConflict, "path/conflict/file/")
		return
	}
	if s.folders[arg.Path] {
		apiError(w, http.StatusConflict, "path/conflict/folder/")
		return
	}
	s.putLocked(arg.Path, data)
	writeJSON(w, http.StatusOK, entry{Tag: "file", Name: path.Base(arg.Path)})
}

func (s *Server) lookupLocked(p string) (entry, bool) {
	if _, ok := s.files[p]; ok {
		return entry{Tag: "file", Name: path.Base(p)}, true
	}
	if s.folders[p] {
		return entry{Tag: "folder", Name: path.Base(p)}, true
	}
	return entry{}, false
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	var arg pathArg
	if !decode(w, r, &arg) {
		return
	}
	s.mu.Lock()
	e, ok := s.lookupLocked(arg.Path)
	s.mu.Unlock()
	if !ok {
		apiError(w, http.StatusConflict, "path/not_found/")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// subtreeLocked returns every file and folder at or below p.
func (s *Server) subtreeLocked(p string) (files, folders []string) {
	for f := range s.files {
		if f == p || strings.HasPrefix(f, p+"/") {
			files = append(files, f)
		}
	}
	for d := range s.folders {
		if d == p || strings.HasPrefix(d, p+"/") {
			folders = append(folders, d)
		}
	}
	return files, folders
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	var arg pathArg
	if !decode(w, r, &arg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookupLocked(arg.Path)
	if !ok {
		apiError(w, http.StatusConflict, "path_lookup/not_found/")
		return
	}
	files, folders := s.subtreeLocked(arg.Path)
	for _, f := range files {
		delete(s.files, f)
	}
	for _, d := range folders {
		delete(s.folders, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"metadata": e})
}

func (s *Server) relocate(move bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			FromPath string `json:"from_path"`
			ToPath   string `json:"to_path"`
		}
		if !decode(w, r, &arg) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		e, ok := s.lookupLocked(arg.FromPath)
		if !ok {
			apiError(w, http.StatusConflict, "from_lookup/not_found/")
			return
		}
		if _, taken := s.lookupLocked(arg.ToPath); taken {
			apiError(w, http.StatusConflict, "to/conflict/file/")
			return
		}
		files, folders := s.subtreeLocked(arg.FromPath)
		for _, f := range files {
			s.putLocked(arg.ToPath+strings.TrimPrefix(f, arg.FromPath), s.files[f])
		}
		for _, d := range folders {
			s.mkdirLocked(arg.ToPath + strings.TrimPrefix(d, arg.FromPath))
		}
		if move {
			for _, f := range files {
				delete(s.files, f)
			}
			for _, d := range folders {
				delete(s.folders, d)
			}
		}
		e.Name = path.Base(arg.ToPath)
		writeJSON(w, http.StatusOK, map[string]any{"metadata": e})
	}
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var arg pathArg
	if !decode(w, r, &arg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.lookupLocked(arg.Path); taken {
		apiError(w, http.StatusConflict, "path/conflict/folder/")
		return
	}
	s.mkdirLocked(arg.Path)
	writeJSON(w, http.StatusOK, map[string]any{"metadata": entry{Tag: "folder", Name: path.Base(arg.Path)}})
}

func (s *Server) listFolder(w http.ResponseWriter, r *http.Request) {
	var arg pathArg
	if !decode(w, r, &arg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.folders[arg.Path] {
		apiError(w, http.StatusConflict, "path/not_found/")
		return
	}
	var entries []entry
	for f := range s.files {
		if path.Dir(f) == dirOf(arg.Path) {
			entries = append(entries, entry{Tag: "file", Name: path.Base(f)})
		}
	}
	for d := range s.folders {
		if d != "" && path.Dir(d) == dirOf(arg.Path) {
			entries = append(entries, entry{Tag: "folder", Name: path.Base(d)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	s.pageLocked(w, entries)
}

// dirOf maps the API root "" to "/" so path.Dir comparisons work.
func dirOf(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func (s *Server) listContinue(w http.ResponseWriter, r *http.Request) {
	var arg struct {
		Cursor string `json:"cursor"`
	}
	if !decode(w, r, &arg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rest, ok := s.cursors[arg.Cursor]
	if !ok {
		apiError(w, http.StatusConflict, "reset/")
		return
	}
	delete(s.cursors, arg.Cursor)
	s.pageLocked(w, rest)
}

func (s *Server) pageLocked(w http.ResponseWriter, entries []entry) {
	n := len(entries)
	if s.PageSize > 0 && n > s.PageSize {
		n = s.PageSize
	}
	page := entries[:n]
	if page == nil {
		page = []entry{}
	}
	cursor := ""
	hasMore := n < len(entries)
	if hasMore {
		s.nextCur++
		cursor = fmt.Sprintf("cursor-%d", s.nextCur)
		s.cursors[cursor] = entries[n:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": page, "cursor": cursor, "has_more": hasMore})
}
