// Package cvapitest provides an in-memory CV service for tests.
package cvapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/cvdesk/internal/cvapi"
)

// Request is one call the server received.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
}

type failure struct {
	status int
	body   string
}

// Server is a fake CV service. Handlers are keyed by "METHOD /pattern", e.g.
// "GET /api/search", for Fail and Hold.
type Server struct {
	*httptest.Server

	// TokenFunc issues the token returned by /login. Defaults to "token-<user>".
	TokenFunc func(user string) string

	mu       sync.Mutex
	users    map[string]string
	tokens   map[string]bool
	cvs      map[string]cvapi.CVRecord
	files    map[string][]byte
	audit    []cvapi.AuditLogEntry
	batches  map[string]cvapi.BatchStatus
	indexes  cvapi.Indexes
	failures map[string]failure
	holds    map[string]chan struct{}
	requests []Request
}

// NewServer starts a server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]string),
		tokens:   make(map[string]bool),
		cvs:      make(map[string]cvapi.CVRecord),
		files:    make(map[string][]byte),
		batches:  make(map[string]cvapi.BatchStatus),
		indexes:  cvapi.Indexes{},
		failures: make(map[string]failure),
		holds:    make(map[string]chan struct{}),
	}
	s.TokenFunc = func(user string) string { return "token-" + user }

	r := chi.NewRouter()
	s.route(r, http.MethodPost, "/login", s.handleLogin)
	s.route(r, http.MethodPost, "/register", s.handleRegister)
	s.route(r, http.MethodGet, "/api/search", s.handleSearch)
	s.route(r, http.MethodGet, "/api/recent_uploads", s.handleRecent)
	s.route(r, http.MethodGet, "/api/view/{id}", s.handleView)
	s.route(r, http.MethodPut, "/api/view/{id}", s.authed(s.handleUpdate))
	s.route(r, http.MethodDelete, "/api/cv/{id}", s.authed(s.handleDelete))
	s.route(r, http.MethodGet, "/api/download_pdf/{id}", s.handleDownload)
	s.route(r, http.MethodGet, "/api/indexes", s.handleIndexes)
	s.route(r, http.MethodPost, "/upload", s.authed(s.handleUpload))
	s.route(r, http.MethodGet, "/upload/status/{batchID}", s.authed(s.handleBatchStatus))
	s.route(r, http.MethodGet, "/api/audit_logs", s.handleAuditLogs)
	s.route(r, http.MethodGet, "/api/audit_logs/actions", s.handleAuditActions)
	s.route(r, http.MethodGet, "/api/audit_logs/date_range", s.handleAuditRange)
	s.route(r, http.MethodGet, "/api/audit_logs/{id}", s.handleAuditLog)

	s.Server = httptest.NewServer(r)
	return s
}

// Client returns a cvapi.Client pointed at the server.
func (s *Server) Client(opts ...cvapi.Option) *cvapi.Client {
	return cvapi.New(s.URL, opts...)
}

func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	key := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Auth:   req.Header.Get("Authorization"),
		})
		f, failing := s.failures[key]
		hold := s.holds[key]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-req.Context().Done():
				return
			}
		}
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			io.WriteString(w, f.body)
			return
		}
		h(w, req)
	}))
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		s.mu.Lock()
		ok := strings.HasPrefix(auth, prefix) && s.tokens[auth[len(prefix):]]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token is invalid or expired"})
			return
		}
		h(w, r)
	}
}

// Fail makes every call to route answer status with body until Recover.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Hold blocks calls to route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[route] == ch {
				delete(s.holds, route)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns every call received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent call to path, if any.
func (s *Server) LastRequest(path string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return Request{}, false
}

// AddUser registers credentials accepted by /login.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// IssueToken returns a token the protected endpoints accept.
func (s *Server) IssueToken(user string) string {
	tok := s.TokenFunc(user)
	s.mu.Lock()
	s.tokens[tok] = true
	s.mu.Unlock()
	return tok
}

func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// AddCV stores rec, assigning an id when empty, and returns the id.
func (s *Server) AddCV(rec cvapi.CVRecord) string {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cvs[rec.ID] = rec.Clone()
	return rec.ID
}

// CV returns the stored record for id.
func (s *Server) CV(id string) (cvapi.CVRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cvs[id]
	return rec.Clone(), ok
}

// AddFile stores the bytes served by /api/download_pdf/{id}.
func (s *Server) AddFile(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = data
}

func (s *Server) AddAudit(entries ...cvapi.AuditLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.audit = append(s.audit, e)
	}
}

func (s *Server) AddBatch(b cvapi.BatchStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.BatchID] = b
}

func (s *Server) SetIndexes(idx cvapi.Indexes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = idx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	s.mu.Lock()
	pw, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || pw != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.IssueToken(req.Username)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cvapi.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Username and password are required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "User already exists"})
		return
	}
	s.users[req.Username] = req.Password
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func intParam(q url.Values, key string, def int) int {
	n, err := strconv.Atoi(q.Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func totalPages(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

func paginate[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func summary(rec cvapi.CVRecord) cvapi.CVSummary {
	return cvapi.CVSummary{
		ID:         rec.ID,
		Name:       rec.PersonalInfo.Name,
		Email:      rec.PersonalInfo.Email,
		Phone:      rec.PersonalInfo.Phone,
		Filename:   rec.Filename,
		UploadDate: rec.UploadDate,
		Gender:     rec.PersonalInfo.Gender,
		Type:       rec.PersonalInfo.Type,
	}
}

func matchesTerm(rec cvapi.CVRecord, term string) bool {
	term = strings.ToLower(term)
	hay := []string{rec.PersonalInfo.Name, rec.PersonalInfo.Email, rec.RawText, rec.Filename}
	for cat, skills := range rec.Skills {
		hay = append(hay, cat)
		hay = append(hay, skills...)
	}
	for _, h := range hay {
		if strings.Contains(strings.ToLower(h), term) {
			return true
		}
	}
	return false
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q, "page", 1)
	perPage := intParam(q, "per_page", cvapi.DefaultPerPage)

	var terms []string
	for _, t := range strings.Split(q.Get("q"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	or := q.Get("logic") == string(cvapi.LogicOr)
	from, to := q.Get("date_from"), q.Get("date_to")

	s.mu.Lock()
	var hits []cvapi.CVRecord
	for _, rec := range s.cvs {
		day := rec.UploadDate
		if len(day) > len(cvapi.DateLayout) {
			day = day[:len(cvapi.DateLayout)]
		}
		if from != "" && day < from || to != "" && day > to {
			continue
		}
		if len(terms) > 0 {
			matched := !or
			for _, t := range terms {
				m := matchesTerm(rec, t)
				if or && m {
					matched = true
					break
				}
				if !or && !m {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
		}
		hits = append(hits, rec)
	}
	s.mu.Unlock()

	sortBy := q.Get("sort_by")
	desc := q.Get("sort_order") != string(cvapi.SortAsc)
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		var ka, kb string
		switch cvapi.SortField(sortBy) {
		case cvapi.SortByName:
			ka, kb = a.PersonalInfo.Name, b.PersonalInfo.Name
		case cvapi.SortByFilename:
			ka, kb = a.Filename, b.Filename
		default:
			ka, kb = a.UploadDate, b.UploadDate
		}
		if ka == kb {
			return a.ID < b.ID
		}
		if desc {
			return ka > kb
		}
		return ka < kb
	})

	results := make([]cvapi.CVSummary, 0, len(hits))
	for _, rec := range paginate(hits, page, perPage) {
		results = append(results, summary(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":     results,
		"page":        page,
		"per_page":    perPage,
		"total":       len(hits),
		"total_pages": totalPages(len(hits), perPage),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := intParam(q, "days", 7)
	page := intParam(q, "page", 1)
	perPage := intParam(q, "per_page", cvapi.DefaultPerPage)
	cutoff := time.Now().AddDate(0, 0, -days).Format(cvapi.DateLayout)

	s.mu.Lock()
	var hits []cvapi.CVRecord
	for _, rec := range s.cvs {
		if rec.UploadDate >= cutoff {
			hits = append(hits, rec)
		}
	}
	s.mu.Unlock()
	sort.Slice(hits, func(i, j int) bool { return hits[i].UploadDate > hits[j].UploadDate })

	results := make([]cvapi.CVSummary, 0, len(hits))
	for _, rec := range paginate(hits, page, perPage) {
		results = append(results, summary(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":     results,
		"page":        page,
		"per_page":    perPage,
		"total":       len(hits),
		"total_pages": totalPages(len(hits), perPage),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	rec, ok := s.cvs[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "CV not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rec cvapi.CVRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid CV data: %v", err)})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cvs[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "CV not found"})
		return
	}
	rec.ID = id
	s.cvs[id] = rec
	writeJSON(w, http.StatusOK, map[string]string{"message": "CV updated successfully"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cvs[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "CV not found"})
		return
	}
	delete(s.cvs, id)
	delete(s.files, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "CV deleted successfully"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	data, ok := s.files[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleIndexes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := s.indexes
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, idx)
}

// handleUpload accepts every file except those whose name contains "corrupt".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No files provided"})
		return
	}

	var processed []cvapi.ProcessedFile
	var errs []cvapi.UploadError
	today := time.Now().Format(cvapi.DateLayout)
	for _, fh := range files {
		if strings.Contains(fh.Filename, "corrupt") {
			errs = append(errs, cvapi.UploadError{Filename: fh.Filename, Error: "could not extract text"})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			errs = append(errs, cvapi.UploadError{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		data, _ := io.ReadAll(f)
		f.Close()

		id := s.AddCV(cvapi.CVRecord{
			PersonalInfo: cvapi.PersonalInfo{Name: strings.TrimSuffix(fh.Filename, ".pdf")},
			Filename:     fh.Filename,
			UploadDate:   today,
			RawText:      string(data),
		})
		s.AddFile(id, data)
		processed = append(processed, cvapi.ProcessedFile{Filename: fh.Filename, ID: id, Action: "created", Status: "success"})
	}

	batch := cvapi.BatchStatus{
		BatchID:        uuid.NewString(),
		TotalFiles:     len(files),
		SuccessCount:   len(processed),
		ErrorCount:     len(errs),
		CompletedAt:    time.Now().UTC().Format(time.RFC3339),
		ProcessingMode: "sync",
		Processed:      processed,
	}
	s.AddBatch(batch)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       len(processed) > 0,
		"batch_id":      batch.BatchID,
		"processed":     processed,
		"errors":        errs,
		"total_files":   len(files),
		"success_count": len(processed),
		"error_count":   len(errs),
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	s.mu.Lock()
	b, ok := s.batches[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q, "page", 1)
	perPage := intParam(q, "per_page", 50)
	user, action := q.Get("user"), q.Get("action")
	start, end := q.Get("start_date"), q.Get("end_date")

	s.mu.Lock()
	var hits []cvapi.AuditLogEntry
	for _, e := range s.audit {
		day := e.Timestamp
		if len(day) > len(cvapi.DateLayout) {
			day = day[:len(cvapi.DateLayout)]
		}
		if user != "" && e.User != user || action != "" && e.Action != action {
			continue
		}
		if start != "" && day < start || end != "" && day > end {
			continue
		}
		hits = append(hits, e)
	}
	s.mu.Unlock()
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Timestamp > hits[j].Timestamp })

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":        paginate(hits, page, perPage),
		"page":        page,
		"per_page":    perPage,
		"total":       len(hits),
		"total_pages": totalPages(len(hits), perPage),
	})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.audit {
		if e.ID != id {
			continue
		}
		fields := []string{"id", "timestamp", "user", "action", "cv_id", "ip_address"}
		if len(e.Details) > 0 {
			fields = append(fields, "details")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"audit_log": e,
			"metadata": map[string]any{
				"retrieved_at":   time.Now().UTC().Format(time.RFC3339),
				"log_id":         id,
				"fields_present": fields,
			},
		})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Audit log not found"})
}

func (s *Server) handleAuditActions(w http.ResponseWriter, r *http.Request) {
	users := map[string]bool{}
	actions := map[string]bool{}
	s.mu.Lock()
	for _, e := range s.audit {
		users[e.User] = true
		actions[e.Action] = true
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"users":   sortedKeys(users),
		"actions": sortedKeys(actions),
	})
}

func (s *Server) handleAuditRange(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest, latest string
	for _, e := range s.audit {
		if earliest == "" || e.Timestamp < earliest {
			earliest = e.Timestamp
		}
		if e.Timestamp > latest {
			latest = e.Timestamp
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"earliest_log": earliest,
		"latest_log":   latest,
		"total_logs":   len(s.audit),
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
