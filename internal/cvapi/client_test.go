package cvapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/cvapi/cvapitest"
)

func TestEncodeSearchQuery_OmitsUnset(t *testing.T) {
	q := cvapi.EncodeSearchQuery(cvapi.SearchParameters{Page: 1, PerPage: 10})
	if len(q) != 2 {
		t.Fatalf("got %v, want only page and per_page", q)
	}
	if q.Get("page") != "1" || q.Get("per_page") != "10" {
		t.Errorf("page/per_page = %q/%q", q.Get("page"), q.Get("per_page"))
	}
}

func TestEncodeSearchQuery_SetFieldsOnce(t *testing.T) {
	p := cvapi.SearchParameters{
		Query:     "  java, go ",
		Page:      2,
		PerPage:   25,
		DateFrom:  "2024-01-01",
		DateTo:    "2024-06-30",
		SortBy:    cvapi.SortByName,
		SortOrder: cvapi.SortAsc,
		Logic:     cvapi.LogicOr,
	}
	q := cvapi.EncodeSearchQuery(p)
	want := map[string]string{
		"q":          "java, go",
		"page":       "2",
		"per_page":   "25",
		"date_from":  "2024-01-01",
		"date_to":    "2024-06-30",
		"sort_by":    "name",
		"sort_order": "asc",
		"logic":      "or",
	}
	if len(q) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(q), len(want), q)
	}
	for k, v := range want {
		if got := q[k]; len(got) != 1 || got[0] != v {
			t.Errorf("%s = %v, want [%q]", k, got, v)
		}
	}
	if enc := q.Encode(); !strings.Contains(enc, "q=java%2C+go") {
		t.Errorf("encoded query %q not URL-encoded", enc)
	}
}

func TestEncodeAuditQuery(t *testing.T) {
	q := cvapi.EncodeAuditQuery(cvapi.AuditLogQuery{PerPage: 100, Action: "upload"})
	if q.Get("page") != "1" || q.Get("per_page") != "100" || q.Get("action") != "upload" {
		t.Errorf("got %v", q)
	}
	if q.Has("user") || q.Has("start_date") || q.Has("end_date") {
		t.Errorf("empty filters leaked into query: %v", q)
	}
}

func TestLogin(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.AddUser("alice", "secret")

	c := srv.Client()
	res, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "token-alice" {
		t.Errorf("token = %q", res.Token)
	}

	_, err = c.Login(context.Background(), "alice", "wrong")
	var ae *cvapi.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if ae.Status != http.StatusUnauthorized || ae.Message != "Invalid credentials" {
		t.Errorf("AuthError = %+v", ae)
	}
}

func TestLogin_ServerErrorBecomesAuthError(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.Fail("POST /login", http.StatusBadRequest, `{"message":"Username and password are required"}`)

	_, err := srv.Client().Login(context.Background(), "a", "b")
	if !cvapi.IsAuth(err) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if cvapi.ErrorMessage(err) != "Authentication failed: Username and password are required" {
		t.Errorf("message = %q", cvapi.ErrorMessage(err))
	}
}

func TestLogin_MissingToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer ts.Close()

	_, err := cvapi.New(ts.URL).Login(context.Background(), "a", "b")
	if !cvapi.IsProtocol(err) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestLogin_RequiresCredentials(t *testing.T) {
	_, err := cvapi.New("http://127.0.0.1:0").Login(context.Background(), " ", "")
	if !cvapi.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRegister(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	c := srv.Client()

	msg, err := c.Register(context.Background(), cvapi.RegisterRequest{Username: "bob", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if msg.Message != "User registered successfully" {
		t.Errorf("message = %q", msg.Message)
	}

	_, err = c.Register(context.Background(), cvapi.RegisterRequest{Username: "bob", Password: "pw"})
	var se *cvapi.ServerError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 ServerError", err)
	}
	if se.Message != "User already exists" {
		t.Errorf("message = %q", se.Message)
	}
}

func TestRegister_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	_, err := cvapi.New(ts.URL).Register(context.Background(), cvapi.RegisterRequest{Username: "a", Password: "b"})
	if !cvapi.IsServer(err) {
		t.Fatalf("err = %v, want ServerError", err)
	}
}

func seedCVs(srv *cvapitest.Server, n int, name string) {
	for i := 0; i < n; i++ {
		srv.AddCV(cvapi.CVRecord{
			PersonalInfo: cvapi.PersonalInfo{Name: name},
			Filename:     name + ".pdf",
			UploadDate:   "2024-05-01",
			Skills:       map[string][]string{"languages": {"Java"}},
		})
	}
}

func TestSearch(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	seedCVs(srv, 23, "Ada")

	p := cvapi.DefaultSearchParameters()
	p.Query = "java"
	page, err := srv.Client().Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 23 || page.TotalPages != 3 || page.Page != 1 || len(page.Items) != 10 {
		t.Errorf("page = %+v", page)
	}

	req, ok := srv.LastRequest("/api/search")
	if !ok {
		t.Fatal("no search request recorded")
	}
	if req.Query.Get("q") != "java" || req.Query.Get("sort_by") != "upload_date" {
		t.Errorf("query = %v", req.Query)
	}
}

func TestSearch_ComputesMissingTotalPages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"1","name":"A"}],"page":9,"total":23}`))
	}))
	defer ts.Close()

	page, err := cvapi.New(ts.URL).Search(context.Background(), cvapi.SearchParameters{Page: 9, PerPage: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.TotalPages != 3 || page.Page != 3 || page.PerPage != 10 {
		t.Errorf("page = %+v, want totalPages 3 and page clamped to 3", page)
	}
}

func TestSearch_ServerError(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.Fail("GET /api/search", http.StatusInternalServerError, `{"error":"index unavailable"}`)

	_, err := srv.Client().Search(context.Background(), cvapi.DefaultSearchParameters())
	var se *cvapi.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want ServerError", err)
	}
	if se.Status != 500 || se.Message != "index unavailable" {
		t.Errorf("ServerError = %+v", se)
	}
}

func TestSearch_ProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer ts.Close()

	_, err := cvapi.New(ts.URL).Search(context.Background(), cvapi.DefaultSearchParameters())
	if !cvapi.IsProtocol(err) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestSearch_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	_, err := cvapi.New(ts.URL).Search(context.Background(), cvapi.DefaultSearchParameters())
	if !cvapi.IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	var gotID, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	if _, err := cvapi.New(ts.URL, cvapi.WithUserAgent("cvdesk-test")).Indexes(context.Background()); err != nil {
		t.Fatalf("Indexes: %v", err)
	}
	if len(gotID) != 36 {
		t.Errorf("X-Request-ID = %q, want a uuid", gotID)
	}
	if gotUA != "cvdesk-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestRecentUploads(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	seedCVs(srv, 2, "Old")
	srv.AddCV(cvapi.CVRecord{PersonalInfo: cvapi.PersonalInfo{Name: "New"}, UploadDate: "2999-01-01"})

	page, err := srv.Client().RecentUploads(context.Background(), 7, 1, 10)
	if err != nil {
		t.Fatalf("RecentUploads: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "New" {
		t.Errorf("page = %+v", page)
	}
}

func TestGetAndUpdateCV(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	id := srv.AddCV(cvapi.CVRecord{
		PersonalInfo: cvapi.PersonalInfo{Name: "Ada", Email: "ada@example.com"},
		Skills:       map[string][]string{"languages": {"Go"}},
		Extra:        map[string]json.RawMessage{"languages": json.RawMessage(`["English"]`)},
	})
	c := srv.Client()
	ctx := context.Background()

	rec, err := c.GetCV(ctx, id)
	if err != nil {
		t.Fatalf("GetCV: %v", err)
	}
	if rec.PersonalInfo.Name != "Ada" || rec.Skills["languages"][0] != "Go" {
		t.Errorf("record = %+v", rec)
	}

	rec.PersonalInfo.Phone = "555-0100"
	if _, err := c.UpdateCV(ctx, id, rec, ""); !cvapi.IsAuth(err) {
		t.Fatalf("UpdateCV without token: err = %v, want AuthError", err)
	}
	if _, ok := srv.LastRequest("/api/view/" + id); !ok {
		t.Fatal("expected the earlier GET to be recorded")
	}
	for _, r := range srv.Requests() {
		if r.Method == http.MethodPut {
			t.Fatal("UpdateCV without token reached the server")
		}
	}

	if _, err := c.UpdateCV(ctx, id, rec, "bogus"); !cvapi.IsAuth(err) {
		t.Fatalf("UpdateCV with bad token: err = %v, want AuthError", err)
	}

	tok := srv.IssueToken("alice")
	msg, err := c.UpdateCV(ctx, id, rec, tok)
	if err != nil {
		t.Fatalf("UpdateCV: %v", err)
	}
	if msg.Message != "CV updated successfully" {
		t.Errorf("message = %q", msg.Message)
	}
	stored, _ := srv.CV(id)
	if stored.PersonalInfo.Phone != "555-0100" {
		t.Errorf("stored phone = %q", stored.PersonalInfo.Phone)
	}
	if string(stored.Extra["languages"]) != `["English"]` {
		t.Errorf("unmodelled field lost: %v", stored.Extra)
	}
}

func TestGetCV_NotFound(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()

	_, err := srv.Client().GetCV(context.Background(), "missing")
	var se *cvapi.ServerError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 ServerError", err)
	}
}

func TestGetCV_EmptyID(t *testing.T) {
	_, err := cvapi.New("http://127.0.0.1:0").GetCV(context.Background(), "")
	if !cvapi.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestDeleteCV(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	id := srv.AddCV(cvapi.CVRecord{PersonalInfo: cvapi.PersonalInfo{Name: "Ada"}})
	tok := srv.IssueToken("alice")

	if _, err := srv.Client().DeleteCV(context.Background(), id, tok); err != nil {
		t.Fatalf("DeleteCV: %v", err)
	}
	if _, ok := srv.CV(id); ok {
		t.Error("CV still stored after delete")
	}
	req, _ := srv.LastRequest("/api/cv/" + id)
	if req.Auth != "Bearer "+tok {
		t.Errorf("Authorization = %q", req.Auth)
	}
}

func TestDownloadPDFToPath(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.AddFile("cv1", []byte("%PDF-1.4 fake"))

	dest := filepath.Join(t.TempDir(), "cv1.pdf")
	n, err := srv.Client().DownloadPDFToPath(context.Background(), "cv1", dest)
	if err != nil {
		t.Fatalf("DownloadPDFToPath: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if n != int64(len(data)) || string(data) != "%PDF-1.4 fake" {
		t.Errorf("n = %d, data = %q", n, data)
	}
}

func TestDownloadPDFToPath_FailureLeavesNoFile(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "missing.pdf")
	if _, err := srv.Client().DownloadPDFToPath(context.Background(), "missing", dest); !cvapi.IsServer(err) {
		t.Fatalf("err = %v, want ServerError", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir has %d entries after failed download", len(entries))
	}
}

func memFile(name, content string) cvapi.UploadFile {
	return cvapi.UploadFile{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func TestUploadFiles_PartialFailure(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	tok := srv.IssueToken("alice")

	out, err := srv.Client().UploadFiles(context.Background(), []cvapi.UploadFile{
		memFile("ada.pdf", "Ada Lovelace"),
		memFile("corrupt.pdf", "???"),
		memFile("alan.pdf", "Alan Turing"),
	}, tok)
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if out.Failure != nil {
		t.Fatalf("Failure = %v", out.Failure)
	}
	if out.TotalFiles != 3 || out.SuccessCount != 2 || out.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d", out.TotalFiles, out.SuccessCount, out.ErrorCount)
	}
	if len(out.Messages) != 2 || out.Messages[0] != "Uploaded: 2, Errors: 1" || !strings.HasPrefix(out.Messages[1], "corrupt.pdf:") {
		t.Errorf("messages = %q", out.Messages)
	}
	if out.BatchID == "" {
		t.Error("missing batch id")
	}
}

func TestUploadFiles_WholeCallFailure(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()

	out, err := srv.Client().UploadFiles(context.Background(), []cvapi.UploadFile{
		memFile("a.pdf", "a"), memFile("b.pdf", "b"),
	}, "expired")
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if out.ErrorCount != 2 || out.SuccessCount != 0 {
		t.Errorf("counts = %d ok / %d failed", out.SuccessCount, out.ErrorCount)
	}
	if !cvapi.IsAuth(out.Failure) {
		t.Errorf("Failure = %v, want AuthError", out.Failure)
	}
}

func TestUploadFiles_LocalErrors(t *testing.T) {
	c := cvapi.New("http://127.0.0.1:0")
	ctx := context.Background()

	if _, err := c.UploadFiles(ctx, nil, "tok"); !cvapi.IsValidation(err) {
		t.Errorf("no files: err = %v", err)
	}
	if _, err := c.UploadFiles(ctx, []cvapi.UploadFile{memFile("a.pdf", "a")}, ""); !cvapi.IsAuth(err) {
		t.Errorf("no token: err = %v", err)
	}
	missing := cvapi.UploadFileFromPath(filepath.Join(t.TempDir(), "nope.pdf"))
	if _, err := c.UploadFiles(ctx, []cvapi.UploadFile{missing}, "tok"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unreadable file: err = %v", err)
	}
}

func TestBatchStatus(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.AddBatch(cvapi.BatchStatus{BatchID: "b1", TotalFiles: 4, SuccessCount: 3, ErrorCount: 1, CompletedAt: "2024-06-10T12:00:00Z"})
	tok := srv.IssueToken("alice")

	st, err := srv.Client().BatchStatus(context.Background(), "b1", tok)
	if err != nil {
		t.Fatalf("BatchStatus: %v", err)
	}
	if !st.Completed() || st.SuccessCount != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestAuditEndpoints(t *testing.T) {
	srv := cvapitest.NewServer()
	defer srv.Close()
	srv.AddAudit(
		cvapi.AuditLogEntry{ID: "l1", Timestamp: "2024-06-01T10:00:00", User: "alice", Action: "upload"},
		cvapi.AuditLogEntry{ID: "l2", Timestamp: "2024-06-02T10:00:00", User: "bob", Action: "delete", Details: map[string]any{"cv": "x"}},
		cvapi.AuditLogEntry{ID: "l3", Timestamp: "2024-06-03T10:00:00", User: "alice", Action: "delete"},
	)
	c := srv.Client()
	ctx := context.Background()

	page, err := c.AuditLogs(ctx, cvapi.AuditLogQuery{PerPage: 100, User: "alice"})
	if err != nil {
		t.Fatalf("AuditLogs: %v", err)
	}
	if page.Total != 2 || page.Items[0].ID != "l3" {
		t.Errorf("page = %+v", page)
	}

	page, err = c.AuditLogs(ctx, cvapi.AuditLogQuery{Page: 1, PerPage: 10, StartDate: "2024-06-02", EndDate: "2024-06-02"})
	if err != nil {
		t.Fatalf("AuditLogs by date: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "l2" {
		t.Errorf("date-filtered page = %+v", page)
	}

	detail, err := c.AuditLogByID(ctx, "l2")
	if err != nil {
		t.Fatalf("AuditLogByID: %v", err)
	}
	if detail.Entry.User != "bob" || detail.Metadata.LogID != "l2" || len(detail.Metadata.FieldsPresent) != 7 {
		t.Errorf("detail = %+v", detail)
	}

	opts, err := c.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if strings.Join(opts.Users, ",") != "alice,bob" || strings.Join(opts.Actions, ",") != "delete,upload" {
		t.Errorf("options = %+v", opts)
	}

	rng, err := c.AuditDateRange(ctx)
	if err != nil {
		t.Fatalf("AuditDateRange: %v", err)
	}
	if rng.TotalLogs != 3 || rng.EarliestLog != "2024-06-01T10:00:00" || rng.LatestLog != "2024-06-03T10:00:00" {
		t.Errorf("range = %+v", rng)
	}
}

func TestAuditLogs_MissingLogsField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":1}`))
	}))
	defer ts.Close()

	_, err := cvapi.New(ts.URL).AuditLogs(context.Background(), cvapi.AuditLogQuery{})
	if !cvapi.IsProtocol(err) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestAuditLogs_ErrorBodyWithSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Failed to fetch audit logs"}`))
	}))
	defer ts.Close()

	_, err := cvapi.New(ts.URL).AuditLogs(context.Background(), cvapi.AuditLogQuery{})
	if !cvapi.IsProtocol(err) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if !strings.Contains(err.Error(), "Failed to fetch audit logs") {
		t.Errorf("err = %v, want server message", err)
	}
}

func TestIndexes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"skills":["Go","Java"],"years":[2019,null]}`))
	}))
	defer ts.Close()

	idx, err := cvapi.New(ts.URL).Indexes(context.Background())
	if err != nil {
		t.Fatalf("Indexes: %v", err)
	}
	if strings.Join(idx["skills"], ",") != "Go,Java" || strings.Join(idx["years"], ",") != "2019," {
		t.Errorf("indexes = %v", idx)
	}
}
