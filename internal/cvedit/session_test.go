package cvedit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/cvapi/cvapitest"
)

type testEnv struct {
	srv   *cvapitest.Server
	sess  *Session
	id    string
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := cvapitest.NewServer()
	t.Cleanup(srv.Close)

	id := srv.AddCV(cvapi.CVRecord{
		PersonalInfo: cvapi.PersonalInfo{Name: "Ada Lovelace", Email: "ada@example.com", Type: "Mathematician"},
		Skills:       map[string][]string{"languages": {"Go", "Java"}},
		Education:    []cvapi.EducationEntry{{Degree: "BSc", Institution: "London"}},
		Experience:   []cvapi.ExperienceEntry{{Position: "Analyst", Company: "Babbage & Co"}},
		Filename:     "ada.pdf",
		UploadDate:   "2024-06-01",
		Extra:        map[string]json.RawMessage{"projects": json.RawMessage(`["Engine"]`)},
	})
	env := &testEnv{srv: srv, id: id, token: srv.IssueToken("alice")}
	env.sess = New(srv.Client(), TokenFunc(func() string { return env.token }))
	return env
}

func (e *testEnv) loadAndEdit(t *testing.T) {
	t.Helper()
	if err := e.sess.Load(context.Background(), e.id); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.sess.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
}

func TestLoad(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sess.Load(context.Background(), env.id); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Viewing || snap.Record == nil || snap.Record.PersonalInfo.Name != "Ada Lovelace" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Draft != nil {
		t.Error("draft present while viewing")
	}
}

func TestLoad_FailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Load(ctx, env.id); err != nil {
		t.Fatalf("Load: %v", err)
	}

	err := env.sess.Load(ctx, "missing")
	if !cvapi.IsServer(err) {
		t.Fatalf("Load(missing) = %v, want ServerError", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Viewing || snap.Record.ID != env.id {
		t.Errorf("failed load replaced the record: %+v", snap)
	}
	if env.sess.LastError() == nil {
		t.Error("LastError not set")
	}
}

func TestLoad_FromIdleFailureStaysIdle(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sess.Load(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error")
	}
	if s := env.sess.State(); s != Idle {
		t.Errorf("state = %v, want idle", s)
	}
}

func TestBeginEdit_RequiresViewing(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sess.BeginEdit(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("BeginEdit in idle = %v", err)
	}
}

func TestBeginEdit_Draft(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)

	d := env.sess.Snapshot().Draft
	if d == nil {
		t.Fatal("no draft")
	}
	if d.Name != "Ada Lovelace" || d.Gender != NoneOption {
		t.Errorf("personal fields = %+v", d)
	}
	if d.Type != OtherType || d.CustomType != "Mathematician" {
		t.Errorf("type = %q custom = %q", d.Type, d.CustomType)
	}
	if !strings.Contains(d.Skills, "\"languages\": [") || !strings.Contains(d.Education, "\"degree\": \"BSc\"") {
		t.Errorf("sections not indented JSON:\n%s\n%s", d.Skills, d.Education)
	}
}

func TestValidateSection_InvalidSkillsKeepsOtherSections(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)

	edu := `[{"degree": "PhD", "institution": "Cambridge"}]`
	if err := env.sess.SetSection(SectionEducation, edu); err != nil {
		t.Fatalf("SetSection(education): %v", err)
	}
	expBefore := env.sess.Snapshot().Draft.Experience

	if err := env.sess.SetSection(SectionSkills, "not json"); err != nil {
		t.Fatalf("SetSection(skills): %v", err)
	}
	err := env.sess.ValidateSection(SectionSkills)
	var se *SectionError
	if !errors.As(err, &se) || se.Section != SectionSkills {
		t.Fatalf("ValidateSection = %v, want SectionError for skills", err)
	}
	if !cvapi.IsValidation(err) {
		t.Error("SectionError does not unwrap to a ValidationError")
	}

	snap := env.sess.Snapshot()
	if snap.State != Editing {
		t.Errorf("state = %v", snap.State)
	}
	if snap.Draft.Education != edu || snap.Draft.Experience != expBefore || snap.Draft.Skills != "not json" {
		t.Errorf("draft changed by failed validation: %+v", snap.Draft)
	}
	if snap.SectionErrors[SectionSkills] == nil {
		t.Error("section error not recorded")
	}

	before := len(env.srv.Requests())
	if err := env.sess.Save(context.Background()); !errors.As(err, &se) {
		t.Fatalf("Save = %v, want SectionError", err)
	}
	if len(env.srv.Requests()) != before {
		t.Error("Save sent a request with an invalid section")
	}
	if env.sess.State() != Editing {
		t.Errorf("state after rejected save = %v", env.sess.State())
	}
}

func TestValidateSection_Shapes(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)

	tests := []struct {
		sec   Section
		text  string
		valid bool
	}{
		{SectionSkills, `{"tools": ["git"]}`, true},
		{SectionSkills, ``, true},
		{SectionSkills, `["git"]`, false},
		{SectionSkills, `{"tools": "git"}`, false},
		{SectionEducation, `[]`, true},
		{SectionEducation, `[{"degree": "BSc", "year": 2019, "honours": true}]`, true},
		{SectionEducation, `{"degree": "BSc"}`, false},
		{SectionEducation, `["BSc"]`, false},
		{SectionExperience, `[{"company": "Acme"}] trailing`, false},
	}
	for _, tt := range tests {
		if err := env.sess.SetSection(tt.sec, tt.text); err != nil {
			t.Fatalf("SetSection: %v", err)
		}
		err := env.sess.ValidateSection(tt.sec)
		if (err == nil) != tt.valid {
			t.Errorf("%s %q: err = %v, want valid=%v", tt.sec, tt.text, err, tt.valid)
		}
	}
}

func TestValidateAll(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	env.sess.SetSection(SectionEducation, "{")
	env.sess.SetSection(SectionExperience, "nope")

	failures, err := env.sess.ValidateAll()
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
	if len(failures) != 2 || failures[SectionSkills] != nil {
		t.Errorf("failures = %v", failures)
	}

	env.sess.CancelEdit()
	if _, err := env.sess.ValidateAll(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ValidateAll while viewing = %v", err)
	}
}

func TestSave(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	ctx := context.Background()

	env.sess.SetField("phone", "555-0100")
	env.sess.SetField("type", "Software Engineer")
	env.sess.SetSection(SectionSkills, `{"languages": ["Go"], "tools": ["git"]}`)

	if err := env.sess.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Viewing || snap.Draft != nil {
		t.Fatalf("after save: state %v, draft %v", snap.State, snap.Draft)
	}
	if snap.Record.PersonalInfo.Phone != "555-0100" || len(snap.Record.Skills["tools"]) != 1 {
		t.Errorf("record not merged: %+v", snap.Record)
	}

	stored, _ := env.srv.CV(env.id)
	if stored.PersonalInfo.Type != "Software Engineer" || stored.PersonalInfo.Gender != NoneOption {
		t.Errorf("stored personal info = %+v", stored.PersonalInfo)
	}
	if string(stored.Extra["projects"]) != `["Engine"]` {
		t.Errorf("unmodelled field lost on save: %v", stored.Extra)
	}
	if stored.Education[0].Degree != "BSc" {
		t.Errorf("untouched section changed: %+v", stored.Education)
	}
	req, _ := env.srv.LastRequest("/api/view/" + env.id)
	if req.Method != http.MethodPut || req.Auth != "Bearer "+env.token {
		t.Errorf("update request = %+v", req)
	}
}

func TestSave_CustomTypeRule(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	ctx := context.Background()

	env.sess.SetField("type", OtherType)
	env.sess.SetField("custom_type", "  ")
	if err := env.sess.Save(ctx); !cvapi.IsValidation(err) {
		t.Fatalf("Save with blank custom type = %v, want ValidationError", err)
	}
	if env.sess.State() != Editing {
		t.Fatalf("state = %v", env.sess.State())
	}

	env.sess.SetField("custom_type", "Data Scientist")
	if err := env.sess.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stored, _ := env.srv.CV(env.id)
	if stored.PersonalInfo.Type != "Data Scientist" {
		t.Errorf("stored type = %q, want the custom text", stored.PersonalInfo.Type)
	}
}

func TestSave_ServerErrorKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	env.sess.SetField("name", "Augusta Ada King")
	env.sess.SetSection(SectionExperience, `[{"position": "Countess"}]`)
	submitted := *env.sess.Snapshot().Draft

	env.srv.Fail("PUT /api/view/{id}", http.StatusInternalServerError, `{"error":"database locked"}`)
	err := env.sess.Save(context.Background())
	if !cvapi.IsServer(err) {
		t.Fatalf("Save = %v, want ServerError", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Editing {
		t.Errorf("state = %v, want editing", snap.State)
	}
	if *snap.Draft != submitted {
		t.Errorf("draft changed:\n got %+v\nwant %+v", *snap.Draft, submitted)
	}
	if snap.Record.PersonalInfo.Name != "Ada Lovelace" {
		t.Errorf("committed record changed: %q", snap.Record.PersonalInfo.Name)
	}
	if !cvapi.IsServer(env.sess.LastError()) {
		t.Errorf("LastError = %v", env.sess.LastError())
	}
}

func TestSave_ExpiredTokenIsAuthError(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	env.token = ""

	if err := env.sess.Save(context.Background()); !cvapi.IsAuth(err) {
		t.Fatalf("Save = %v, want AuthError", err)
	}
	if env.sess.State() != Editing {
		t.Errorf("state = %v", env.sess.State())
	}
}

func TestCancelEdit(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	env.sess.SetField("name", "Changed")

	if err := env.sess.CancelEdit(); err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Viewing || snap.Draft != nil || snap.Record.PersonalInfo.Name != "Ada Lovelace" {
		t.Errorf("after cancel: %+v", snap)
	}
	if err := env.sess.SetField("name", "x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetField while viewing = %v", err)
	}
}

func TestSetField_Unknown(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	if err := env.sess.SetField("salary", "1"); !cvapi.IsValidation(err) {
		t.Errorf("SetField(salary) = %v", err)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Load(ctx, env.id); err != nil {
		t.Fatalf("Load: %v", err)
	}

	env.srv.Fail("DELETE /api/cv/{id}", http.StatusInternalServerError, `{"error":"nope"}`)
	if err := env.sess.Delete(ctx); err == nil {
		t.Fatal("expected delete failure")
	}
	if env.sess.State() != Viewing {
		t.Errorf("state after failed delete = %v", env.sess.State())
	}

	env.srv.Recover("DELETE /api/cv/{id}")
	if err := env.sess.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap := env.sess.Snapshot()
	if snap.State != Idle || snap.Record != nil {
		t.Errorf("after delete: %+v", snap)
	}
	if _, ok := env.srv.CV(env.id); ok {
		t.Error("record still on server")
	}
}

func TestDelete_RequiresViewing(t *testing.T) {
	env := newTestEnv(t)
	env.loadAndEdit(t)
	if err := env.sess.Delete(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Delete while editing = %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	env := newTestEnv(t)
	var states []State
	env.sess.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	env.loadAndEdit(t)
	if err := env.sess.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []State{Viewing, Editing, Saving, Viewing}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}
