// Package cvedit implements the view/edit lifecycle of a single CV record.
package cvedit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/dispatch"
)

var (
	// ErrBusy is returned while a save or delete is in progress.
	ErrBusy = errors.New("cvedit: operation in progress")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("cvedit: not allowed in current state")
)

type State int

const (
	Idle State = iota
	Viewing
	Editing
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	}
	return "unknown"
}

// API is the part of the CV service a session uses.
type API interface {
	GetCV(ctx context.Context, id string) (cvapi.CVRecord, error)
	UpdateCV(ctx context.Context, id string, rec cvapi.CVRecord, token string) (cvapi.Message, error)
	DeleteCV(ctx context.Context, id, token string) (cvapi.Message, error)
}

// TokenSource supplies the current session token. It is read on every
// protected call.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	State  State
	Record *cvapi.CVRecord
	Draft  *Draft
	// SectionErrors holds the last validation result of each section that
	// was validated since it was last changed. A nil value means valid.
	SectionErrors map[Section]error
	Err           error
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session owns one record while it is open.
type Session struct {
	api    API
	tokens TokenSource
	logger *slog.Logger
	loads  dispatch.Guard
	subs   dispatch.Notifier[Snapshot]

	mu       sync.Mutex
	state    State
	record   cvapi.CVRecord
	draft    Draft
	checked  map[Section]error
	deleting bool
	lastErr  error
}

func New(api API, tokens TokenSource, opts ...Option) *Session {
	s := &Session{
		api:     api,
		tokens:  tokens,
		logger:  slog.Default(),
		checked: make(map[Section]error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load fetches id and shows it. On failure the session keeps whatever it
// was showing. Only the most recent Load is applied.
func (s *Session) Load(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.state == Saving || s.deleting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()

	ticket, reqCtx := s.loads.Begin(ctx)
	rec, err := s.api.GetCV(reqCtx, id)

	var snap Snapshot
	var result error
	commitErr := s.loads.Commit(ticket, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case s.state == Saving || s.deleting:
			result = ErrBusy
			return
		case err != nil:
			s.lastErr = err
			result = err
		default:
			s.record = rec
			s.state = Viewing
			s.draft = Draft{}
			s.checked = make(map[Section]error)
			s.lastErr = nil
		}
		snap = s.snapshotLocked()
	})
	if commitErr != nil {
		return commitErr
	}
	if errors.Is(result, ErrBusy) {
		return result
	}
	if err != nil {
		s.logger.Warn("loading cv failed", "id", id, "error", err)
	}
	s.subs.Notify(snap)
	return result
}

// BeginEdit opens a draft of the shown record.
func (s *Session) BeginEdit() error {
	s.mu.Lock()
	if s.deleting {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.state != Viewing {
		s.mu.Unlock()
		return ErrInvalidState
	}
	d, err := newDraft(s.record)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.draft = d
	s.checked = make(map[Section]error)
	s.state = Editing
	s.lastErr = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

// editable checks that the draft may change. Callers hold mu.
func (s *Session) editable() error {
	switch s.state {
	case Editing:
		return nil
	case Saving:
		return ErrBusy
	}
	return ErrInvalidState
}

// SetField changes one personal field of the draft. See Fields.
func (s *Session) SetField(name, value string) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	p := s.draft.field(name)
	if p == nil {
		s.mu.Unlock()
		return cvapi.Invalid("field", "unknown field %q", name)
	}
	*p = value
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

// SetSection replaces the JSON text of a section. The text is not checked
// until ValidateSection or Save.
func (s *Session) SetSection(sec Section, text string) error {
	if !sec.Valid() {
		return cvapi.Invalid("section", "unknown section %q", sec)
	}
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.draft.setSection(sec, text)
	delete(s.checked, sec)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

// ValidateSection checks one section of the draft. A failure is a
// *SectionError; the draft text is left as typed.
func (s *Session) ValidateSection(sec Section) error {
	if !sec.Valid() {
		return cvapi.Invalid("section", "unknown section %q", sec)
	}
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	var p parsed
	err := parseSection(sec, s.draft.Section(sec), &p)
	s.checked[sec] = err
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return err
}

// ValidateAll checks every section and returns the failures by section.
// The map is empty when the whole draft is valid.
func (s *Session) ValidateAll() (map[Section]error, error) {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	_, failures := s.parseAllLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return failures, nil
}

func (s *Session) parseAllLocked() (parsed, map[Section]error) {
	var p parsed
	failures := make(map[Section]error)
	for _, sec := range Sections {
		err := parseSection(sec, s.draft.Section(sec), &p)
		s.checked[sec] = err
		if err != nil {
			failures[sec] = err
		}
	}
	return p, failures
}

// Save validates the draft and sends it. On success the record is replaced
// and the session returns to Viewing. On any failure it stays in Editing
// with the draft exactly as submitted.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	p, failures := s.parseAllLocked()
	var rec cvapi.CVRecord
	err := firstFailure(failures)
	if err == nil {
		rec, err = s.draft.apply(s.record, p)
	}
	if err != nil {
		s.lastErr = err
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.subs.Notify(snap)
		return err
	}
	s.state = Saving
	id := s.record.ID
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.subs.Notify(snap)

	_, err = s.api.UpdateCV(ctx, id, rec, s.tokens.Token())

	s.mu.Lock()
	if err != nil {
		s.state = Editing
		s.lastErr = err
	} else {
		s.record = rec
		s.state = Viewing
		s.draft = Draft{}
		s.checked = make(map[Section]error)
		s.lastErr = nil
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("saving cv failed", "id", id, "error", err)
	} else {
		s.logger.Info("cv saved", "id", id)
	}
	s.subs.Notify(snap)
	return err
}

func firstFailure(failures map[Section]error) error {
	for _, sec := range Sections {
		if err := failures[sec]; err != nil {
			return err
		}
	}
	return nil
}

// CancelEdit drops the draft and returns to Viewing.
func (s *Session) CancelEdit() error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = Viewing
	s.draft = Draft{}
	s.checked = make(map[Section]error)
	s.lastErr = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

// Delete removes the shown record from the server. On success the session
// becomes Idle; on failure it keeps showing the record.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.deleting {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.state != Viewing {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.deleting = true
	id := s.record.ID
	s.mu.Unlock()

	_, err := s.api.DeleteCV(ctx, id, s.tokens.Token())
	if err == nil {
		// A load that started before the delete must not bring the record back.
		s.loads.Invalidate()
	}

	s.mu.Lock()
	s.deleting = false
	if err != nil {
		s.lastErr = err
	} else {
		s.record = cvapi.CVRecord{}
		s.state = Idle
		s.lastErr = nil
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("deleting cv failed", "id", id, "error", err)
	} else {
		s.logger.Info("cv deleted", "id", id)
	}
	s.subs.Notify(snap)
	return err
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         s.state,
		SectionErrors: make(map[Section]error, len(s.checked)),
		Err:           s.lastErr,
	}
	if s.state != Idle {
		rec := s.record.Clone()
		snap.Record = &rec
	}
	if s.state == Editing || s.state == Saving {
		d := s.draft
		snap.Draft = &d
	}
	for k, v := range s.checked {
		snap.SectionErrors[k] = v
	}
	return snap
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the error of the most recent failed operation, cleared by
// the next success.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.subs.Subscribe(fn)
}
