package cvapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DateLayout is the wire format for every date the API accepts.
const DateLayout = "2006-01-02"

// Page size bounds accepted by the search endpoint.
const (
	MinPerPage     = 5
	MaxPerPage     = 100
	DefaultPerPage = 10
)

type SortField string

const (
	SortByUploadDate SortField = "upload_date"
	SortByName       SortField = "name"
	SortByFilename   SortField = "filename"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByUploadDate, SortByName, SortByFilename:
		return true
	}
	return false
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

func (o SortOrder) Valid() bool { return o == SortAsc || o == SortDesc }

// Logic controls how multiple comma-separated query terms combine.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

func (l Logic) Valid() bool { return l == LogicAnd || l == LogicOr }

// SearchParameters is the full input of GET /api/search. Empty strings mean
// "unset" and are left out of the encoded query.
type SearchParameters struct {
	Query     string
	Page      int
	PerPage   int
	DateFrom  string // YYYY-MM-DD
	DateTo    string // YYYY-MM-DD
	SortBy    SortField
	SortOrder SortOrder
	Logic     Logic
}

// DefaultSearchParameters returns page 1, 10 per page, newest uploads first.
func DefaultSearchParameters() SearchParameters {
	return SearchParameters{
		Page:      1,
		PerPage:   DefaultPerPage,
		SortBy:    SortByUploadDate,
		SortOrder: SortDesc,
		Logic:     LogicAnd,
	}
}

// ClampPerPage bounds n to [MinPerPage, MaxPerPage].
func ClampPerPage(n int) int {
	if n < MinPerPage {
		return MinPerPage
	}
	if n > MaxPerPage {
		return MaxPerPage
	}
	return n
}

// Page is one page of a server-side paginated listing.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// newPage normalises the pagination fields a server reported.
func newPage[T any](items []T, page, perPage, total, totalPages int) Page[T] {
	if totalPages <= 0 {
		totalPages = 1
		if perPage > 0 {
			totalPages = (total + perPage - 1) / perPage
		}
	}
	if page < 1 {
		page = 1
	}
	if max := maxInt(totalPages, 1); page > max {
		page = max
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CVSummary is one row of a search listing.
type CVSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Filename   string `json:"filename"`
	UploadDate string `json:"upload_date"`
	Gender     string `json:"gender,omitempty"`
	Type       string `json:"type,omitempty"`
}

// PersonalInfo holds the flat, individually editable CV fields.
type PersonalInfo struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	GitHub   string
	LinkedIn string
	Gender   string
	Type     string

	// Extra carries keys the client does not model so they survive a round trip.
	Extra map[string]json.RawMessage
}

var personalKeys = []string{"name", "email", "phone", "address", "github", "linkedin", "gender", "type"}

func (p *PersonalInfo) ptrs() map[string]*string {
	return map[string]*string{
		"name": &p.Name, "email": &p.Email, "phone": &p.Phone, "address": &p.Address,
		"github": &p.GitHub, "linkedin": &p.LinkedIn, "gender": &p.Gender, "type": &p.Type,
	}
}

func (p *PersonalInfo) UnmarshalJSON(data []byte) error {
	*p = PersonalInfo{}
	extra, err := splitStringFields(data, p.ptrs())
	if err != nil {
		return fmt.Errorf("personal_info: %w", err)
	}
	p.Extra = extra
	return nil
}

func (p PersonalInfo) MarshalJSON() ([]byte, error) {
	return joinStringFields(p.ptrs(), personalKeys, p.Extra, true)
}

// EducationEntry is one element of the education section. All fields optional.
type EducationEntry struct {
	Degree      string
	Institution string
	Year        string
	Dates       string
	Description string
	Extra       map[string]json.RawMessage
}

var educationKeys = []string{"degree", "institution", "year", "dates", "description"}

func (e *EducationEntry) ptrs() map[string]*string {
	return map[string]*string{
		"degree": &e.Degree, "institution": &e.Institution, "year": &e.Year,
		"dates": &e.Dates, "description": &e.Description,
	}
}

func (e *EducationEntry) UnmarshalJSON(data []byte) error {
	*e = EducationEntry{}
	extra, err := splitStringFields(data, e.ptrs())
	if err != nil {
		return err
	}
	e.Extra = extra
	return nil
}

func (e EducationEntry) MarshalJSON() ([]byte, error) {
	return joinStringFields(e.ptrs(), educationKeys, e.Extra, false)
}

// ExperienceEntry is one element of the experience section. All fields optional.
type ExperienceEntry struct {
	Position    string
	Company     string
	Duration    string
	Dates       string
	Description string
	Extra       map[string]json.RawMessage
}

var experienceKeys = []string{"position", "company", "duration", "dates", "description"}

func (e *ExperienceEntry) ptrs() map[string]*string {
	return map[string]*string{
		"position": &e.Position, "company": &e.Company, "duration": &e.Duration,
		"dates": &e.Dates, "description": &e.Description,
	}
}

func (e *ExperienceEntry) UnmarshalJSON(data []byte) error {
	*e = ExperienceEntry{}
	extra, err := splitStringFields(data, e.ptrs())
	if err != nil {
		return err
	}
	e.Extra = extra
	return nil
}

func (e ExperienceEntry) MarshalJSON() ([]byte, error) {
	return joinStringFields(e.ptrs(), experienceKeys, e.Extra, false)
}

// CVRecord is the full structured document behind GET/PUT /api/view/{id}.
type CVRecord struct {
	ID           string
	PersonalInfo PersonalInfo
	Skills       map[string][]string
	Education    []EducationEntry
	Experience   []ExperienceEntry
	Filename     string
	UploadDate   string
	RawText      string

	// Extra keeps server fields outside the edited sections (languages,
	// projects, content_hash, ...). They are sent back unchanged on update.
	Extra map[string]json.RawMessage
}

type cvWire struct {
	ID           string              `json:"id,omitempty"`
	PersonalInfo *PersonalInfo       `json:"personal_info,omitempty"`
	Skills       map[string][]string `json:"skills"`
	Education    []EducationEntry    `json:"education"`
	Experience   []ExperienceEntry   `json:"experience"`
	Filename     string              `json:"filename,omitempty"`
	UploadDate   string              `json:"upload_date,omitempty"`
	RawText      string              `json:"raw_text,omitempty"`
}

var cvKeys = map[string]bool{
	"id": true, "personal_info": true, "skills": true, "education": true,
	"experience": true, "filename": true, "upload_date": true, "raw_text": true,
}

func (r *CVRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var w cvWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = CVRecord{
		ID:         w.ID,
		Skills:     w.Skills,
		Education:  w.Education,
		Experience: w.Experience,
		Filename:   w.Filename,
		UploadDate: w.UploadDate,
		RawText:    w.RawText,
	}
	if w.PersonalInfo != nil {
		r.PersonalInfo = *w.PersonalInfo
	}
	for k, v := range raw {
		if cvKeys[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

func (r CVRecord) MarshalJSON() ([]byte, error) {
	skills := r.Skills
	if skills == nil {
		skills = map[string][]string{}
	}
	edu := r.Education
	if edu == nil {
		edu = []EducationEntry{}
	}
	exp := r.Experience
	if exp == nil {
		exp = []ExperienceEntry{}
	}
	pi := r.PersonalInfo
	known, err := json.Marshal(cvWire{
		ID:           r.ID,
		PersonalInfo: &pi,
		Skills:       skills,
		Education:    edu,
		Experience:   exp,
		Filename:     r.Filename,
		UploadDate:   r.UploadDate,
		RawText:      r.RawText,
	})
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of r.
func (r CVRecord) Clone() CVRecord {
	out := r
	out.PersonalInfo.Extra = cloneRaw(r.PersonalInfo.Extra)
	if r.Skills != nil {
		out.Skills = make(map[string][]string, len(r.Skills))
		for k, v := range r.Skills {
			out.Skills[k] = append([]string(nil), v...)
		}
	}
	if r.Education != nil {
		out.Education = make([]EducationEntry, len(r.Education))
		for i, e := range r.Education {
			e.Extra = cloneRaw(e.Extra)
			out.Education[i] = e
		}
	}
	if r.Experience != nil {
		out.Experience = make([]ExperienceEntry, len(r.Experience))
		for i, e := range r.Experience {
			e.Extra = cloneRaw(e.Extra)
			out.Experience[i] = e
		}
	}
	out.Extra = cloneRaw(r.Extra)
	return out
}

// SkillCategories returns the skill category names in sorted order.
func (r CVRecord) SkillCategories() []string {
	cats := make([]string, 0, len(r.Skills))
	for k := range r.Skills {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	return cats
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// splitStringFields decodes a JSON object, storing known keys into dst and
// returning everything else. Numbers are accepted for string fields since
// extracted CVs often carry "year": 2019.
func splitStringFields(data []byte, dst map[string]*string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("expected an object")
	}
	var extra map[string]json.RawMessage
	for k, v := range raw {
		p, ok := dst[k]
		if !ok {
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = v
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		*p = s
	}
	return extra, nil
}

func scalarString(v json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(v))
	switch {
	case trimmed == "null":
		return "", nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("expected a string")
	}
	return n.String(), nil
}

// joinStringFields encodes keys in order. keepEmpty controls whether empty
// strings are written; personal info always sends every field.
func joinStringFields(src map[string]*string, order []string, extra map[string]json.RawMessage, keepEmpty bool) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	write := func(k string, v []byte) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.Write(v)
	}
	for _, k := range order {
		s := *src[k]
		if s == "" && !keepEmpty {
			continue
		}
		vb, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		write(k, vb)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if _, known := src[k]; !known {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, extra[k])
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// AuditLogEntry is one immutable server-recorded action.
type AuditLogEntry struct {
	ID          string         `json:"id,omitempty"`
	Timestamp   string         `json:"timestamp"`
	User        string         `json:"user"`
	Action      string         `json:"action"`
	CVID        string         `json:"cv_id"`
	IPAddress   string         `json:"ip_address"`
	Details     map[string]any `json:"details,omitempty"`
	SessionInfo map[string]any `json:"session_info,omitempty"`
}

// AuditMetadata accompanies a single audit log lookup.
type AuditMetadata struct {
	RetrievedAt   string   `json:"retrieved_at"`
	LogID         string   `json:"log_id"`
	FieldsPresent []string `json:"fields_present"`
}

type AuditLogDetail struct {
	Entry    AuditLogEntry
	Metadata AuditMetadata
}

// AuditLogQuery selects a page of audit logs. Empty filters are omitted.
type AuditLogQuery struct {
	Page      int
	PerPage   int
	User      string
	Action    string
	StartDate string
	EndDate   string
}

// FilterOptions lists the distinct users and actions seen in the audit log.
type FilterOptions struct {
	Users   []string `json:"users"`
	Actions []string `json:"actions"`
}

// AuditDateRange summarises the span of the audit log.
type AuditDateRange struct {
	EarliestLog string `json:"earliest_log"`
	LatestLog   string `json:"latest_log"`
	TotalLogs   int    `json:"total_logs"`
}

// Indexes maps an index category (skills, companies, ...) to its terms.
type Indexes map[string][]string

// Message is the common {"message": "..."} success body.
type Message struct {
	Message string `json:"message"`
}

type LoginResult struct {
	Token string
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// ProcessedFile is the per-file outcome of an upload or batch.
type ProcessedFile struct {
	Filename       string  `json:"filename"`
	Status         string  `json:"status,omitempty"`
	Name           string  `json:"name,omitempty"`
	ID             string  `json:"id,omitempty"`
	Action         string  `json:"action,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
	ExistingID     string  `json:"existing_id,omitempty"`
}

type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult reports per-file counts. Some files failing is a normal outcome.
type UploadResult struct {
	BatchID      string
	TotalFiles   int
	SuccessCount int
	ErrorCount   int
	Processed    []ProcessedFile
	Errors       []UploadError
	Messages     []string
}

// BatchStatus is the server's view of an asynchronous upload batch.
type BatchStatus struct {
	BatchID        string          `json:"batch_id"`
	Status         string          `json:"status,omitempty"`
	TotalFiles     int             `json:"total_files"`
	SuccessCount   int             `json:"success_count"`
	ErrorCount     int             `json:"error_count"`
	SkippedCount   int             `json:"skipped_count"`
	CompletedAt    string          `json:"completed_at"`
	ProcessingMode string          `json:"processing_mode"`
	Processed      []ProcessedFile `json:"processed"`
	Errors         []ProcessedFile `json:"errors,omitempty"`
}

// Completed reports whether the server has finished the batch.
func (b BatchStatus) Completed() bool {
	return b.CompletedAt != ""
}
