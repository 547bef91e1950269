package cvedit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/kalambet/cvdesk/internal/cvapi"
)

// Section is one of the free-form JSON parts of a CV.
type Section string

const (
	SectionSkills     Section = "skills"
	SectionEducation  Section = "education"
	SectionExperience Section = "experience"
)

// Sections lists every editable section.
var Sections = []Section{SectionSkills, SectionEducation, SectionExperience}

func (s Section) Valid() bool {
	return slices.Contains(Sections, s)
}

const (
	// NoneOption is stored when no gender or type was chosen.
	NoneOption = "NONE"
	// OtherType selects the free-text custom type.
	OtherType = "Other"
)

var (
	GenderOptions = []string{NoneOption, "Male", "Female", "Other"}
	TypeOptions   = []string{NoneOption, "HR Manager", "Web Developer", "Software Engineer", "Designer", "Analyst", "Manager", OtherType}
)

// Draft is the editable copy of a record. Sections hold JSON text.
type Draft struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	GitHub     string
	LinkedIn   string
	Gender     string
	Type       string
	CustomType string

	Skills     string
	Education  string
	Experience string
}

// Section returns the text of sec.
func (d Draft) Section(sec Section) string {
	switch sec {
	case SectionSkills:
		return d.Skills
	case SectionEducation:
		return d.Education
	case SectionExperience:
		return d.Experience
	}
	return ""
}

func (d *Draft) setSection(sec Section, text string) {
	switch sec {
	case SectionSkills:
		d.Skills = text
	case SectionEducation:
		d.Education = text
	case SectionExperience:
		d.Experience = text
	}
}

// Fields is the set of names SetField accepts.
var Fields = []string{"name", "email", "phone", "address", "github", "linkedin", "gender", "type", "custom_type"}

func (d *Draft) field(name string) *string {
	switch name {
	case "name":
		return &d.Name
	case "email":
		return &d.Email
	case "phone":
		return &d.Phone
	case "address":
		return &d.Address
	case "github":
		return &d.GitHub
	case "linkedin":
		return &d.LinkedIn
	case "gender":
		return &d.Gender
	case "type":
		return &d.Type
	case "custom_type":
		return &d.CustomType
	}
	return nil
}

// newDraft builds the edit form for rec. A stored type outside TypeOptions
// is shown as "Other" with the stored text as the custom type.
func newDraft(rec cvapi.CVRecord) (Draft, error) {
	pi := rec.PersonalInfo
	d := Draft{
		Name:     pi.Name,
		Email:    pi.Email,
		Phone:    pi.Phone,
		Address:  pi.Address,
		GitHub:   pi.GitHub,
		LinkedIn: pi.LinkedIn,
		Gender:   orNone(pi.Gender),
		Type:     orNone(pi.Type),
	}
	if !slices.Contains(TypeOptions, d.Type) {
		d.CustomType = d.Type
		d.Type = OtherType
	}

	skills := rec.Skills
	if skills == nil {
		skills = map[string][]string{}
	}
	edu := rec.Education
	if edu == nil {
		edu = []cvapi.EducationEntry{}
	}
	exp := rec.Experience
	if exp == nil {
		exp = []cvapi.ExperienceEntry{}
	}
	for sec, v := range map[Section]any{SectionSkills: skills, SectionEducation: edu, SectionExperience: exp} {
		text, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return Draft{}, fmt.Errorf("encoding %s: %w", sec, err)
		}
		d.setSection(sec, string(text))
	}
	return d, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoneOption
	}
	return s
}

// SectionError is a validation failure scoped to one section.
type SectionError struct {
	Section Section
	Err     *cvapi.ValidationError
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Section, e.Err.Message)
}

func (e *SectionError) Unwrap() error { return e.Err }

func sectionError(sec Section, format string, args ...any) *SectionError {
	return &SectionError{Section: sec, Err: cvapi.Invalid(string(sec), format, args...)}
}

// parsed holds the decoded sections of a draft.
type parsed struct {
	skills     map[string][]string
	education  []cvapi.EducationEntry
	experience []cvapi.ExperienceEntry
}

// parseSection decodes one section's text into p. Blank text is an empty
// collection.
func parseSection(sec Section, text string, p *parsed) error {
	text = strings.TrimSpace(text)
	switch sec {
	case SectionSkills:
		if text == "" {
			p.skills = map[string][]string{}
			return nil
		}
		var v map[string][]string
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return sectionError(sec, "expected an object of string lists: %v", err)
		}
		if v == nil {
			v = map[string][]string{}
		}
		p.skills = v
	case SectionEducation:
		if text == "" {
			p.education = []cvapi.EducationEntry{}
			return nil
		}
		var v []cvapi.EducationEntry
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return sectionError(sec, "expected a list of objects: %v", err)
		}
		if v == nil {
			v = []cvapi.EducationEntry{}
		}
		p.education = v
	case SectionExperience:
		if text == "" {
			p.experience = []cvapi.ExperienceEntry{}
			return nil
		}
		var v []cvapi.ExperienceEntry
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return sectionError(sec, "expected a list of objects: %v", err)
		}
		if v == nil {
			v = []cvapi.ExperienceEntry{}
		}
		p.experience = v
	default:
		return cvapi.Invalid("section", "unknown section %q", sec)
	}
	return nil
}

// persistedType applies the custom type rule.
func (d Draft) persistedType() (string, error) {
	if d.Type != OtherType {
		return orNone(d.Type), nil
	}
	custom := strings.TrimSpace(d.CustomType)
	if custom == "" {
		return "", cvapi.Invalid("custom_type", "enter a custom type or pick one from the list")
	}
	return custom, nil
}

// apply merges the draft and its parsed sections into a copy of rec.
// Unmodelled fields of rec are kept.
func (d Draft) apply(rec cvapi.CVRecord, p parsed) (cvapi.CVRecord, error) {
	typ, err := d.persistedType()
	if err != nil {
		return cvapi.CVRecord{}, err
	}
	out := rec.Clone()
	out.PersonalInfo.Name = d.Name
	out.PersonalInfo.Email = d.Email
	out.PersonalInfo.Phone = d.Phone
	out.PersonalInfo.Address = d.Address
	out.PersonalInfo.GitHub = d.GitHub
	out.PersonalInfo.LinkedIn = d.LinkedIn
	out.PersonalInfo.Gender = orNone(d.Gender)
	out.PersonalInfo.Type = typ
	out.Skills = p.skills
	out.Education = p.education
	out.Experience = p.experience
	return out, nil
}
