package cvapi

import (
	"strings"
	"time"
)

// ParseDate parses a YYYY-MM-DD date. field names the input in the error.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, Invalid(field, "%q is not a YYYY-MM-DD date", s)
	}
	return t, nil
}

// ValidateDateRange checks that each non-empty bound is a date and that from
// is not after to.
func ValidateDateRange(from, to string) error {
	var ft, tt time.Time
	var err error
	if strings.TrimSpace(from) != "" {
		if ft, err = ParseDate("date_from", from); err != nil {
			return err
		}
	}
	if strings.TrimSpace(to) != "" {
		if tt, err = ParseDate("date_to", to); err != nil {
			return err
		}
	}
	if !ft.IsZero() && !tt.IsZero() && ft.After(tt) {
		return Invalid("date_range", "start date %s is after end date %s", from, to)
	}
	return nil
}
