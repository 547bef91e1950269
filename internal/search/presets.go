package search

import (
	"time"

	"github.com/kalambet/cvdesk/internal/cvapi"
)

// Preset is a named date range resolved against the current day.
type Preset string

const (
	PresetCustom      Preset = "custom"
	PresetToday       Preset = "today"
	PresetYesterday   Preset = "yesterday"
	PresetLast7Days   Preset = "last_7_days"
	PresetLast30Days  Preset = "last_30_days"
	PresetLast3Months Preset = "last_3_months"
	PresetLast6Months Preset = "last_6_months"
	PresetLastYear    Preset = "last_year"
)

type PresetOption struct {
	Preset Preset
	Label  string
}

var presetOptions = []PresetOption{
	{PresetCustom, "Custom Range"},
	{PresetToday, "Today"},
	{PresetYesterday, "Yesterday"},
	{PresetLast7Days, "Last 7 days"},
	{PresetLast30Days, "Last 30 days"},
	{PresetLast3Months, "Last 3 months"},
	{PresetLast6Months, "Last 6 months"},
	{PresetLastYear, "Last year"},
}

// Presets lists every preset in display order.
func Presets() []PresetOption {
	return append([]PresetOption(nil), presetOptions...)
}

// daysBack is how far each trailing range starts before today. A month is
// counted as 30 days and a year as 365.
var daysBack = map[Preset]int{
	PresetLast7Days:   7,
	PresetLast30Days:  30,
	PresetLast3Months: 90,
	PresetLast6Months: 180,
	PresetLastYear:    365,
}

// ResolvePreset returns the range for p as of now. ok is false for
// PresetCustom and for unknown presets.
func ResolvePreset(p Preset, now time.Time) (from, to string, ok bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch p {
	case PresetToday:
		d := today.Format(cvapi.DateLayout)
		return d, d, true
	case PresetYesterday:
		d := today.AddDate(0, 0, -1).Format(cvapi.DateLayout)
		return d, d, true
	}
	n, known := daysBack[p]
	if !known {
		return "", "", false
	}
	return today.AddDate(0, 0, -n).Format(cvapi.DateLayout), today.Format(cvapi.DateLayout), true
}
