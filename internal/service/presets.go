package service

import (
	"time"

	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// Snooze preset keys.
const (
	Preset30Minutes = "30m"
	Preset3Hours    = "3h"
	PresetTomorrow  = "tomorrow"
	PresetFriday    = "friday"
	PresetNextWeek  = "next-week"
)

const presetHour = 9

// SnoozePreset is a named snooze deadline resolved for a given instant.
type SnoozePreset struct {
	Key   string
	Label string
	Until time.Time
}

// SnoozePresets computes preset deadlines in the support team's time zone.
type SnoozePresets struct {
	loc *time.Location
}

var presetOrder = []struct {
	key   string
	label string
}{
	{Preset30Minutes, "30 minutes"},
	{Preset3Hours, "3 hours"},
	{PresetTomorrow, "Tomorrow 9:00"},
	{PresetFriday, "Friday 9:00"},
	{PresetNextWeek, "Next Monday 9:00"},
}

// NewSnoozePresets builds a calculator for loc. A nil loc means UTC.
func NewSnoozePresets(loc *time.Location) *SnoozePresets {
	if loc == nil {
		loc = time.UTC
	}
	return &SnoozePresets{loc: loc}
}

// Resolve returns the UTC deadline for key relative to now.
func (p *SnoozePresets) Resolve(key string, now time.Time) (time.Time, error) {
	local := now.In(p.loc)
	var until time.Time
	switch key {
	case Preset30Minutes:
		until = local.Add(30 * time.Minute)
	case Preset3Hours:
		until = local.Add(3 * time.Hour)
	case PresetTomorrow:
		until = p.at(local.AddDate(0, 0, 1))
		// tomorrow lands on the next business day
		for until.Weekday() == time.Saturday || until.Weekday() == time.Sunday {
			until = p.at(until.AddDate(0, 0, 1))
		}
	case PresetFriday:
		days := (int(time.Friday) - int(local.Weekday()) + 7) % 7
		until = p.at(local.AddDate(0, 0, days))
		if !until.After(local) {
			until = p.at(local.AddDate(0, 0, days+7))
		}
	case PresetNextWeek:
		days := (int(time.Monday) - int(local.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		until = p.at(local.AddDate(0, 0, days))
	default:
		return time.Time{}, apperrors.NewValidationError("unknown snooze preset", map[string]any{"preset": key})
	}
	return until.UTC(), nil
}

// List resolves every preset for now, in display order.
func (p *SnoozePresets) List(now time.Time) []SnoozePreset {
	out := make([]SnoozePreset, 0, len(presetOrder))
	for _, preset := range presetOrder {
		until, err := p.Resolve(preset.key, now)
		if err != nil {
			continue
		}
		out = append(out, SnoozePreset{Key: preset.key, Label: preset.label, Until: until})
	}
	return out
}

func (p *SnoozePresets) at(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), presetHour, 0, 0, 0, p.loc)
}
