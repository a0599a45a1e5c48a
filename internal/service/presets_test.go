package service

import (
	"testing"
	"time"

	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

func TestSnoozePresetResolve(t *testing.T) {
	presets := NewSnoozePresets(time.UTC)
	wednesday := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	fridayMorning := time.Date(2024, 5, 17, 8, 0, 0, 0, time.UTC)
	fridayNoon := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		key  string
		now  time.Time
		want time.Time
	}{
		{"30 minutes", Preset30Minutes, wednesday, wednesday.Add(30 * time.Minute)},
		{"3 hours", Preset3Hours, wednesday, wednesday.Add(3 * time.Hour)},
		{"tomorrow midweek", PresetTomorrow, wednesday, time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)},
		{"tomorrow from friday", PresetTomorrow, fridayNoon, time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)},
		{"friday midweek", PresetFriday, wednesday, time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)},
		{"friday before nine", PresetFriday, fridayMorning, time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)},
		{"friday after nine", PresetFriday, fridayNoon, time.Date(2024, 5, 24, 9, 0, 0, 0, time.UTC)},
		{"next week midweek", PresetNextWeek, wednesday, time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)},
		{"next week on monday", PresetNextWeek, monday, time.Date(2024, 5, 27, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := presets.Resolve(tc.key, tc.now)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestSnoozePresetsUseLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	presets := NewSnoozePresets(loc)
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	got, err := presets.Resolve(PresetTomorrow, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := time.Date(2024, 5, 16, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Fatalf("deadline must be returned in UTC, got %v", got.Location())
	}
}

func TestSnoozePresetUnknownKey(t *testing.T) {
	_, err := NewSnoozePresets(nil).Resolve("someday", time.Now())
	expectCode(t, err, apperrors.CodeValidation)

	list := NewSnoozePresets(nil).List(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	if len(list) != 5 || list[0].Key != Preset30Minutes || list[4].Key != PresetNextWeek {
		t.Fatalf("unexpected preset list %+v", list)
	}
}
