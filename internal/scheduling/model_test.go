package scheduling

import (
	"testing"
	"time"
)

func TestSessionNumbering(t *testing.T) {
	cases := []struct {
		global       int
		intervention int
		session      int
		duration     int
	}{
		{1, 1, 1, 60},
		{2, 1, 2, 30},
		{3, 1, 3, 30},
		{4, 1, 4, 30},
		{5, 2, 1, 60},
		{6, 2, 2, 30},
		{8, 2, 4, 30},
		{9, 3, 1, 60},
		{12, 3, 4, 30},
		{13, 4, 1, 60},
	}

	for _, tc := range cases {
		if got := InterventionNumber(tc.global); got != tc.intervention {
			t.Errorf("InterventionNumber(%d) = %d, want %d", tc.global, got, tc.intervention)
		}
		if got := SessionInIntervention(tc.global); got != tc.session {
			t.Errorf("SessionInIntervention(%d) = %d, want %d", tc.global, got, tc.session)
		}
		if got := RequiredDuration(tc.global); got != tc.duration {
			t.Errorf("RequiredDuration(%d) = %d, want %d", tc.global, got, tc.duration)
		}
	}
}

func TestDurationMatches_Tolerance(t *testing.T) {
	cases := []struct {
		slot, required int
		want           bool
	}{
		{60, 60, true},
		{59, 60, true},
		{61, 60, true},
		{58, 60, false},
		{62, 60, false},
		{30, 30, true},
		{29, 30, true},
		{31, 30, true},
		{30, 60, false},
		{60, 30, false},
	}

	for _, tc := range cases {
		if got := DurationMatches(tc.slot, tc.required); got != tc.want {
			t.Errorf("DurationMatches(%d, %d) = %v, want %v", tc.slot, tc.required, got, tc.want)
		}
	}
}

func TestSlotOverlaps(t *testing.T) {
	s := Slot{StartMinute: 480, EndMinute: 540}

	cases := []struct {
		start, end int
		want       bool
	}{
		{480, 540, true},  // identical
		{450, 481, true},  // tail crosses start
		{539, 600, true},  // head crosses end
		{500, 520, true},  // contained
		{420, 480, false}, // adjacent before, half-open
		{540, 600, false}, // adjacent after, half-open
		{300, 360, false},
	}

	for _, tc := range cases {
		if got := s.Overlaps(tc.start, tc.end); got != tc.want {
			t.Errorf("Overlaps(%d, %d) = %v, want %v", tc.start, tc.end, got, tc.want)
		}
	}
}

func TestSlotStartsAt(t *testing.T) {
	s := Slot{
		Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		StartMinute: 510,
	}
	want := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	if got := s.StartsAt(); !got.Equal(want) {
		t.Errorf("StartsAt() = %v, want %v", got, want)
	}
}
