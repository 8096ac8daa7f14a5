package scheduling

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

// CalendarEntry is one slot as a calendar-style UI consumes it.
type CalendarEntry struct {
	SlotID          uuid.UUID `json:"slot_id"`
	TherapistID     uuid.UUID `json:"therapist_id"`
	StartMinute     int       `json:"start_minute"`
	EndMinute       int       `json:"end_minute"`
	DurationMinutes int       `json:"duration_minutes"`
	Booked          bool      `json:"booked"`
	PatientName     *string   `json:"patient_name,omitempty"`
	MeetingLink     *string   `json:"meeting_link,omitempty"`
}

type CalendarStats struct {
	Total     int `json:"total"`
	Booked    int `json:"booked"`
	Available int `json:"available"`
}

// CalendarMonth maps ISO dates (YYYY-MM-DD) to that day's slots.
type CalendarMonth struct {
	Data  map[string][]CalendarEntry `json:"data"`
	Stats CalendarStats              `json:"stats"`
}

// Calendar is a read-only projection of slots and bookings grouped by
// date. It never mutates anything.
type Calendar struct {
	repo Repository
}

func NewCalendar(repo Repository) *Calendar {
	return &Calendar{repo: repo}
}

// MonthCalendar returns the slots of one calendar month grouped by
// ISO date plus summary counts. A nil therapistID means all
// therapists.
func (c *Calendar) MonthCalendar(ctx context.Context, year int, month time.Month, therapistID *uuid.UUID) (*CalendarMonth, error) {
	if month < time.January || month > time.December {
		return nil, ErrInvalidMonth
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	slots, err := c.repo.CalendarSlots(ctx, from, to, therapistID)
	if err != nil {
		return nil, fmt.Errorf("calendar slots: %w", err)
	}

	out := &CalendarMonth{Data: make(map[string][]CalendarEntry)}
	for _, s := range slots {
		key := s.Date.Format("2006-01-02")
		out.Data[key] = append(out.Data[key], CalendarEntry{
			SlotID:          s.ID,
			TherapistID:     s.TherapistID,
			StartMinute:     s.StartMinute,
			EndMinute:       s.EndMinute,
			DurationMinutes: s.DurationMinutes,
			Booked:          s.Booked,
			PatientName:     s.PatientName,
			MeetingLink:     s.MeetingLink,
		})
		out.Stats.Total++
		if s.Booked {
			out.Stats.Booked++
		} else {
			out.Stats.Available++
		}
	}

	return out, nil
}

// therapistPalette is the fixed set of display colors calendar UIs
// cycle through.
var therapistPalette = []string{
	"#2563eb", // blue
	"#16a34a", // green
	"#d97706", // amber
	"#dc2626", // red
	"#7c3aed", // violet
	"#0891b2", // cyan
	"#db2777", // pink
	"#65a30d", // lime
}

// TherapistColor assigns a display color to a therapist name. The
// assignment is a pure hash, so repeated calls always agree and no
// per-name cache can grow without bound.
func TherapistColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return therapistPalette[h.Sum32()%uint32(len(therapistPalette))]
}
