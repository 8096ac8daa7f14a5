package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Window is one recurring weekly availability block, in minutes since
// midnight.
type Window struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// GenerateRequest expands the given weekly windows over [DateFrom,
// DateTo] (inclusive) into slots of DurationMinutes each.
type GenerateRequest struct {
	TherapistID     uuid.UUID
	DateFrom        time.Time
	DateTo          time.Time
	Windows         []Window
	DurationMinutes int
}

// Generator populates the slot inventory from recurring weekly
// patterns. Generation is idempotent: candidates overlapping an
// existing slot for the same therapist and date are skipped, so
// re-submitting a pattern never duplicates inventory.
type Generator struct {
	repo Repository
}

func NewGenerator(repo Repository) *Generator {
	return &Generator{repo: repo}
}

const minutesPerDay = 24 * 60

// Generate returns how many slots were actually created, which may be
// below the theoretical maximum when candidates collide with existing
// slots.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (int, error) {
	if req.DurationMinutes != DurationFollowUp && req.DurationMinutes != DurationIntake {
		return 0, ErrInvalidDuration
	}
	if len(req.Windows) == 0 {
		return 0, ErrNoWindowsSelected
	}

	from := dateOnly(req.DateFrom)
	to := dateOnly(req.DateTo)
	if from.After(to) {
		return 0, ErrInvalidDateRange
	}

	for _, w := range req.Windows {
		if w.StartMinute < 0 || w.EndMinute > minutesPerDay || w.StartMinute >= w.EndMinute {
			return 0, fmt.Errorf("%w: %d-%d on %s", ErrInvalidWindow, w.StartMinute, w.EndMinute, w.Weekday)
		}
	}

	if _, err := g.repo.GetTherapistByID(ctx, req.TherapistID); err != nil {
		return 0, err
	}

	existing, err := g.repo.SlotsInRange(ctx, req.TherapistID, from, to)
	if err != nil {
		return 0, fmt.Errorf("load existing slots: %w", err)
	}

	// Index taken intervals by date; candidates created in this run
	// join the index so windows in one request cannot collide either.
	taken := make(map[string][]Slot)
	for _, s := range existing {
		key := s.Date.Format("2006-01-02")
		taken[key] = append(taken[key], s)
	}

	var batch []Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		for _, w := range req.Windows {
			if w.Weekday != d.Weekday() {
				continue
			}
			// Step through the window; a final partial step is dropped.
			for start := w.StartMinute; start+req.DurationMinutes <= w.EndMinute; start += req.DurationMinutes {
				end := start + req.DurationMinutes
				if overlapsAny(taken[key], start, end) {
					continue
				}
				slot := Slot{
					ID:              uuid.New(),
					TherapistID:     req.TherapistID,
					Date:            d,
					Weekday:         d.Weekday(),
					StartMinute:     start,
					EndMinute:       end,
					DurationMinutes: req.DurationMinutes,
				}
				taken[key] = append(taken[key], slot)
				batch = append(batch, slot)
			}
		}
	}

	if err := g.repo.InsertSlots(ctx, batch); err != nil {
		return 0, fmt.Errorf("insert slots: %w", err)
	}

	return len(batch), nil
}

func overlapsAny(slots []Slot, start, end int) bool {
	for i := range slots {
		if slots[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}

// dateOnly truncates to UTC midnight so date comparisons ignore any
// time-of-day the caller passed in.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
