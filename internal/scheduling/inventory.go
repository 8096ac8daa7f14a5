package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotPage is one page of a filtered slot listing.
type SlotPage struct {
	Data        []Slot
	CurrentPage int
	LastPage    int
	Total       int64
}

// Inventory is the durable collection of slots per therapist.
type Inventory struct {
	repo Repository
}

func NewInventory(repo Repository) *Inventory {
	return &Inventory{repo: repo}
}

// ListSlots returns one page of slots matching the filter. Pagination
// is stateless; the caller passes page and perPage on every call.
func (inv *Inventory) ListSlots(ctx context.Context, f SlotFilter, page, perPage int) (*SlotPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20 // default
	}
	if perPage > 100 {
		perPage = 100 // max
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return nil, ErrInvalidDateRange
	}

	slots, total, err := inv.repo.ListSlots(ctx, f, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}

	return &SlotPage{
		Data:        slots,
		CurrentPage: page,
		LastPage:    lastPage,
		Total:       total,
	}, nil
}

// DeleteSlot removes a single unbooked slot. A booked slot is
// protected until its appointment history would allow otherwise,
// which never happens: booked slots are permanent.
func (inv *Inventory) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return inv.repo.DeleteUnbookedSlot(ctx, id)
}

// DeleteMonthSlots removes every unbooked slot a therapist has in the
// given month and reports the count, zero included. Repeating the
// call is a no-op.
func (inv *Inventory) DeleteMonthSlots(ctx context.Context, therapistID uuid.UUID, year int, month time.Month) (int64, error) {
	if month < time.January || month > time.December {
		return 0, ErrInvalidMonth
	}
	if _, err := inv.repo.GetTherapistByID(ctx, therapistID); err != nil {
		return 0, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	n, err := inv.repo.DeleteUnbookedSlots(ctx, therapistID, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete month slots: %w", err)
	}
	return n, nil
}

// SetMeetingLink attaches an opaque meeting link to a booked slot.
// The engine stores the string and nothing more.
func (inv *Inventory) SetMeetingLink(ctx context.Context, slotID uuid.UUID, link string) error {
	return inv.repo.SetMeetingLink(ctx, slotID, link)
}
