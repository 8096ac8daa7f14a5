package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotFilter narrows slot listings. Nil fields are ignored.
type SlotFilter struct {
	TherapistID *uuid.UUID
	Weekday     *time.Weekday
	Duration    *int
	Booked      *bool
	DateFrom    *time.Time
	DateTo      *time.Time
}

// ProtocolFilter narrows appointment listings and stats. State may be
// one of the four statuses, or the pseudo-states "finalized" and
// "derived" which select on the closure flags instead.
type ProtocolFilter struct {
	TherapistID *uuid.UUID
	PatientID   *uuid.UUID
	Year        int // with Month, restricts to slots in one calendar month; zero means no restriction
	Month       time.Month
	State       string
}

// ProtocolStats are per-filter appointment counts. The four status
// counts partition matching rows; finalized/derived overlap them.
type ProtocolStats struct {
	Pending   int64 `json:"pending"`
	Attended  int64 `json:"attended"`
	NoShow    int64 `json:"no_show"`
	Cancelled int64 `json:"cancelled"`
	Finalized int64 `json:"finalized"`
	Derived   int64 `json:"derived"`
}

// ClosureFlag names one of the two terminal closure markers.
type ClosureFlag string

const (
	ClosureFinalized ClosureFlag = "finalized"
	ClosureDerived   ClosureFlag = "derived"
)

// BookSlotParams describes one atomic booking. When
// SourceAppointmentID is set the source row's next_appointment_id is
// linked to the new appointment inside the same transaction.
type BookSlotParams struct {
	SlotID              uuid.UUID
	PatientID           uuid.UUID
	TherapistID         uuid.UUID
	GlobalSession       int
	SourceAppointmentID *uuid.UUID
}

// CalendarSlot is a slot annotated with the booked patient's display
// name, when booked.
type CalendarSlot struct {
	Slot
	PatientName *string
}

// Repository contains all DB interactions needed by the scheduling
// services. Implementations must make BookSlot atomic: slot CAS,
// appointment insert, and source linking commit together or not at
// all.
type Repository interface {
	GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// SlotsInRange returns all slots for a therapist with dates in
	// [from, to], for overlap checks during generation.
	SlotsInRange(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]Slot, error)
	InsertSlots(ctx context.Context, slots []Slot) error
	ListSlots(ctx context.Context, f SlotFilter, limit, offset int) ([]Slot, int64, error)
	// DeleteUnbookedSlot removes one slot, failing with ErrSlotBooked
	// when it is booked.
	DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error
	// DeleteUnbookedSlots removes every unbooked slot for a therapist
	// with dates in [from, to] and reports how many went away.
	DeleteUnbookedSlots(ctx context.Context, therapistID uuid.UUID, from, to time.Time) (int64, error)
	// SetMeetingLink stores the opaque meeting link on a booked slot.
	SetMeetingLink(ctx context.Context, slotID uuid.UUID, link string) error
	// OpenSlots lists unbooked slots for a therapist on or after from
	// whose recomputed duration matches required within tolerance.
	OpenSlots(ctx context.Context, therapistID uuid.UUID, required int, from time.Time) ([]Slot, error)
	CalendarSlots(ctx context.Context, from, to time.Time, therapistID *uuid.UUID) ([]CalendarSlot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	BookSlot(ctx context.Context, p BookSlotParams) (*Appointment, error)
	// UpdateAppointmentStatus performs a compare-and-swap on status so
	// concurrent resolutions cannot both apply.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason, evidence *string) (*Appointment, error)
	// SetClosure raises finalized or derived, refusing when the row
	// already has a successor.
	SetClosure(ctx context.Context, id uuid.UUID, flag ClosureFlag) (*Appointment, error)
	ListAppointments(ctx context.Context, f ProtocolFilter, limit, offset int) ([]AppointmentDetail, int64, error)
	ProtocolStats(ctx context.Context, f ProtocolFilter) (*ProtocolStats, error)
	// FindOverduePending returns pending appointments whose slot start
	// lies before cutoff, for the sweeper.
	FindOverduePending(ctx context.Context, cutoff time.Time) ([]AppointmentDetail, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
