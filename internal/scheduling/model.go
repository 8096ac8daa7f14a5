package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the per-session clinical outcome. PENDING is the
// only non-terminal value; the other three are set once by an external
// actor and never changed afterwards.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusAttended  AppointmentStatus = "attended"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAttended, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// SessionsPerIntervention is the fixed bundle size of a treatment
// course: one 60-minute intake session followed by three 30-minute
// follow-ups.
const SessionsPerIntervention = 4

const (
	DurationIntake   = 60 // minutes, first session of an intervention
	DurationFollowUp = 30 // minutes, sessions 2-4
)

// durationTolerance absorbs inclusive/exclusive boundary representations
// when a slot's duration is recomputed from end-start.
const durationTolerance = 1

type Therapist struct {
	ID   uuid.UUID
	Name string
}

type Patient struct {
	ID   uuid.UUID
	Name string
}

// Slot is a single bookable time interval for one therapist on one
// date. Times of day are minutes since midnight; Date is the calendar
// day at UTC midnight.
type Slot struct {
	ID              uuid.UUID
	TherapistID     uuid.UUID
	Date            time.Time
	Weekday         time.Weekday
	StartMinute     int
	EndMinute       int
	DurationMinutes int
	Booked          bool
	AppointmentID   *uuid.UUID
	MeetingLink     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Overlaps reports whether [startMinute, endMinute) intersects this
// slot's interval. Both intervals are half-open.
func (s *Slot) Overlaps(startMinute, endMinute int) bool {
	return s.StartMinute < endMinute && startMinute < s.EndMinute
}

// StartsAt resolves the slot's wall-clock start from its date and
// start minute.
func (s *Slot) StartsAt() time.Time {
	return s.Date.Add(time.Duration(s.StartMinute) * time.Minute)
}

// Appointment is one scheduled session instance, linked to exactly one
// slot. Appointments are never deleted; superseded ones keep their
// slot and point forward through NextAppointmentID.
type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	TherapistID       uuid.UUID
	SlotID            uuid.UUID
	Status            AppointmentStatus
	GlobalSession     int
	NextAppointmentID *uuid.UUID
	Finalized         bool
	Derived           bool
	StatusReason      *string
	EvidenceLink      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Closed reports whether a clinical closure flag ends all forward
// scheduling for this appointment.
func (a *Appointment) Closed() bool {
	return a.Finalized || a.Derived
}

// Superseded reports whether a forward action already produced a
// successor appointment.
func (a *Appointment) Superseded() bool {
	return a.NextAppointmentID != nil
}

func (a *Appointment) InterventionNumber() int {
	return InterventionNumber(a.GlobalSession)
}

func (a *Appointment) SessionInIntervention() int {
	return SessionInIntervention(a.GlobalSession)
}

// InterventionNumber is ceil(g/4) for global session number g.
func InterventionNumber(g int) int {
	return (g + SessionsPerIntervention - 1) / SessionsPerIntervention
}

// SessionInIntervention is the 1-4 position of global session g within
// its intervention.
func SessionInIntervention(g int) int {
	return (g-1)%SessionsPerIntervention + 1
}

// RequiredDuration returns the slot duration in minutes admissible for
// global session g: 60 for an intake (position 1), 30 otherwise.
func RequiredDuration(g int) int {
	if SessionInIntervention(g) == 1 {
		return DurationIntake
	}
	return DurationFollowUp
}

// DurationMatches compares a slot duration recomputed from its bounds
// against a required duration, within the boundary tolerance.
func DurationMatches(slotMinutes, required int) bool {
	d := slotMinutes - required
	return d >= -durationTolerance && d <= durationTolerance
}

// EventLog is an append-only audit record of scheduling activity.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail hydrates an appointment with its slot and patient
// for listings and calendar views.
type AppointmentDetail struct {
	Appointment
	Slot    *Slot
	Patient *Patient
}
