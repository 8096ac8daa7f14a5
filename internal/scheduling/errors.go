package scheduling

import "errors"

// Sentinel errors, grouped by the kind the API layer maps to an HTTP
// status. KindOf classifies them.
var (
	// validation
	ErrInvalidDateRange     = errors.New("date range start is after end")
	ErrNoWindowsSelected    = errors.New("no weekday windows selected")
	ErrInvalidWindow        = errors.New("window start must be before end within one day")
	ErrInvalidDuration      = errors.New("session duration must be 30 or 60 minutes")
	ErrInvalidSessionNumber = errors.New("global session number must be at least 1")
	ErrInvalidMonth         = errors.New("month must be between 1 and 12")
	ErrInvalidStateFilter   = errors.New("unknown appointment state filter")
	ErrReasonRequired       = errors.New("a reason is required for this action")

	// not found
	ErrTherapistNotFound   = errors.New("therapist not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// conflict
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrSlotBooked        = errors.New("slot is booked and cannot be deleted or released")

	// state
	ErrInvalidTransition    = errors.New("appointment is not pending")
	ErrRescheduleNotAllowed = errors.New("only a no-show or cancelled session can be rescheduled")
	ErrAdvanceNotAllowed    = errors.New("only an attended session can be advanced")
	ErrSuccessorExists      = errors.New("appointment already has a successor")
	ErrAppointmentClosed    = errors.New("appointment is finalized or referred, no further scheduling allowed")
	ErrTherapistMismatch    = errors.New("slot belongs to a different therapist")
	ErrDurationMismatch     = errors.New("slot duration does not match the required session duration")
	ErrSlotNotBooked        = errors.New("slot is not booked")
	ErrNoForwardAction      = errors.New("a pending session has no forward scheduling action")
)

// ErrorKind is the coarse classification callers use to decide how a
// failure is surfaced.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
)

func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrNoWindowsSelected),
		errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidSessionNumber),
		errors.Is(err, ErrInvalidMonth),
		errors.Is(err, ErrInvalidStateFilter),
		errors.Is(err, ErrReasonRequired):
		return KindValidation
	case errors.Is(err, ErrTherapistNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrAppointmentNotFound):
		return KindNotFound
	case errors.Is(err, ErrSlotAlreadyBooked),
		errors.Is(err, ErrSlotBeingBooked),
		errors.Is(err, ErrSlotBooked):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrRescheduleNotAllowed),
		errors.Is(err, ErrAdvanceNotAllowed),
		errors.Is(err, ErrSuccessorExists),
		errors.Is(err, ErrAppointmentClosed),
		errors.Is(err, ErrTherapistMismatch),
		errors.Is(err, ErrDurationMismatch),
		errors.Is(err, ErrSlotNotBooked),
		errors.Is(err, ErrNoForwardAction):
		return KindState
	default:
		return KindUnknown
	}
}
