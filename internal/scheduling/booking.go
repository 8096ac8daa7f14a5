package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/saludplena/therapy-scheduling/internal/redis"
	"github.com/saludplena/therapy-scheduling/pkg/logging"
)

// Booking books, releases, reschedules, and advances slots. It is the
// sole writer of the booked relationship between a slot and an
// appointment. Every path that books a slot runs under the per-slot
// distributed lock and the repository's booking transaction, so two
// concurrent callers on one slot get exactly one success.
type Booking struct {
	repo   Repository
	locker redisclient.Locker
	log    *logging.Logger
}

func NewBooking(repo Repository, locker redisclient.Locker, log *logging.Logger) *Booking {
	if log == nil {
		log = logging.Default()
	}
	return &Booking{
		repo:   repo,
		locker: locker,
		log:    log.Component("booking"),
	}
}

// Book reserves a slot for a patient as global session number
// globalSession, creating a PENDING appointment. The slot's duration
// must admit that session's position in its intervention.
func (b *Booking) Book(ctx context.Context, slotID, patientID uuid.UUID, globalSession int) (*Appointment, error) {
	if globalSession < 1 {
		return nil, ErrInvalidSessionNumber
	}

	if _, err := b.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := b.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Booked {
		return nil, ErrSlotAlreadyBooked
	}
	if !DurationMatches(slot.EndMinute-slot.StartMinute, RequiredDuration(globalSession)) {
		return nil, ErrDurationMismatch
	}

	return b.bookLocked(ctx, BookSlotParams{
		SlotID:        slotID,
		PatientID:     patientID,
		TherapistID:   slot.TherapistID,
		GlobalSession: globalSession,
	}, EventSlotBooked, map[string]any{
		"slot_id":        slotID.String(),
		"patient_id":     patientID.String(),
		"global_session": globalSession,
	})
}

// CancelSlot frees an unbooked slot by removing it from inventory. A
// booked slot is refused with ErrSlotBooked: its appointment pairing
// stays on record even after the session resolves.
func (b *Booking) CancelSlot(ctx context.Context, slotID uuid.UUID) error {
	return b.repo.DeleteUnbookedSlot(ctx, slotID)
}

// Reschedule books a replacement slot for a missed or cancelled
// session. The new appointment repeats the same global session number
// and starts PENDING; the source appointment is permanently linked
// forward and its slot stays booked as history.
func (b *Booking) Reschedule(ctx context.Context, appointmentID, newSlotID uuid.UUID) (*Appointment, error) {
	src, err := b.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if src.Closed() {
		return nil, ErrAppointmentClosed
	}
	if src.Superseded() {
		return nil, ErrSuccessorExists
	}
	if src.Status != StatusNoShow && src.Status != StatusCancelled {
		if src.Status == StatusPending {
			return nil, ErrNoForwardAction
		}
		return nil, ErrRescheduleNotAllowed
	}

	// The session number does not change, so neither does the
	// required duration.
	if err := b.checkTargetSlot(ctx, src, newSlotID, RequiredDuration(src.GlobalSession)); err != nil {
		return nil, err
	}

	return b.bookLocked(ctx, BookSlotParams{
		SlotID:              newSlotID,
		PatientID:           src.PatientID,
		TherapistID:         src.TherapistID,
		GlobalSession:       src.GlobalSession,
		SourceAppointmentID: &src.ID,
	}, EventAppointmentRescheduled, map[string]any{
		"source_appointment_id": src.ID.String(),
		"new_slot_id":           newSlotID.String(),
		"global_session":        src.GlobalSession,
	})
}

// Advance books the next session after an attended one. The new
// appointment carries global session number +1, so crossing a
// multiple of four moves into the next intervention and flips the
// required duration back to 60 minutes.
func (b *Booking) Advance(ctx context.Context, appointmentID, newSlotID uuid.UUID) (*Appointment, error) {
	src, err := b.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if src.Closed() {
		return nil, ErrAppointmentClosed
	}
	if src.Superseded() {
		return nil, ErrSuccessorExists
	}
	if src.Status != StatusAttended {
		if src.Status == StatusPending {
			return nil, ErrNoForwardAction
		}
		return nil, ErrAdvanceNotAllowed
	}

	next := src.GlobalSession + 1
	if err := b.checkTargetSlot(ctx, src, newSlotID, RequiredDuration(next)); err != nil {
		return nil, err
	}

	return b.bookLocked(ctx, BookSlotParams{
		SlotID:              newSlotID,
		PatientID:           src.PatientID,
		TherapistID:         src.TherapistID,
		GlobalSession:       next,
		SourceAppointmentID: &src.ID,
	}, EventAppointmentAdvanced, map[string]any{
		"source_appointment_id": src.ID.String(),
		"new_slot_id":           newSlotID.String(),
		"global_session":        next,
	})
}

// CandidateSlots lists the open slots admissible for the next action
// on an appointment: same therapist, unbooked, duration matching what
// the action requires. The action is inferred from the state, exactly
// as Reschedule/Advance would judge it.
func (b *Booking) CandidateSlots(ctx context.Context, appointmentID uuid.UUID) ([]Slot, error) {
	src, err := b.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if src.Closed() {
		return nil, ErrAppointmentClosed
	}
	if src.Superseded() {
		return nil, ErrSuccessorExists
	}

	var required int
	switch src.Status {
	case StatusAttended:
		required = RequiredDuration(src.GlobalSession + 1)
	case StatusNoShow, StatusCancelled:
		required = RequiredDuration(src.GlobalSession)
	default:
		return nil, ErrNoForwardAction
	}

	slots, err := b.repo.OpenSlots(ctx, src.TherapistID, required, dateOnly(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("list candidate slots: %w", err)
	}
	return slots, nil
}

func (b *Booking) checkTargetSlot(ctx context.Context, src *Appointment, slotID uuid.UUID, required int) error {
	slot, err := b.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.TherapistID != src.TherapistID {
		return ErrTherapistMismatch
	}
	if slot.Booked {
		return ErrSlotAlreadyBooked
	}
	if !DurationMatches(slot.EndMinute-slot.StartMinute, required) {
		return ErrDurationMismatch
	}
	return nil
}

func (b *Booking) bookLocked(ctx context.Context, p BookSlotParams, eventType string, payload map[string]any) (*Appointment, error) {
	var created *Appointment

	err := b.locker.WithSlotLock(ctx, p.SlotID, func(lockCtx context.Context) error {
		appt, err := b.repo.BookSlot(lockCtx, p)
		if err != nil {
			return err
		}
		created = appt

		logEvent(lockCtx, b.repo, b.log, appt.ID, eventType, payload)
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	b.log.Info("slot booked",
		"slot_id", p.SlotID,
		"appointment_id", created.ID,
		"global_session", p.GlobalSession,
		"event", eventType,
	)

	return created, nil
}
