package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saludplena/therapy-scheduling/pkg/logging"
)

// Protocol owns the appointment lifecycle. A PENDING session resolves
// exactly once to ATTENDED, NO_SHOW, or CANCELLED; the resolution
// decides which forward action (advance or reschedule) becomes legal.
// The finalized and derived flags close a treatment course and block
// all forward scheduling.
type Protocol struct {
	repo Repository
	log  *logging.Logger
}

func NewProtocol(repo Repository, log *logging.Logger) *Protocol {
	if log == nil {
		log = logging.Default()
	}
	return &Protocol{
		repo: repo,
		log:  log.Component("protocol"),
	}
}

// MarkAttended resolves a pending session as attended.
func (p *Protocol) MarkAttended(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return p.resolve(ctx, id, StatusAttended, nil, nil, EventSessionAttended)
}

// MarkNoShow resolves a pending session as a no-show. A reason is
// mandatory; evidence (for example a call-log link) is optional.
func (p *Protocol) MarkNoShow(ctx context.Context, id uuid.UUID, reason string, evidence *string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return p.resolve(ctx, id, StatusNoShow, &reason, evidence, EventSessionNoShow)
}

// Cancel resolves a pending session as cancelled, with a mandatory
// reason.
func (p *Protocol) Cancel(ctx context.Context, id uuid.UUID, reason string, evidence *string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return p.resolve(ctx, id, StatusCancelled, &reason, evidence, EventSessionCancelled)
}

func (p *Protocol) resolve(ctx context.Context, id uuid.UUID, to AppointmentStatus, reason, evidence *string, eventType string) (*Appointment, error) {
	appt, err := p.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	// CAS from pending so two clinicians resolving the same session
	// cannot both apply.
	updated, err := p.repo.UpdateAppointmentStatus(ctx, id, StatusPending, to, reason, evidence)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	payload := map[string]any{"status": string(to)}
	if reason != nil {
		payload["reason"] = *reason
	}
	logEvent(ctx, p.repo, p.log, updated.ID, eventType, payload)

	return updated, nil
}

// Finalize marks the treatment course complete at this appointment.
// Only a node without a successor can carry a closure flag; once set,
// advance and reschedule are refused.
func (p *Protocol) Finalize(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return p.close(ctx, id, ClosureFinalized, EventInterventionFinalized)
}

// Derive marks the patient as referred elsewhere at this appointment,
// with the same scheduling consequences as Finalize.
func (p *Protocol) Derive(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return p.close(ctx, id, ClosureDerived, EventPatientReferred)
}

func (p *Protocol) close(ctx context.Context, id uuid.UUID, flag ClosureFlag, eventType string) (*Appointment, error) {
	appt, err := p.repo.SetClosure(ctx, id, flag)
	if err != nil {
		return nil, err
	}

	logEvent(ctx, p.repo, p.log, appt.ID, eventType, map[string]any{
		"global_session": appt.GlobalSession,
		"intervention":   appt.InterventionNumber(),
	})

	return appt, nil
}

// ListAppointments returns one page of appointments matching the
// filter, hydrated with slot and patient.
func (p *Protocol) ListAppointments(ctx context.Context, f ProtocolFilter, page, perPage int) ([]AppointmentDetail, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20 // default
	}
	if perPage > 100 {
		perPage = 100 // max
	}
	if err := validateProtocolFilter(f); err != nil {
		return nil, 0, err
	}

	rows, total, err := p.repo.ListAppointments(ctx, f, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return rows, total, nil
}

// Stats returns the per-status and per-closure counts for the filter.
func (p *Protocol) Stats(ctx context.Context, f ProtocolFilter) (*ProtocolStats, error) {
	if err := validateProtocolFilter(f); err != nil {
		return nil, err
	}
	st, err := p.repo.ProtocolStats(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("protocol stats: %w", err)
	}
	return st, nil
}

func validateProtocolFilter(f ProtocolFilter) error {
	if f.Year != 0 && (f.Month < time.January || f.Month > time.December) {
		return ErrInvalidMonth
	}
	switch f.State {
	case "", string(ClosureFinalized), string(ClosureDerived):
		return nil
	}
	if !AppointmentStatus(f.State).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStateFilter, f.State)
	}
	return nil
}

// SweepOverduePending reports pending sessions whose slot start lies
// more than grace in the past. Clinical resolution stays a human
// decision; the sweep only records the backlog for follow-up.
func (p *Protocol) SweepOverduePending(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)

	overdue, err := p.repo.FindOverduePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue pending: %w", err)
	}

	for _, appt := range overdue {
		p.log.Warn("pending session overdue",
			"appointment_id", appt.ID,
			"therapist_id", appt.TherapistID,
			"slot_start", appt.Slot.StartsAt(),
			"global_session", appt.GlobalSession,
		)
		logEvent(ctx, p.repo, p.log, appt.ID, EventAppointmentOverdue, map[string]any{
			"slot_start": appt.Slot.StartsAt(),
			"cutoff":     cutoff,
		})
	}

	return len(overdue), nil
}
