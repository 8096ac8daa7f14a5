package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/saludplena/therapy-scheduling/pkg/logging"
)

const (
	EventSlotBooked             = "SLOT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentAdvanced    = "APPOINTMENT_ADVANCED"
	EventSessionAttended        = "SESSION_ATTENDED"
	EventSessionNoShow          = "SESSION_NO_SHOW"
	EventSessionCancelled       = "SESSION_CANCELLED"
	EventInterventionFinalized  = "INTERVENTION_FINALIZED"
	EventPatientReferred        = "PATIENT_REFERRED"
	EventAppointmentOverdue     = "APPOINTMENT_OVERDUE"
)

// logEvent appends an audit row. Audit failures are logged and
// swallowed; they never fail the operation they describe.
func logEvent(ctx context.Context, repo Repository, log *logging.Logger, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		log.Error("insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}
