package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/saludplena/therapy-scheduling/internal/scheduling"
)

type GenerateSlotsRequest struct {
	TherapistID     string          `json:"therapist_id"`
	DateFrom        string          `json:"date_from"` // YYYY-MM-DD
	DateTo          string          `json:"date_to"`   // YYYY-MM-DD
	DurationMinutes int             `json:"duration_minutes"`
	Windows         []WindowRequest `json:"windows"`
}

type WindowRequest struct {
	Weekday     int `json:"weekday"` // 0=Sunday ... 6=Saturday
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type GenerateSlotsResponse struct {
	CreatedCount int `json:"created_count"`
}

type SlotResponse struct {
	ID              uuid.UUID  `json:"id"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	Date            string     `json:"date"`
	Weekday         int        `json:"weekday"`
	StartMinute     int        `json:"start_minute"`
	EndMinute       int        `json:"end_minute"`
	DurationMinutes int        `json:"duration_minutes"`
	Booked          bool       `json:"booked"`
	AppointmentID   *uuid.UUID `json:"appointment_id,omitempty"`
	MeetingLink     *string    `json:"meeting_link,omitempty"`
}

func toSlotResponse(s scheduling.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		TherapistID:     s.TherapistID,
		Date:            s.Date.Format("2006-01-02"),
		Weekday:         int(s.Weekday),
		StartMinute:     s.StartMinute,
		EndMinute:       s.EndMinute,
		DurationMinutes: s.DurationMinutes,
		Booked:          s.Booked,
		AppointmentID:   s.AppointmentID,
		MeetingLink:     s.MeetingLink,
	}
}

type SlotPageResponse struct {
	Data        []SlotResponse `json:"data"`
	CurrentPage int            `json:"current_page"`
	LastPage    int            `json:"last_page"`
	Total       int64          `json:"total"`
}

type DeleteMonthResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

type MeetingLinkRequest struct {
	MeetingLink string `json:"meeting_link"`
}

type BookAppointmentRequest struct {
	SlotID              string `json:"slot_id"`
	PatientID           string `json:"patient_id"`
	GlobalSessionNumber int    `json:"global_session_number"`
}

type AppointmentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	TherapistID           uuid.UUID  `json:"therapist_id"`
	SlotID                uuid.UUID  `json:"slot_id"`
	Status                string     `json:"status"`
	GlobalSessionNumber   int        `json:"global_session_number"`
	InterventionNumber    int        `json:"intervention_number"`
	SessionInIntervention int        `json:"session_in_intervention"`
	NextAppointmentID     *uuid.UUID `json:"next_appointment_id,omitempty"`
	Finalized             bool       `json:"finalized"`
	Derived               bool       `json:"derived"`
	StatusReason          *string    `json:"status_reason,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                    a.ID,
		PatientID:             a.PatientID,
		TherapistID:           a.TherapistID,
		SlotID:                a.SlotID,
		Status:                string(a.Status),
		GlobalSessionNumber:   a.GlobalSession,
		InterventionNumber:    a.InterventionNumber(),
		SessionInIntervention: a.SessionInIntervention(),
		NextAppointmentID:     a.NextAppointmentID,
		Finalized:             a.Finalized,
		Derived:               a.Derived,
		StatusReason:          a.StatusReason,
		CreatedAt:             a.CreatedAt,
	}
}

// AppointmentRowResponse is one protocol listing row, hydrated with
// slot and patient.
type AppointmentRowResponse struct {
	AppointmentResponse
	PatientName string        `json:"patient_name,omitempty"`
	Slot        *SlotResponse `json:"slot,omitempty"`
	HasNext     bool          `json:"has_next"`
}

func toAppointmentRow(d scheduling.AppointmentDetail) AppointmentRowResponse {
	row := AppointmentRowResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		HasNext:             d.NextAppointmentID != nil,
	}
	if d.Patient != nil {
		row.PatientName = d.Patient.Name
	}
	if d.Slot != nil {
		slot := toSlotResponse(*d.Slot)
		row.Slot = &slot
	}
	return row
}

type AppointmentPageResponse struct {
	Data        []AppointmentRowResponse `json:"data"`
	CurrentPage int                      `json:"current_page"`
	LastPage    int                      `json:"last_page"`
	Total       int64                    `json:"total"`
}

type StateActionRequest struct {
	Reason   string  `json:"reason"`
	Evidence *string `json:"evidence,omitempty"`
}

type ScheduleActionRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

// ActionResponse is the uniform result shape for mutating protocol
// actions.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type CandidateSlotsResponse struct {
	Data []SlotResponse `json:"data"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
