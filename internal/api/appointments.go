package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saludplena/therapy-scheduling/internal/scheduling"
)

func bookAppointmentHandler(booking *scheduling.Booking) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := booking.Book(r.Context(), slotID, patientID, req.GlobalSessionNumber)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := protocolFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		perPage := queryInt(r, "per_page", 20)
		if perPage <= 0 {
			perPage = 20
		}
		if perPage > 100 {
			perPage = 100
		}

		rows, total, err := protocol.ListAppointments(r.Context(), f, page, perPage)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := AppointmentPageResponse{
			Data:        make([]AppointmentRowResponse, 0, len(rows)),
			CurrentPage: page,
			LastPage:    lastPage(total, perPage),
			Total:       total,
		}
		for _, row := range rows {
			resp.Data = append(resp.Data, toAppointmentRow(row))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func appointmentStatsHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := protocolFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		stats, err := protocol.Stats(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// protocolAction adapts one appointment-scoped service call into a
// handler returning the uniform action shape.
func protocolAction(message string, fn func(ctx context.Context, id uuid.UUID, r *http.Request) (*scheduling.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r.Context(), id, r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ActionResponse{
			Success: true,
			Message: message,
			Data:    toAppointmentResponse(appt),
		})
	}
}

func attendHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return protocolAction("session marked as attended", func(ctx context.Context, id uuid.UUID, _ *http.Request) (*scheduling.Appointment, error) {
		return protocol.MarkAttended(ctx, id)
	})
}

func noShowHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return protocolAction("session marked as no-show", func(ctx context.Context, id uuid.UUID, r *http.Request) (*scheduling.Appointment, error) {
		req, err := decodeStateAction(r)
		if err != nil {
			return nil, err
		}
		return protocol.MarkNoShow(ctx, id, req.Reason, req.Evidence)
	})
}

func cancelHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return protocolAction("session cancelled", func(ctx context.Context, id uuid.UUID, r *http.Request) (*scheduling.Appointment, error) {
		req, err := decodeStateAction(r)
		if err != nil {
			return nil, err
		}
		return protocol.Cancel(ctx, id, req.Reason, req.Evidence)
	})
}

func finalizeHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return protocolAction("intervention finalized", func(ctx context.Context, id uuid.UUID, _ *http.Request) (*scheduling.Appointment, error) {
		return protocol.Finalize(ctx, id)
	})
}

func deriveHandler(protocol *scheduling.Protocol) http.HandlerFunc {
	return protocolAction("patient referred", func(ctx context.Context, id uuid.UUID, _ *http.Request) (*scheduling.Appointment, error) {
		return protocol.Derive(ctx, id)
	})
}

func advanceHandler(booking *scheduling.Booking) http.HandlerFunc {
	return protocolAction("next session scheduled", func(ctx context.Context, id uuid.UUID, r *http.Request) (*scheduling.Appointment, error) {
		slotID, err := decodeScheduleAction(r)
		if err != nil {
			return nil, err
		}
		return booking.Advance(ctx, id, slotID)
	})
}

func rescheduleHandler(booking *scheduling.Booking) http.HandlerFunc {
	return protocolAction("session rescheduled", func(ctx context.Context, id uuid.UUID, r *http.Request) (*scheduling.Appointment, error) {
		slotID, err := decodeScheduleAction(r)
		if err != nil {
			return nil, err
		}
		return booking.Reschedule(ctx, id, slotID)
	})
}

func candidateSlotsHandler(booking *scheduling.Booking) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		slots, err := booking.CandidateSlots(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := CandidateSlotsResponse{Data: make([]SlotResponse, 0, len(slots))}
		for _, s := range slots {
			resp.Data = append(resp.Data, toSlotResponse(s))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeStateAction(r *http.Request) (StateActionRequest, error) {
	var req StateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errBadBody
	}
	return req, nil
}

func decodeScheduleAction(r *http.Request) (uuid.UUID, error) {
	var req ScheduleActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return uuid.Nil, errBadBody
	}
	slotID, err := uuid.Parse(req.NewSlotID)
	if err != nil {
		return uuid.Nil, errBadSlotID
	}
	return slotID, nil
}

func protocolFilterFromQuery(r *http.Request) (scheduling.ProtocolFilter, error) {
	var f scheduling.ProtocolFilter
	q := r.URL.Query()

	if raw := q.Get("therapist_id"); raw != "" && raw != "all" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, err
		}
		f.TherapistID = &id
	}
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, err
		}
		f.PatientID = &id
	}
	if year := queryInt(r, "year", 0); year != 0 {
		f.Year = year
		f.Month = time.Month(queryInt(r, "month", 0))
	}
	f.State = q.Get("state")
	return f, nil
}

func lastPage(total int64, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		last = 1
	}
	return last
}
