package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saludplena/therapy-scheduling/internal/scheduling"
)

func generateSlotsHandler(gen *scheduling.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		therapistID, err := uuid.Parse(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}

		from, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_from", "date_from must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", req.DateTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_to", "date_to must be YYYY-MM-DD")
			return
		}

		windows := make([]scheduling.Window, 0, len(req.Windows))
		for _, win := range req.Windows {
			windows = append(windows, scheduling.Window{
				Weekday:     time.Weekday(win.Weekday),
				StartMinute: win.StartMinute,
				EndMinute:   win.EndMinute,
			})
		}

		created, err := gen.Generate(r.Context(), scheduling.GenerateRequest{
			TherapistID:     therapistID,
			DateFrom:        from,
			DateTo:          to,
			DurationMinutes: req.DurationMinutes,
			Windows:         windows,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, GenerateSlotsResponse{CreatedCount: created})
	}
}

func listSlotsHandler(inv *scheduling.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := slotFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		page := queryInt(r, "page", 1)
		perPage := queryInt(r, "per_page", 20)

		result, err := inv.ListSlots(r.Context(), f, page, perPage)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := SlotPageResponse{
			Data:        make([]SlotResponse, 0, len(result.Data)),
			CurrentPage: result.CurrentPage,
			LastPage:    result.LastPage,
			Total:       result.Total,
		}
		for _, s := range result.Data {
			resp.Data = append(resp.Data, toSlotResponse(s))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteSlotHandler(inv *scheduling.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := inv.DeleteSlot(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteMonthSlotsHandler(inv *scheduling.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, err := uuid.Parse(r.URL.Query().Get("therapist_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}

		year := queryInt(r, "year", 0)
		month := queryInt(r, "month", 0)
		if year == 0 {
			writeError(w, http.StatusBadRequest, "invalid_year", "year is required")
			return
		}

		deleted, err := inv.DeleteMonthSlots(r.Context(), therapistID, year, time.Month(month))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteMonthResponse{DeletedCount: deleted})
	}
}

func setMeetingLinkHandler(inv *scheduling.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req MeetingLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.MeetingLink) == "" {
			writeError(w, http.StatusBadRequest, "invalid_meeting_link", "meeting_link is required")
			return
		}

		if err := inv.SetMeetingLink(r.Context(), id, req.MeetingLink); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "meeting link updated"})
	}
}

func monthCalendarHandler(cal *scheduling.Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year := queryInt(r, "year", time.Now().UTC().Year())
		month := queryInt(r, "month", int(time.Now().UTC().Month()))

		var therapistID *uuid.UUID
		if raw := r.URL.Query().Get("therapist_id"); raw != "" && raw != "all" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID or \"all\"")
				return
			}
			therapistID = &id
		}

		calendar, err := cal.MonthCalendar(r.Context(), year, time.Month(month), therapistID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, calendar)
	}
}

func slotFilterFromQuery(r *http.Request) (scheduling.SlotFilter, error) {
	var f scheduling.SlotFilter
	q := r.URL.Query()

	if raw := q.Get("therapist_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, err
		}
		f.TherapistID = &id
	}
	if raw := q.Get("weekday"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, err
		}
		wd := time.Weekday(n)
		f.Weekday = &wd
	}
	if raw := q.Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, err
		}
		f.Duration = &n
	}
	if raw := q.Get("booked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, err
		}
		f.Booked = &b
	}
	if raw := q.Get("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, err
		}
		f.DateFrom = &t
	}
	if raw := q.Get("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, err
		}
		f.DateTo = &t
	}
	return f, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
