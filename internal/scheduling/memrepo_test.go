package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for service tests. BookSlot
// holds the mutex across the whole check-and-book, mirroring the
// transactional guarantee of the Postgres implementation.
type memRepo struct {
	mu           sync.Mutex
	therapists   map[uuid.UUID]Therapist
	patients     map[uuid.UUID]Patient
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		therapists:   make(map[uuid.UUID]Therapist),
		patients:     make(map[uuid.UUID]Patient),
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// test seeding helpers

func (m *memRepo) addTherapist(name string) Therapist {
	t := Therapist{ID: uuid.New(), Name: name}
	m.therapists[t.ID] = t
	return t
}

func (m *memRepo) addPatient(name string) Patient {
	p := Patient{ID: uuid.New(), Name: name}
	m.patients[p.ID] = p
	return p
}

func (m *memRepo) addSlot(therapistID uuid.UUID, date time.Time, startMinute, duration int) *Slot {
	s := &Slot{
		ID:              uuid.New(),
		TherapistID:     therapistID,
		Date:            date,
		Weekday:         date.Weekday(),
		StartMinute:     startMinute,
		EndMinute:       startMinute + duration,
		DurationMinutes: duration,
	}
	m.slots[s.ID] = s
	return s
}

func (m *memRepo) addAppointment(patientID, therapistID, slotID uuid.UUID, status AppointmentStatus, global int) *Appointment {
	a := &Appointment{
		ID:            uuid.New(),
		PatientID:     patientID,
		TherapistID:   therapistID,
		SlotID:        slotID,
		Status:        status,
		GlobalSession: global,
	}
	m.appointments[a.ID] = a
	if s, ok := m.slots[slotID]; ok {
		s.Booked = true
		s.AppointmentID = &a.ID
	}
	return a
}

// Repository implementation

func (m *memRepo) GetTherapistByID(_ context.Context, id uuid.UUID) (*Therapist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	return &t, nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) SlotsInRange(_ context.Context, therapistID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.TherapistID == therapistID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *memRepo) InsertSlots(_ context.Context, slots []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range slots {
		cp := slots[i]
		m.slots[cp.ID] = &cp
	}
	return nil
}

func (m *memRepo) ListSlots(_ context.Context, f SlotFilter, limit, offset int) ([]Slot, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Slot
	for _, s := range m.slots {
		if f.TherapistID != nil && s.TherapistID != *f.TherapistID {
			continue
		}
		if f.Weekday != nil && s.Weekday != *f.Weekday {
			continue
		}
		if f.Duration != nil && s.DurationMinutes != *f.Duration {
			continue
		}
		if f.Booked != nil && s.Booked != *f.Booked {
			continue
		}
		if f.DateFrom != nil && s.Date.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && s.Date.After(*f.DateTo) {
			continue
		}
		all = append(all, *s)
	}
	sortSlots(all)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memRepo) DeleteUnbookedSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Booked {
		return ErrSlotBooked
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) DeleteUnbookedSlots(_ context.Context, therapistID uuid.UUID, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.slots {
		if s.TherapistID == therapistID && !s.Booked && !s.Date.Before(from) && !s.Date.After(to) {
			delete(m.slots, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) SetMeetingLink(_ context.Context, slotID uuid.UUID, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if !s.Booked {
		return ErrSlotNotBooked
	}
	s.MeetingLink = &link
	return nil
}

func (m *memRepo) OpenSlots(_ context.Context, therapistID uuid.UUID, required int, from time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.TherapistID != therapistID || s.Booked || s.Date.Before(from) {
			continue
		}
		if !DurationMatches(s.EndMinute-s.StartMinute, required) {
			continue
		}
		out = append(out, *s)
	}
	sortSlots(out)
	return out, nil
}

func (m *memRepo) CalendarSlots(_ context.Context, from, to time.Time, therapistID *uuid.UUID) ([]CalendarSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CalendarSlot
	for _, s := range m.slots {
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		if therapistID != nil && s.TherapistID != *therapistID {
			continue
		}
		cs := CalendarSlot{Slot: *s}
		if s.AppointmentID != nil {
			if a, ok := m.appointments[*s.AppointmentID]; ok {
				if p, ok := m.patients[a.PatientID]; ok {
					name := p.Name
					cs.PatientName = &name
				}
			}
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) BookSlot(_ context.Context, p BookSlotParams) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[p.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Booked {
		return nil, ErrSlotAlreadyBooked
	}

	if p.SourceAppointmentID != nil {
		src, ok := m.appointments[*p.SourceAppointmentID]
		if !ok {
			return nil, ErrAppointmentNotFound
		}
		if src.NextAppointmentID != nil || src.Finalized || src.Derived {
			return nil, ErrSuccessorExists
		}
	}

	a := &Appointment{
		ID:            uuid.New(),
		PatientID:     p.PatientID,
		TherapistID:   p.TherapistID,
		SlotID:        p.SlotID,
		Status:        StatusPending,
		GlobalSession: p.GlobalSession,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.appointments[a.ID] = a
	s.Booked = true
	s.AppointmentID = &a.ID

	if p.SourceAppointmentID != nil {
		next := a.ID
		m.appointments[*p.SourceAppointmentID].NextAppointmentID = &next
	}

	cp := *a
	return &cp, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, reason, evidence *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.StatusReason = reason
	}
	if evidence != nil {
		a.EvidenceLink = evidence
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) SetClosure(_ context.Context, id uuid.UUID, flag ClosureFlag) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.NextAppointmentID != nil {
		return nil, ErrSuccessorExists
	}
	if flag == ClosureDerived {
		a.Derived = true
	} else {
		a.Finalized = true
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListAppointments(_ context.Context, f ProtocolFilter, limit, offset int) ([]AppointmentDetail, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []AppointmentDetail
	for _, a := range m.appointments {
		if !m.matchesProtocolFilter(a, f) {
			continue
		}
		all = append(all, m.detailLocked(a))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Slot.Date.Equal(all[j].Slot.Date) {
			return all[i].Slot.Date.Before(all[j].Slot.Date)
		}
		return all[i].Slot.StartMinute < all[j].Slot.StartMinute
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memRepo) matchesProtocolFilter(a *Appointment, f ProtocolFilter) bool {
	if f.TherapistID != nil && a.TherapistID != *f.TherapistID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Year != 0 {
		s, ok := m.slots[a.SlotID]
		if !ok || s.Date.Year() != f.Year || s.Date.Month() != f.Month {
			return false
		}
	}
	switch f.State {
	case "":
	case string(ClosureFinalized):
		if !a.Finalized {
			return false
		}
	case string(ClosureDerived):
		if !a.Derived {
			return false
		}
	default:
		if !strings.EqualFold(string(a.Status), f.State) {
			return false
		}
	}
	return true
}

func (m *memRepo) detailLocked(a *Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: *a}
	if s, ok := m.slots[a.SlotID]; ok {
		cp := *s
		d.Slot = &cp
	}
	if p, ok := m.patients[a.PatientID]; ok {
		cp := p
		d.Patient = &cp
	}
	return d
}

func (m *memRepo) ProtocolStats(_ context.Context, f ProtocolFilter) (*ProtocolStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := f
	base.State = ""
	var st ProtocolStats
	for _, a := range m.appointments {
		if !m.matchesProtocolFilter(a, base) {
			continue
		}
		switch a.Status {
		case StatusPending:
			st.Pending++
		case StatusAttended:
			st.Attended++
		case StatusNoShow:
			st.NoShow++
		case StatusCancelled:
			st.Cancelled++
		}
		if a.Finalized {
			st.Finalized++
		}
		if a.Derived {
			st.Derived++
		}
	}
	return &st, nil
}

func (m *memRepo) FindOverduePending(_ context.Context, cutoff time.Time) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appointments {
		if a.Status != StatusPending {
			continue
		}
		s, ok := m.slots[a.SlotID]
		if !ok || !s.StartsAt().Before(cutoff) {
			continue
		}
		out = append(out, m.detailLocked(a))
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].StartMinute < slots[j].StartMinute
	})
}

// noopLocker runs the critical section inline; exclusivity in these
// tests comes from the repository's own check-and-book.
type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
