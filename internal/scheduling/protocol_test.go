package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type protocolFixture struct {
	repo      *memRepo
	protocol  *Protocol
	therapist Therapist
	patient   Patient
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	t.Helper()
	repo := newMemRepo()
	return &protocolFixture{
		repo:      repo,
		protocol:  NewProtocol(repo, nil),
		therapist: repo.addTherapist("Dr. Vega"),
		patient:   repo.addPatient("Ana Morales"),
	}
}

func (f *protocolFixture) pendingAppointment(day, global int) *Appointment {
	slot := f.repo.addSlot(f.therapist.ID, date(2024, 3, day), 480, RequiredDuration(global))
	return f.repo.addAppointment(f.patient.ID, f.therapist.ID, slot.ID, StatusPending, global)
}

func TestResolve_OneWayTransitions(t *testing.T) {
	f := newProtocolFixture(t)

	appt := f.pendingAppointment(4, 1)
	got, err := f.protocol.MarkAttended(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("MarkAttended: %v", err)
	}
	if got.Status != StatusAttended {
		t.Errorf("status = %s, want attended", got.Status)
	}

	// A resolved session cannot be resolved again.
	if _, err := f.protocol.MarkAttended(context.Background(), appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second MarkAttended err = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.protocol.Cancel(context.Background(), appt.ID, "patient request", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel after attend err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkNoShow_RecordsReasonAndEvidence(t *testing.T) {
	f := newProtocolFixture(t)
	appt := f.pendingAppointment(4, 2)

	evidence := "https://files.example/call-log.pdf"
	got, err := f.protocol.MarkNoShow(context.Background(), appt.ID, "did not answer calls", &evidence)
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if got.Status != StatusNoShow {
		t.Errorf("status = %s, want no_show", got.Status)
	}
	if got.StatusReason == nil || *got.StatusReason != "did not answer calls" {
		t.Errorf("reason = %v, want recorded", got.StatusReason)
	}
	if got.EvidenceLink == nil || *got.EvidenceLink != evidence {
		t.Errorf("evidence = %v, want recorded", got.EvidenceLink)
	}

	found := false
	for _, typ := range f.repo.eventTypes() {
		if typ == EventSessionNoShow {
			found = true
		}
	}
	if !found {
		t.Error("no-show event was not logged")
	}
}

func TestResolve_ReasonRequired(t *testing.T) {
	f := newProtocolFixture(t)
	appt := f.pendingAppointment(4, 1)

	if _, err := f.protocol.MarkNoShow(context.Background(), appt.ID, "  ", nil); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("MarkNoShow err = %v, want ErrReasonRequired", err)
	}
	if _, err := f.protocol.Cancel(context.Background(), appt.ID, "", nil); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("Cancel err = %v, want ErrReasonRequired", err)
	}

	got, _ := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	if got.Status != StatusPending {
		t.Errorf("status churned to %s on rejected input", got.Status)
	}
}

func TestFinalizeAndDerive(t *testing.T) {
	f := newProtocolFixture(t)

	appt := f.pendingAppointment(4, 4)
	if _, err := f.protocol.MarkAttended(context.Background(), appt.ID); err != nil {
		t.Fatalf("MarkAttended: %v", err)
	}

	got, err := f.protocol.Finalize(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !got.Finalized {
		t.Error("finalized flag not set")
	}

	other := f.pendingAppointment(5, 2)
	got, err = f.protocol.Derive(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !got.Derived {
		t.Error("derived flag not set")
	}
}

func TestClosure_RefusedOnSupersededAppointment(t *testing.T) {
	f := newProtocolFixture(t)
	appt := f.pendingAppointment(4, 1)
	successor := uuid.New()
	f.repo.appointments[appt.ID].NextAppointmentID = &successor

	if _, err := f.protocol.Finalize(context.Background(), appt.ID); !errors.Is(err, ErrSuccessorExists) {
		t.Errorf("Finalize err = %v, want ErrSuccessorExists", err)
	}
	if _, err := f.protocol.Derive(context.Background(), appt.ID); !errors.Is(err, ErrSuccessorExists) {
		t.Errorf("Derive err = %v, want ErrSuccessorExists", err)
	}
}

func TestListAppointments_FiltersAndPagination(t *testing.T) {
	f := newProtocolFixture(t)

	for day := 1; day <= 5; day++ {
		f.pendingAppointment(day, day)
	}
	attended := f.pendingAppointment(6, 6)
	f.repo.appointments[attended.ID].Status = StatusAttended

	rows, total, err := f.protocol.ListAppointments(context.Background(), ProtocolFilter{
		TherapistID: &f.therapist.ID,
	}, 1, 4)
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
	if len(rows) != 4 {
		t.Errorf("page size = %d, want 4", len(rows))
	}

	rows, _, err = f.protocol.ListAppointments(context.Background(), ProtocolFilter{State: "attended"}, 1, 20)
	if err != nil {
		t.Fatalf("ListAppointments(attended): %v", err)
	}
	if len(rows) != 1 || rows[0].ID != attended.ID {
		t.Errorf("attended filter returned %d rows", len(rows))
	}

	// Derived columns ride along on each row.
	if got := rows[0].InterventionNumber(); got != 2 {
		t.Errorf("intervention = %d, want 2", got)
	}
	if got := rows[0].SessionInIntervention(); got != 2 {
		t.Errorf("session in intervention = %d, want 2", got)
	}

	if _, _, err := f.protocol.ListAppointments(context.Background(), ProtocolFilter{State: "archived"}, 1, 20); !errors.Is(err, ErrInvalidStateFilter) {
		t.Errorf("bad state filter err = %v, want ErrInvalidStateFilter", err)
	}
}

func TestProtocolStats(t *testing.T) {
	f := newProtocolFixture(t)

	a1 := f.pendingAppointment(1, 1)
	a2 := f.pendingAppointment(2, 2)
	a3 := f.pendingAppointment(3, 3)
	f.pendingAppointment(4, 4)

	f.repo.appointments[a1.ID].Status = StatusAttended
	f.repo.appointments[a1.ID].Finalized = true
	f.repo.appointments[a2.ID].Status = StatusNoShow
	f.repo.appointments[a3.ID].Status = StatusCancelled
	f.repo.appointments[a3.ID].Derived = true

	st, err := f.protocol.Stats(context.Background(), ProtocolFilter{TherapistID: &f.therapist.ID})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	want := ProtocolStats{Pending: 1, Attended: 1, NoShow: 1, Cancelled: 1, Finalized: 1, Derived: 1}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	st, err = f.protocol.Stats(context.Background(), ProtocolFilter{Year: 2024, Month: time.April})
	if err != nil {
		t.Fatalf("Stats(month): %v", err)
	}
	if st.Pending != 0 || st.Attended != 0 {
		t.Errorf("april stats = %+v, want empty", *st)
	}
}

func TestSweepOverduePending(t *testing.T) {
	f := newProtocolFixture(t)

	// Slot far in the past, still pending.
	stale := f.repo.addSlot(f.therapist.ID, date(2020, 1, 6), 480, 60)
	f.repo.addAppointment(f.patient.ID, f.therapist.ID, stale.ID, StatusPending, 1)

	// Future slot stays out of the sweep.
	fresh := f.repo.addSlot(f.therapist.ID, date(2999, 1, 6), 480, 60)
	f.repo.addAppointment(f.patient.ID, f.therapist.ID, fresh.ID, StatusPending, 1)

	n, err := f.protocol.SweepOverduePending(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepOverduePending: %v", err)
	}
	if n != 1 {
		t.Errorf("overdue = %d, want 1", n)
	}

	// The sweep records, it does not resolve.
	for _, a := range f.repo.appointments {
		if a.Status != StatusPending {
			t.Errorf("sweep changed a status to %s", a.Status)
		}
	}

	found := false
	for _, typ := range f.repo.eventTypes() {
		if typ == EventAppointmentOverdue {
			found = true
		}
	}
	if !found {
		t.Error("overdue event was not logged")
	}
}
