package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgDB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db pgDB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB allows injecting a mock database for tests.
func NewPgRepositoryWithDB(db pgDB) *PgRepository {
	return &PgRepository{db: db}
}

const slotCols = `id, therapist_id, slot_date, weekday, start_minute, end_minute, duration_minutes, booked, appointment_id, meeting_link, created_at, updated_at`

const appointmentCols = `id, patient_id, therapist_id, slot_id, status, global_session, next_appointment_id, finalized, derived, status_reason, evidence_link, created_at, updated_at`

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var weekday int

	err := row.Scan(
		&s.ID,
		&s.TherapistID,
		&s.Date,
		&weekday,
		&s.StartMinute,
		&s.EndMinute,
		&s.DurationMinutes,
		&s.Booked,
		&s.AppointmentID,
		&s.MeetingLink,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Weekday = time.Weekday(weekday)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.TherapistID,
		&a.SlotID,
		&a.Status,
		&a.GlobalSession,
		&a.NextAppointmentID,
		&a.Finalized,
		&a.Derived,
		&a.StatusReason,
		&a.EvidenceLink,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	var t Therapist
	err := r.db.QueryRow(ctx, `
		SELECT id, name
		FROM therapists
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.db.QueryRow(ctx, `
		SELECT id, name
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) SlotsInRange(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotCols+`
		FROM slots
		WHERE therapist_id = $1
		  AND slot_date >= $2
		  AND slot_date <= $3
		ORDER BY slot_date, start_minute
	`, therapistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert slots: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, therapist_id, slot_date, weekday, start_minute, end_minute, duration_minutes, booked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false, now(), now())
		`, s.ID, s.TherapistID, s.Date, int(s.Weekday), s.StartMinute, s.EndMinute, s.DurationMinutes)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func slotFilterClause(f SlotFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}

	if f.TherapistID != nil {
		add(" AND therapist_id = $%d", *f.TherapistID)
	}
	if f.Weekday != nil {
		add(" AND weekday = $%d", int(*f.Weekday))
	}
	if f.Duration != nil {
		add(" AND duration_minutes = $%d", *f.Duration)
	}
	if f.Booked != nil {
		add(" AND booked = $%d", *f.Booked)
	}
	if f.DateFrom != nil {
		add(" AND slot_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add(" AND slot_date <= $%d", *f.DateTo)
	}

	return where, args
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter, limit, offset int) ([]Slot, int64, error) {
	where, args := slotFilterClause(f)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM slots`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}

	pageArgs := append(args, limit, offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+slotCols+` FROM slots`+where+
			fmt.Sprintf(` ORDER BY slot_date, start_minute LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	slots, err := collectSlots(rows)
	if err != nil {
		return nil, 0, err
	}
	return slots, total, nil
}

func (r *PgRepository) DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND booked = false
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotBooked
	}
	return nil
}

func (r *PgRepository) DeleteUnbookedSlots(ctx context.Context, therapistID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE therapist_id = $1
		  AND slot_date >= $2
		  AND slot_date <= $3
		  AND booked = false
	`, therapistID, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) SetMeetingLink(ctx context.Context, slotID uuid.UUID, link string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET meeting_link = $2,
		    updated_at = now()
		WHERE id = $1
		  AND booked = true
	`, slotID, link)
	if err != nil {
		return fmt.Errorf("set meeting link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotNotBooked
	}
	return nil
}

func (r *PgRepository) OpenSlots(ctx context.Context, therapistID uuid.UUID, required int, from time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotCols+`
		FROM slots
		WHERE therapist_id = $1
		  AND booked = false
		  AND slot_date >= $2
		  AND abs((end_minute - start_minute) - $3) <= 1
		ORDER BY slot_date, start_minute
	`, therapistID, from, required)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) CalendarSlots(ctx context.Context, from, to time.Time, therapistID *uuid.UUID) ([]CalendarSlot, error) {
	q := `
		SELECT s.` + slotColsPrefixed() + `, p.name
		FROM slots s
		LEFT JOIN appointments a ON a.id = s.appointment_id
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE s.slot_date >= $1
		  AND s.slot_date <= $2`
	args := []any{from, to}
	if therapistID != nil {
		q += ` AND s.therapist_id = $3`
		args = append(args, *therapistID)
	}
	q += ` ORDER BY s.slot_date, s.start_minute`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CalendarSlot
	for rows.Next() {
		var cs CalendarSlot
		var weekday int
		err := rows.Scan(
			&cs.ID,
			&cs.TherapistID,
			&cs.Date,
			&weekday,
			&cs.StartMinute,
			&cs.EndMinute,
			&cs.DurationMinutes,
			&cs.Booked,
			&cs.AppointmentID,
			&cs.MeetingLink,
			&cs.CreatedAt,
			&cs.UpdatedAt,
			&cs.PatientName,
		)
		if err != nil {
			return nil, err
		}
		cs.Weekday = time.Weekday(weekday)
		result = append(result, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// slotCols with the "s." alias, minus the leading alias the caller
// already printed.
func slotColsPrefixed() string {
	return `id, s.therapist_id, s.slot_date, s.weekday, s.start_minute, s.end_minute, s.duration_minutes, s.booked, s.appointment_id, s.meeting_link, s.created_at, s.updated_at`
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// BookSlot is the single writer of the booked relationship. The slot
// CAS guarantees one winner even without the advisory Redis lock.
func (r *PgRepository) BookSlot(ctx context.Context, p BookSlotParams) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin book slot: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND booked = false
	`, p.SlotID)
	if err != nil {
		return nil, fmt.Errorf("mark slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, p.SlotID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check slot: %w", err)
		}
		if !exists {
			return nil, ErrSlotNotFound
		}
		return nil, ErrSlotAlreadyBooked
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, therapist_id, slot_id, status, global_session, finalized, derived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, false, false, now(), now())
		RETURNING `+appointmentCols+`
	`, id, p.PatientID, p.TherapistID, p.SlotID, p.GlobalSession)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET appointment_id = $2
		WHERE id = $1
	`, p.SlotID, appt.ID); err != nil {
		return nil, fmt.Errorf("link slot to appointment: %w", err)
	}

	if p.SourceAppointmentID != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET next_appointment_id = $2,
			    updated_at = now()
			WHERE id = $1
			  AND next_appointment_id IS NULL
			  AND finalized = false
			  AND derived = false
		`, *p.SourceAppointmentID, appt.ID)
		if err != nil {
			return nil, fmt.Errorf("link source appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrSuccessorExists
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit book slot: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason, evidence *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    status_reason = COALESCE($4, status_reason),
		    evidence_link = COALESCE($5, evidence_link),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols+`
	`, id, to, from, reason, evidence)

	return scanAppointment(row)
}

func (r *PgRepository) SetClosure(ctx context.Context, id uuid.UUID, flag ClosureFlag) (*Appointment, error) {
	col := "finalized"
	if flag == ClosureDerived {
		col = "derived"
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET `+col+` = true,
		    updated_at = now()
		WHERE id = $1
		  AND next_appointment_id IS NULL
		RETURNING `+appointmentCols+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Distinguish a missing row from a superseded one.
			if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrSuccessorExists
		}
		return nil, err
	}
	return appt, nil
}

func protocolFilterClause(f ProtocolFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}

	if f.TherapistID != nil {
		add(" AND a.therapist_id = $%d", *f.TherapistID)
	}
	if f.PatientID != nil {
		add(" AND a.patient_id = $%d", *f.PatientID)
	}
	if f.Year != 0 {
		from := time.Date(f.Year, f.Month, 1, 0, 0, 0, 0, time.UTC)
		add(" AND s.slot_date >= $%d", from)
		add(" AND s.slot_date < $%d", from.AddDate(0, 1, 0))
	}
	switch f.State {
	case "":
	case string(ClosureFinalized):
		where += " AND a.finalized = true"
	case string(ClosureDerived):
		where += " AND a.derived = true"
	default:
		add(" AND a.status = $%d", f.State)
	}

	return where, args
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ProtocolFilter, limit, offset int) ([]AppointmentDetail, int64, error) {
	where, args := protocolFilterClause(f)

	joins := `
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		JOIN patients p ON p.id = a.patient_id`

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+joins+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	pageArgs := append(args, limit, offset)
	rows, err := r.db.Query(ctx,
		`SELECT a.`+apptColsPrefixed()+`, s.`+slotColsPrefixed()+`, p.id, p.name`+joins+where+
			fmt.Sprintf(` ORDER BY s.slot_date, s.start_minute LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		var s Slot
		var p Patient
		var weekday int
		err := rows.Scan(
			&d.ID, &d.PatientID, &d.TherapistID, &d.SlotID, &d.Status,
			&d.GlobalSession, &d.NextAppointmentID, &d.Finalized, &d.Derived,
			&d.StatusReason, &d.EvidenceLink, &d.CreatedAt, &d.UpdatedAt,
			&s.ID, &s.TherapistID, &s.Date, &weekday, &s.StartMinute,
			&s.EndMinute, &s.DurationMinutes, &s.Booked, &s.AppointmentID,
			&s.MeetingLink, &s.CreatedAt, &s.UpdatedAt,
			&p.ID, &p.Name,
		)
		if err != nil {
			return nil, 0, err
		}
		s.Weekday = time.Weekday(weekday)
		d.Slot = &s
		d.Patient = &p
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func apptColsPrefixed() string {
	return `id, a.patient_id, a.therapist_id, a.slot_id, a.status, a.global_session, a.next_appointment_id, a.finalized, a.derived, a.status_reason, a.evidence_link, a.created_at, a.updated_at`
}

func (r *PgRepository) ProtocolStats(ctx context.Context, f ProtocolFilter) (*ProtocolStats, error) {
	// Month filtering needs the slot date, so the join is always on.
	cleared := f
	cleared.State = ""
	where, args := protocolFilterClause(cleared)

	var st ProtocolStats
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE a.status = 'pending'),
			COUNT(*) FILTER (WHERE a.status = 'attended'),
			COUNT(*) FILTER (WHERE a.status = 'no_show'),
			COUNT(*) FILTER (WHERE a.status = 'cancelled'),
			COUNT(*) FILTER (WHERE a.finalized),
			COUNT(*) FILTER (WHERE a.derived)
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id`+where, args...).
		Scan(&st.Pending, &st.Attended, &st.NoShow, &st.Cancelled, &st.Finalized, &st.Derived)
	if err != nil {
		return nil, fmt.Errorf("protocol stats: %w", err)
	}
	return &st, nil
}

func (r *PgRepository) FindOverduePending(ctx context.Context, cutoff time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.`+apptColsPrefixed()+`, s.`+slotColsPrefixed()+`, p.id, p.name
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'pending'
		  AND s.slot_date + make_interval(mins => s.start_minute) < $1
		ORDER BY s.slot_date, s.start_minute
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		var s Slot
		var p Patient
		var weekday int
		err := rows.Scan(
			&d.ID, &d.PatientID, &d.TherapistID, &d.SlotID, &d.Status,
			&d.GlobalSession, &d.NextAppointmentID, &d.Finalized, &d.Derived,
			&d.StatusReason, &d.EvidenceLink, &d.CreatedAt, &d.UpdatedAt,
			&s.ID, &s.TherapistID, &s.Date, &weekday, &s.StartMinute,
			&s.EndMinute, &s.DurationMinutes, &s.Booked, &s.AppointmentID,
			&s.MeetingLink, &s.CreatedAt, &s.UpdatedAt,
			&p.ID, &p.Name,
		)
		if err != nil {
			return nil, err
		}
		s.Weekday = time.Weekday(weekday)
		d.Slot = &s
		d.Patient = &p
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
