package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saludplena/therapy-scheduling/internal/db"
	"github.com/saludplena/therapy-scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	therapistIDs, err := seedTherapists(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed therapists: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, therapistIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedTherapists(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d therapists", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()

		_, err := tx.Exec(ctx, `
			INSERT INTO therapists (id, name, created_at)
			VALUES ($1, $2, now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("therapists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, created_at)
			VALUES ($1, $2, now())
		`, id, name)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("patients seeded")
	return nil
}

// seedSlots expands a demo weekly pattern over the next four weeks for
// every therapist: Monday mornings as intakes, Wednesday and Friday
// mornings as follow-ups.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, therapistIDs []uuid.UUID) error {
	log.Printf("seeding slots for %d therapists", len(therapistIDs))

	repo := scheduling.NewPgRepository(pool)
	gen := scheduling.NewGenerator(repo)

	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 27)

	total := 0
	for _, therapistID := range therapistIDs {
		created, err := gen.Generate(ctx, scheduling.GenerateRequest{
			TherapistID:     therapistID,
			DateFrom:        from,
			DateTo:          to,
			DurationMinutes: scheduling.DurationIntake,
			Windows: []scheduling.Window{
				{Weekday: time.Monday, StartMinute: 540, EndMinute: 720},
			},
		})
		if err != nil {
			return err
		}
		total += created

		created, err = gen.Generate(ctx, scheduling.GenerateRequest{
			TherapistID:     therapistID,
			DateFrom:        from,
			DateTo:          to,
			DurationMinutes: scheduling.DurationFollowUp,
			Windows: []scheduling.Window{
				{Weekday: time.Wednesday, StartMinute: 540, EndMinute: 720},
				{Weekday: time.Friday, StartMinute: 540, EndMinute: 660},
			},
		})
		if err != nil {
			return err
		}
		total += created
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
