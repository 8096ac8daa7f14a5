package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/saludplena/therapy-scheduling/internal/scheduling"
	"github.com/saludplena/therapy-scheduling/pkg/logging"
)

type RouterConfig struct {
	Generator *scheduling.Generator
	Inventory *scheduling.Inventory
	Booking   *scheduling.Booking
	Protocol  *scheduling.Protocol
	Calendar  *scheduling.Calendar
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *logging.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log.Component("http")))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot inventory endpoints
	r.Post("/slots/generate", generateSlotsHandler(cfg.Generator))
	r.Get("/slots", listSlotsHandler(cfg.Inventory))
	r.Delete("/slots", deleteMonthSlotsHandler(cfg.Inventory))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Inventory))
	r.Put("/slots/{id}/meeting-link", setMeetingLinkHandler(cfg.Inventory))

	// Calendar endpoints
	r.Get("/calendar", monthCalendarHandler(cfg.Calendar))

	// Appointment endpoints
	r.Post("/appointments/book", bookAppointmentHandler(cfg.Booking))
	r.Get("/appointments", listAppointmentsHandler(cfg.Protocol))
	r.Get("/appointments/stats", appointmentStatsHandler(cfg.Protocol))
	r.Post("/appointments/{id}/attend", attendHandler(cfg.Protocol))
	r.Post("/appointments/{id}/no-show", noShowHandler(cfg.Protocol))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Protocol))
	r.Post("/appointments/{id}/finalize", finalizeHandler(cfg.Protocol))
	r.Post("/appointments/{id}/derive", deriveHandler(cfg.Protocol))
	r.Get("/appointments/{id}/candidates", candidateSlotsHandler(cfg.Booking))
	r.Post("/appointments/{id}/advance", advanceHandler(cfg.Booking))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Booking))

	return r
}
