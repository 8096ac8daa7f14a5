package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saludplena/therapy-scheduling/internal/config"
	"github.com/saludplena/therapy-scheduling/internal/db"
	"github.com/saludplena/therapy-scheduling/internal/scheduling"
	"github.com/saludplena/therapy-scheduling/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel).Component("expiry-worker")
	log.Info("expiry-worker starting up", "env", cfg.Env, "interval", cfg.SweepInterval.String(), "grace", cfg.OverdueGrace.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := scheduling.NewPgRepository(pgPool)
	protocol := scheduling.NewProtocol(repo, log)

	// Run once at startup
	runOnce(rootCtx, protocol, cfg.OverdueGrace, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, protocol, cfg.OverdueGrace, log)
		}
	}
}

func runOnce(ctx context.Context, protocol *scheduling.Protocol, grace time.Duration, log *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	overdue, err := protocol.SweepOverduePending(runCtx, grace)
	if err != nil {
		log.Error("sweep run error", "error", err)
		return
	}
	log.Info("sweep run complete", "overdue", overdue, "duration", time.Since(start).String())
}
