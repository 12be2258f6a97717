package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp_portal_backend/internal/agents"
	"whatsapp_portal_backend/internal/audit"
	"whatsapp_portal_backend/internal/conversations"
	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/internal/scheduler"
	"whatsapp_portal_backend/internal/twilio"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/db"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env, "interval", cfg.SweepInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	auditModule := audit.New(log)
	auditModule.RegisterHandlers(eventBus)

	val := validator.New()

	provider := twilio.NewClient(cfg, log)
	if !provider.Configured() {
		log.Warn("messaging provider not configured; reopen templates will fail")
	}

	agentsModule := agents.NewModule(pool, cfg, val, log)
	conversationsModule := conversations.NewModule(pool, provider, agentsModule.Service(), eventBus, cfg, val, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	go runSweepTicker(ctx, client, cfg.SweepInterval, log)

	worker, err := scheduler.NewWorker(cfg, conversationsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runSweepTicker enqueues a reopen sweep on every interval tick until the
// context is canceled.
func runSweepTicker(ctx context.Context, client *scheduler.Client, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ScheduleReopenSweep(ctx, scheduler.ReopenSweepPayload{ActorID: scheduler.SystemActorID}); err != nil {
				log.Error("failed to enqueue reopen sweep", "error", err)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
