package scheduler

import (
	"context"
	"fmt"

	"whatsapp_portal_backend/internal/conversations/service"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server        *asynq.Server
	mux           *asynq.ServeMux
	conversations *service.Service
	log           *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, conversations *service.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		mux:           mux,
		conversations: conversations,
		log:           log,
	}

	mux.HandleFunc(TaskReopenSweep, w.handleReopenSweep)

	return w, nil
}

func (w *Worker) handleReopenSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReopenSweepPayload(task)
	if err != nil {
		return err
	}

	actorID := payload.ActorID
	if actorID == "" {
		actorID = SystemActorID
	}

	report, err := w.conversations.SweepReopen(ctx, actorID)
	if err != nil {
		w.log.Error("reopen sweep failed", "actor_id", actorID, "error", err)
		return err
	}

	w.log.Info("reopen sweep finished",
		"actor_id", actorID,
		"checked", report.Checked,
		"reopened", report.ReopenedCount,
		"skipped_recent", report.SkippedRecent,
		"skipped_window_open", report.SkippedWindowOpen,
		"errors", len(report.Errors),
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
