package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

// Worker runs the task handlers and, when cron entries are configured, the
// scheduler that feeds them.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Concurrency int
	Logger      *slog.Logger
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// Queues maps every queue the worker serves to its priority weight.
func Queues() map[string]int {
	return map[string]int{
		QueuePostings: 3,
		QueueDefault:  1,
	}
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       Queues(),
		ErrorHandler: failureLogger(logger),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("register %s (%s): %w", entry.Task.Type(), entry.Spec, err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// failureLogger reports every failed attempt with its retry position. The
// last attempt is logged at ERROR since asynq archives the task afterwards.
func failureLogger(logger *slog.Logger) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		attrs := []any{
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		}
		if errors.Is(err, asynq.SkipRetry) || retried >= maxRetry {
			logger.Error("task failed permanently", attrs...)
			return
		}
		logger.Warn("task failed", attrs...)
	}
}

// Run processes tasks until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	w.logger.Info("worker started", slog.Any("queues", Queues()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	var err error
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		err = ctx.Err()
	case err = <-errCh:
	}
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	return err
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	if redisOpts.Addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueContext implements Enqueuer.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reports queue depth and clears finished retry tasks;
// *asynq.Inspector satisfies it.
type QueueInspector interface {
	TaskReaper
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// InspectQueues returns the counters of every queue the worker serves, in
// priority order. Redis only knows a queue once a task was enqueued on it, so
// unknown queues come back with zero counters.
func InspectQueues(inspector QueueInspector) ([]asynq.QueueInfo, error) {
	known, err := inspector.Queues()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(known))
	for _, name := range known {
		seen[name] = true
	}
	names := []string{QueuePostings, QueueDefault}
	out := make([]asynq.QueueInfo, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			out = append(out, asynq.QueueInfo{Queue: name})
			continue
		}
		info, err := inspector.GetQueueInfo(name)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", name, err)
		}
		out = append(out, *info)
	}
	return out, nil
}

// Handler exposes HTTP endpoints for job observability and the posting
// retry trigger.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	sources   Sources
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, sources Sources, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, sources: sources, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// MountAdminRoutes attaches the administrative posting routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/postings/retry", h.retryPosting)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Retry   int    `json:"retry"`
}

// health reports pending and retrying counts per queue.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := []queueHealth{{Queue: QueuePostings}, {Queue: QueueDefault}}
	if h.inspector != nil {
		infos, err := InspectQueues(h.inspector)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		out = out[:0]
		for _, info := range infos {
			out = append(out, queueHealth{Queue: info.Queue, Pending: info.Pending, Retry: info.Retry})
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}

type retryRequest struct {
	Module     string `json:"module" validate:"required"`
	DocumentID int64  `json:"document_id" validate:"required,gt=0"`
}

func (h *Handler) retryPosting(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, ok := h.sources[req.Module]; !ok {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "module must be one of "+strings.Join(h.sources.Modules(), ", "))
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	payload := PostingRetryPayload{Module: req.Module, DocumentID: req.DocumentID}
	var reaper TaskReaper
	if h.inspector != nil {
		reaper = h.inspector
	}
	queued, err := EnqueueRetry(r.Context(), h.enqueuer, reaper, payload)
	if err != nil {
		h.logger.Error("enqueue posting retry", slog.String("module", req.Module), slog.Int64("document_id", req.DocumentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"task_id": RetryTaskID(payload),
		"queued":  queued,
	})
}
