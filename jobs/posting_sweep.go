package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hermes-erp/hermes/internal/jobs"
)

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskReaper looks up and removes tasks by ID; *asynq.Inspector satisfies it.
type TaskReaper interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// PostingSweepJob enqueues a retry for every unposted document of every
// source.
type PostingSweepJob struct {
	Sources  Sources
	Enqueuer Enqueuer
	Reaper   TaskReaper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPostingSweepJob wires the sweep handler. reaper may be nil, in which
// case a document whose retry task was archived is not queued again.
func NewPostingSweepJob(sources Sources, enqueuer Enqueuer, reaper TaskReaper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostingSweepJob {
	return &PostingSweepJob{Sources: sources, Enqueuer: enqueuer, Reaper: reaper, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep. A failing module does not stop the others; the
// first error is returned once every module was visited.
func (j *PostingSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Enqueuer == nil {
		return errors.New("posting sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskPostingSweep)
	var firstErr error
	total := 0
	for _, module := range j.Sources.Modules() {
		n, err := j.sweep(ctx, j.Sources[module])
		total += n
		if err != nil {
			j.logger().Error("sweep module", slog.String("module", module), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	j.logger().Info("posting sweep completed", slog.Int("enqueued", total))
	return tracker.End(firstErr)
}

func (j *PostingSweepJob) sweep(ctx context.Context, src PostingSource) (int, error) {
	ids, err := src.ListUnposted(ctx)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, id := range ids {
		queued, err := EnqueueRetry(ctx, j.Enqueuer, j.Reaper, PostingRetryPayload{Module: src.Module, DocumentID: id})
		if err != nil {
			return enqueued, err
		}
		j.metrics().Enqueued(src.Module, queued)
		if queued {
			enqueued++
		}
	}
	return enqueued, nil
}

// EnqueueRetry submits a retry task. It reports false without error when the
// same document is already waiting in the queue. A task left behind in the
// archived or completed state still holds the document's task ID; when reaper
// is set that task is deleted and the retry enqueued again.
func EnqueueRetry(ctx context.Context, enqueuer Enqueuer, reaper TaskReaper, p PostingRetryPayload) (bool, error) {
	task, err := NewPostingRetryTask(p)
	if err != nil {
		return false, err
	}
	_, err = enqueuer.EnqueueContext(ctx, task)
	if err == nil {
		return true, nil
	}
	if !isDuplicate(err) {
		return false, err
	}
	if reaper == nil {
		return false, nil
	}
	reaped, err := reapFinished(reaper, RetryTaskID(p))
	if err != nil || !reaped {
		return false, err
	}
	if _, err := enqueuer.EnqueueContext(ctx, task); err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}

// reapFinished deletes the task with id when it is archived or completed.
// A task that vanished between the conflict and the lookup counts as reaped.
func reapFinished(reaper TaskReaper, id string) (bool, error) {
	info, err := reaper.GetTaskInfo(QueuePostings, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect retry task %s: %w", id, err)
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false, nil
	}
	if err := reaper.DeleteTask(QueuePostings, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete retry task %s: %w", id, err)
	}
	return true, nil
}

func (j *PostingSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostingSweep))
	}
	return slog.Default().With(slog.String("job", TaskPostingSweep))
}

func (j *PostingSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
