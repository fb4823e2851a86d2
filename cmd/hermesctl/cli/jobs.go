package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/hermes-erp/hermes/jobs"
)

// QueueLister extends the queue inspector with scheduled task listing;
// *asynq.Inspector satisfies it.
type QueueLister interface {
	jobs.QueueInspector
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for asynq jobs.
type JobsCLI struct {
	client    jobs.Enqueuer
	inspector QueueLister
	sources   []string
}

// NewJobsCLI builds the helpers. modules lists the posting modules accepted by
// RetryPosting.
func NewJobsCLI(client jobs.Enqueuer, inspector QueueLister, modules []string) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector, sources: modules}
}

// Trigger enqueues a periodic job by task name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	switch name {
	case jobs.TaskPostingSweep, "sweep":
		task = jobs.NewPostingSweepTask()
	case jobs.TaskLedgerIntegrity, "integrity":
		task = jobs.NewLedgerIntegrityTask()
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// RetryPosting enqueues a posting retry for one document. It reports false
// when a retry for the same document is already queued.
func (c *JobsCLI) RetryPosting(ctx context.Context, module string, documentID int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, errors.New("jobs cli: client not configured")
	}
	known := false
	for _, m := range c.sources {
		if m == module {
			known = true
			break
		}
	}
	if !known {
		return false, fmt.Errorf("%w %q", jobs.ErrUnknownModule, module)
	}
	var reaper jobs.TaskReaper
	if c.inspector != nil {
		reaper = c.inspector
	}
	return jobs.EnqueueRetry(ctx, c.client, reaper, jobs.PostingRetryPayload{Module: module, DocumentID: documentID})
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the counters of every queue the worker serves.
func (c *JobsCLI) InspectQueue(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	infos, err := jobs.InspectQueues(c.inspector)
	if err != nil {
		return nil, err
	}
	out := make([]QueueStats, 0, len(infos))
	for _, info := range infos {
		out = append(out, QueueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
