package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault carries cron and maintenance tasks.
	QueueDefault = "default"
	// QueuePostings carries posting retries. Workers drain it ahead of
	// QueueDefault.
	QueuePostings = "postings"
	// TaskPostingRetry re-posts one unposted document.
	TaskPostingRetry = "posting:retry"
	// TaskPostingSweep enqueues a retry for every unposted document.
	TaskPostingSweep = "posting:sweep"
	// TaskLedgerIntegrity looks for stored entries that no longer balance.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup drops expired request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Modules whose documents carry a posting status.
const (
	ModuleSales       = "sales"
	ModuleProcurement = "procurement"
	ModulePayroll     = "payroll"
)

var taskNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("hermes.jobs"))

// PostingRetryPayload identifies the document to re-post.
type PostingRetryPayload struct {
	Module     string `json:"module"`
	DocumentID int64  `json:"document_id"`
}

// RetryTaskID is stable per document so a document waiting in the queue is
// never enqueued twice.
func RetryTaskID(p PostingRetryPayload) string {
	return uuid.NewSHA1(taskNamespace, []byte(fmt.Sprintf("%s:%d", p.Module, p.DocumentID))).String()
}

// NewPostingRetryTask builds a retry task for one document.
func NewPostingRetryTask(p PostingRetryPayload) (*asynq.Task, error) {
	if p.Module == "" || p.DocumentID <= 0 {
		return nil, fmt.Errorf("posting retry: module and document id required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostingRetry, body,
		asynq.TaskID(RetryTaskID(p)),
		asynq.Queue(QueuePostings),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	), nil
}

// NewPostingSweepTask builds the periodic sweep task.
func NewPostingSweepTask() *asynq.Task {
	return asynq.NewTask(TaskPostingSweep, nil, asynq.Queue(QueueDefault))
}

// NewLedgerIntegrityTask builds the periodic integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask builds the periodic key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
