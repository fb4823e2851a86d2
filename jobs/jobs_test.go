package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/accounting"
	jobmetrics "github.com/hermes-erp/hermes/internal/jobs"
)

type fakeQueue struct {
	tasks []PostingRetryPayload
	ids   map[string]asynq.TaskState
	err   error
}

func newFakeQueue() *fakeQueue { return &fakeQueue{ids: map[string]asynq.TaskState{}} }

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	var p PostingRetryPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, err
	}
	id := RetryTaskID(p)
	if _, ok := q.ids[id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	q.ids[id] = asynq.TaskStatePending
	q.tasks = append(q.tasks, p)
	return &asynq.TaskInfo{ID: id, Queue: QueuePostings, Type: task.Type()}, nil
}

func (q *fakeQueue) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	state, ok := q.ids[id]
	if !ok {
		return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
	}
	return &asynq.TaskInfo{ID: id, Queue: queue, State: state}, nil
}

func (q *fakeQueue) DeleteTask(queue, id string) error {
	if _, ok := q.ids[id]; !ok {
		return fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
	}
	delete(q.ids, id)
	return nil
}

type fakeModule struct {
	unposted map[int64]bool
	listErr  error
	retried  []int64
}

func (m *fakeModule) source(name string) PostingSource {
	return PostingSource{
		Module: name,
		ListUnposted: func(ctx context.Context) ([]int64, error) {
			if m.listErr != nil {
				return nil, m.listErr
			}
			var ids []int64
			for id, pending := range m.unposted {
				if pending {
					ids = append(ids, id)
				}
			}
			return ids, nil
		},
		Retry: func(ctx context.Context, id int64) (bool, error) {
			m.retried = append(m.retried, id)
			if _, ok := m.unposted[id]; !ok {
				return false, errors.New("not found")
			}
			m.unposted[id] = false
			return true, nil
		},
	}
}

func testMetrics() (*jobmetrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func retryTask(t *testing.T, module string, id int64) *asynq.Task {
	t.Helper()
	task, err := NewPostingRetryTask(PostingRetryPayload{Module: module, DocumentID: id})
	require.NoError(t, err)
	return task
}

func TestRetryTaskIDIsStable(t *testing.T) {
	a := RetryTaskID(PostingRetryPayload{Module: ModuleSales, DocumentID: 7})
	b := RetryTaskID(PostingRetryPayload{Module: ModuleSales, DocumentID: 7})
	c := RetryTaskID(PostingRetryPayload{Module: ModulePayroll, DocumentID: 7})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err := NewPostingRetryTask(PostingRetryPayload{Module: ModuleSales})
	assert.Error(t, err)
}

func TestPostingRetryJob(t *testing.T) {
	sales := &fakeModule{unposted: map[int64]bool{4: true}}
	metrics, _ := testMetrics()
	job := NewPostingRetryJob(NewSources(sales.source(ModuleSales)), nil, metrics)

	require.NoError(t, job.Handle(context.Background(), retryTask(t, ModuleSales, 4)))
	assert.Equal(t, []int64{4}, sales.retried)
	assert.False(t, sales.unposted[4])

	err := job.Handle(context.Background(), retryTask(t, ModuleSales, 99))
	assert.Error(t, err)

	err = job.Handle(context.Background(), retryTask(t, "hr", 1))
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskPostingRetry, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPostingSweepEnqueuesOncePerDocument(t *testing.T) {
	sales := &fakeModule{unposted: map[int64]bool{1: true, 2: true, 3: false}}
	payroll := &fakeModule{unposted: map[int64]bool{5: true}}
	queue := newFakeQueue()
	metrics, reg := testMetrics()
	job := NewPostingSweepJob(NewSources(sales.source(ModuleSales), payroll.source(ModulePayroll)), queue, queue, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewPostingSweepTask()))
	assert.Len(t, queue.tasks, 3)

	require.NoError(t, job.Handle(context.Background(), NewPostingSweepTask()))
	assert.Len(t, queue.tasks, 3, "documents still queued are not enqueued again")

	count, err := testutil.GatherAndCount(reg, "hermes_posting_retries_enqueued_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "sales and payroll, queued true and false")
}

func TestPostingSweepRequeuesArchivedRetries(t *testing.T) {
	sales := &fakeModule{unposted: map[int64]bool{1: true, 2: true}}
	queue := newFakeQueue()
	job := NewPostingSweepJob(NewSources(sales.source(ModuleSales)), queue, queue, nil, nil)

	require.NoError(t, job.Handle(context.Background(), NewPostingSweepTask()))
	require.Len(t, queue.tasks, 2)

	archived := RetryTaskID(PostingRetryPayload{Module: ModuleSales, DocumentID: 1})
	queue.ids[archived] = asynq.TaskStateArchived
	require.NoError(t, job.Handle(context.Background(), NewPostingSweepTask()))
	require.Len(t, queue.tasks, 3, "only the archived document is queued again")
	assert.Equal(t, PostingRetryPayload{Module: ModuleSales, DocumentID: 1}, queue.tasks[2])
	assert.Equal(t, asynq.TaskStatePending, queue.ids[archived])
}

func TestEnqueueRetryReplacesFinishedTask(t *testing.T) {
	ctx := context.Background()
	p := PostingRetryPayload{Module: ModulePayroll, DocumentID: 8}
	id := RetryTaskID(p)

	for _, state := range []asynq.TaskState{asynq.TaskStateArchived, asynq.TaskStateCompleted} {
		queue := newFakeQueue()
		queue.ids[id] = state
		queued, err := EnqueueRetry(ctx, queue, queue, p)
		require.NoError(t, err)
		assert.True(t, queued, state.String())
		assert.Equal(t, asynq.TaskStatePending, queue.ids[id])
	}

	for _, state := range []asynq.TaskState{asynq.TaskStatePending, asynq.TaskStateRetry, asynq.TaskStateActive} {
		queue := newFakeQueue()
		queue.ids[id] = state
		queued, err := EnqueueRetry(ctx, queue, queue, p)
		require.NoError(t, err)
		assert.False(t, queued, state.String())
		assert.Equal(t, state, queue.ids[id])
	}

	queue := newFakeQueue()
	queue.ids[id] = asynq.TaskStateArchived
	queued, err := EnqueueRetry(ctx, queue, nil, p)
	require.NoError(t, err)
	assert.False(t, queued, "without a reaper the archived task is left alone")
}

func TestEnqueueRetryAfterArchiveInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() { _ = inspector.Close() })

	ctx := context.Background()
	p := PostingRetryPayload{Module: ModuleSales, DocumentID: 12}

	queued, err := EnqueueRetry(ctx, client, inspector, p)
	require.NoError(t, err)
	require.True(t, queued)

	queued, err = EnqueueRetry(ctx, client, inspector, p)
	require.NoError(t, err)
	require.False(t, queued, "pending task keeps its slot")

	require.NoError(t, inspector.ArchiveTask(QueuePostings, RetryTaskID(p)))
	queued, err = EnqueueRetry(ctx, client, inspector, p)
	require.NoError(t, err)
	require.True(t, queued)

	info, err := inspector.GetTaskInfo(QueuePostings, RetryTaskID(p))
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)
}

func TestPostingSweepVisitsEveryModule(t *testing.T) {
	broken := &fakeModule{listErr: errors.New("db down")}
	payroll := &fakeModule{unposted: map[int64]bool{5: true}}
	queue := newFakeQueue()
	job := NewPostingSweepJob(NewSources(broken.source(ModuleProcurement), payroll.source(ModulePayroll)), queue, queue, nil, nil)

	err := job.Handle(context.Background(), NewPostingSweepTask())
	assert.EqualError(t, err, "db down")
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, ModulePayroll, queue.tasks[0].Module)
}

type fakeLedger struct {
	issues []accounting.Imbalance
	err    error
}

func (f fakeLedger) UnbalancedEntries(ctx context.Context) ([]accounting.Imbalance, error) {
	return f.issues, f.err
}

func TestLedgerIntegrityJob(t *testing.T) {
	metrics, reg := testMetrics()
	ledger := fakeLedger{issues: []accounting.Imbalance{
		{EntryID: 3, Reference: "FACT-3", Debit: decimal.NewFromInt(119), Credit: decimal.NewFromInt(118)},
	}}
	job := NewLedgerIntegrityJob(ledger, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))

	count, err := testutil.GatherAndCount(reg, "hermes_ledger_integrity_issues_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	failing := NewLedgerIntegrityJob(fakeLedger{err: errors.New("boom")}, nil, metrics)
	assert.Error(t, failing.Handle(context.Background(), NewLedgerIntegrityTask()))

	count, err = testutil.GatherAndCount(reg, "hermes_job_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(reg, "hermes_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdminRetryEndpoint(t *testing.T) {
	sales := &fakeModule{unposted: map[int64]bool{9: true}}
	queue := newFakeQueue()
	h := NewHandler(nil, queue, NewSources(sales.source(ModuleSales)), nil)
	r := chi.NewRouter()
	r.Route("/admin", h.MountAdminRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/postings/retry", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"module":"sales","document_id":9}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		TaskID string `json:"task_id"`
		Queued bool   `json:"queued"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, RetryTaskID(PostingRetryPayload{Module: ModuleSales, DocumentID: 9}), resp.TaskID)

	rec = post(`{"module":"sales","document_id":9}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Queued)

	assert.Equal(t, http.StatusBadRequest, post(`{"module":"hr","document_id":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"module":"sales"}`).Code)
	assert.Len(t, queue.tasks, 1)
}

type fakeCleaner struct {
	olderThan time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, f.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	metrics, _ := testMetrics()
	cleaner := &fakeCleaner{}
	require.NoError(t, NewIdempotencyCleanupJob(cleaner, 0, nil, metrics).Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 72*time.Hour, cleaner.olderThan)

	cleaner.err = errors.New("db down")
	assert.Error(t, NewIdempotencyCleanupJob(cleaner, time.Hour, nil, metrics).Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, time.Hour, cleaner.olderThan)
}

type fakeInspector struct {
	known map[string]asynq.QueueInfo
	err   error
}

func (f fakeInspector) Queues() ([]string, error) {
	var names []string
	for name := range f.known {
		names = append(names, name)
	}
	return names, f.err
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info := f.known[queue]
	return &info, nil
}

func (f fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
}

func (f fakeInspector) DeleteTask(queue, id string) error { return nil }

func TestHealthReportsEveryQueue(t *testing.T) {
	inspector := fakeInspector{known: map[string]asynq.QueueInfo{
		QueuePostings: {Queue: QueuePostings, Pending: 2, Retry: 1},
	}}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil, Sources{}, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []queueHealth `json:"queues"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []queueHealth{
		{Queue: QueuePostings, Pending: 2, Retry: 1},
		{Queue: QueueDefault},
	}, body.Queues)

	inspector.err = errors.New("redis down")
	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil, Sources{}, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
