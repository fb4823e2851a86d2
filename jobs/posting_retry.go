package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hermes-erp/hermes/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrUnknownModule is returned for a retry naming no registered source.
var ErrUnknownModule = errors.New("jobs: unknown posting module")

// PostingSource is a module whose documents may stay unposted after a
// configuration error.
type PostingSource struct {
	Module       string
	ListUnposted func(ctx context.Context) ([]int64, error)
	// Retry re-posts a document and reports whether it is now posted.
	Retry func(ctx context.Context, documentID int64) (bool, error)
}

// Sources indexes posting sources by module.
type Sources map[string]PostingSource

// NewSources builds the index, skipping incomplete entries.
func NewSources(list ...PostingSource) Sources {
	out := make(Sources, len(list))
	for _, src := range list {
		if src.Module == "" || src.Retry == nil || src.ListUnposted == nil {
			continue
		}
		out[src.Module] = src
	}
	return out
}

// Modules lists the registered modules, sorted.
func (s Sources) Modules() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// PostingRetryJob handles TaskPostingRetry.
type PostingRetryJob struct {
	Sources Sources
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPostingRetryJob wires the retry handler.
func NewPostingRetryJob(sources Sources, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostingRetryJob {
	return &PostingRetryJob{Sources: sources, Logger: logger, Metrics: metrics}
}

// Handle re-posts one document. A document that stays unposted is logged and
// left for the next sweep.
func (j *PostingRetryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("posting retry: handler not configured")
	}
	var payload PostingRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("posting retry: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	src, ok := j.Sources[payload.Module]
	if !ok {
		return fmt.Errorf("%w %q: %w", ErrUnknownModule, payload.Module, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPostingRetry)
	logger := j.logger().With(slog.String("module", payload.Module), slog.Int64("document_id", payload.DocumentID))
	posted, err := src.Retry(ctx, payload.DocumentID)
	if err != nil {
		logger.Error("posting retry failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if !posted {
		logger.Warn("document still unposted")
	} else {
		logger.Info("document posted")
	}
	return tracker.End(nil)
}

func (j *PostingRetryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostingRetry))
	}
	return slog.Default().With(slog.String("job", TaskPostingRetry))
}

func (j *PostingRetryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
