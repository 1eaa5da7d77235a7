package batch

import (
	"context"
	"fmt"
	"time"

	"riviera/internal/llm"
	"riviera/internal/logging"
	"riviera/internal/utils/id"
)

// Provider is the slice of the LLM client the coordinator uses.
// *llm.Client satisfies it.
type Provider interface {
	SubmitBatch(ctx context.Context, requests []llm.BatchRequest) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) (*llm.BatchStatus, error)
	CancelBatch(ctx context.Context, batchID string) error
}

// ListFilter narrows a job listing. Zero values mean "no filter".
type ListFilter struct {
	Status         string
	CollectionType string
	Limit          int
	Offset         int
}

// JobRepository persists batch jobs. Jobs are mutated only through the
// coordinator.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	List(ctx context.Context, websiteID string, filter ListFilter) ([]*Job, error)
}

// Notifier receives fire-and-forget progress events. Implementations
// must not block; the coordinator ignores any failure to deliver.
type Notifier interface {
	BatchSubmitted(job *Job)
	BatchProcessing(job *Job)
}

// Coordinator drives the submit/poll/list lifecycle of bulk-generation
// jobs. It holds no state between calls beyond what the repository
// persists; polling cadence is entirely caller-driven.
type Coordinator struct {
	provider Provider
	jobs     JobRepository
	notifier Notifier
	logger   logging.Logger
}

func NewCoordinator(provider Provider, jobs JobRepository, notifier Notifier, logger logging.Logger) *Coordinator {
	return &Coordinator{
		provider: provider,
		jobs:     jobs,
		notifier: notifier,
		logger:   logging.OrNop(logger),
	}
}

// SubmitParams describes one bulk-generation run: one collection across
// a set of villages for one website.
type SubmitParams struct {
	CollectionType  string
	Villages        []string
	WebsiteID       string
	ItemsPerVillage int
}

// Submit builds one provider request per village, submits the batch,
// and persists the job record with status "processing".
//
// Submission and persistence are not atomic. If the persistence write
// fails after the provider accepted the batch, Submit attempts a
// compensating cancel so the provider side does not run unrecorded;
// when the cancel also fails the orphaned batch id is logged and
// surfaced in the returned error.
func (c *Coordinator) Submit(ctx context.Context, params SubmitParams) (*Job, error) {
	if params.ItemsPerVillage <= 0 {
		params.ItemsPerVillage = 10
	}
	requests, err := BuildBatchRequests(params.CollectionType, params.Villages, params.ItemsPerVillage)
	if err != nil {
		return nil, err
	}

	batchID, err := c.provider.SubmitBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("batch submit failed: %w", err)
	}

	job := &Job{
		ID:             id.NewJobID(),
		BatchID:        batchID,
		JobType:        JobTypeCollection,
		CollectionType: params.CollectionType,
		WebsiteID:      params.WebsiteID,
		Status:         StatusProcessing,
		ItemsCount:     len(requests),
		ItemsProcessed: 0,
		Metadata: map[string]any{
			"villages":          params.Villages,
			"items_per_village": params.ItemsPerVillage,
			"model":             GenerationModel,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := c.jobs.Create(ctx, job); err != nil {
		if cancelErr := c.provider.CancelBatch(ctx, batchID); cancelErr != nil {
			c.logger.Error("job %s: persist failed and cancel of provider batch %s failed, batch is orphaned: %v (persist: %v)",
				job.ID, batchID, cancelErr, err)
			return nil, fmt.Errorf("persist job for batch %s failed (cancel also failed, batch orphaned): %w", batchID, err)
		}
		c.logger.Warn("job %s: persist failed, provider batch %s canceled: %v", job.ID, batchID, err)
		return nil, fmt.Errorf("persist job failed, provider batch canceled: %w", err)
	}

	c.logger.Info("job %s: submitted batch %s (%s, %d requests)", job.ID, batchID, params.CollectionType, len(requests))
	if c.notifier != nil {
		c.notifier.BatchSubmitted(job)
	}
	return job, nil
}

// CheckResult is one poll's view of a job.
type CheckResult struct {
	Job        *Job
	Completed  bool
	Counts     llm.RequestCounts
	ResultsURL string
}

// CheckStatus polls the provider for the job's batch, reconciles the
// persisted record, and reports whether the batch has ended. Safe to
// call any number of times; each call is a last-write-wins overwrite.
func (c *Coordinator) CheckStatus(ctx context.Context, jobID string) (*CheckResult, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	status, err := c.provider.GetBatchStatus(ctx, job.BatchID)
	if err != nil {
		return nil, fmt.Errorf("poll batch %s: %w", job.BatchID, err)
	}

	job.Status = status.ProcessingStatus
	job.ItemsProcessed = status.RequestCounts.Succeeded
	if job.ItemsProcessed > job.ItemsCount {
		job.ItemsProcessed = job.ItemsCount
	}
	completed := status.ProcessingStatus == llm.BatchStatusEnded
	if completed && job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}

	if err := c.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job %s: %w", jobID, err)
	}

	c.logger.Debug("job %s: batch %s status=%s succeeded=%d/%d", jobID, job.BatchID,
		job.Status, job.ItemsProcessed, job.ItemsCount)
	if c.notifier != nil {
		c.notifier.BatchProcessing(job)
	}

	return &CheckResult{
		Job:        job,
		Completed:  completed,
		Counts:     status.RequestCounts,
		ResultsURL: status.ResultsURL,
	}, nil
}

// List returns the persisted jobs for one website, filtered.
func (c *Coordinator) List(ctx context.Context, websiteID string, filter ListFilter) ([]*Job, error) {
	return c.jobs.List(ctx, websiteID, filter)
}

// MarkResultsProcessed flips the application-side import flag. The
// provider-side batch must have ended first; the import step itself is
// the caller's concern.
func (c *Coordinator) MarkResultsProcessed(ctx context.Context, jobID string) (*Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != StatusEnded {
		return nil, fmt.Errorf("job %s has status %q, results can only be marked processed after the batch has ended", jobID, job.Status)
	}
	if job.ResultsProcessed {
		return job, nil
	}
	job.ResultsProcessed = true
	if err := c.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job %s: %w", jobID, err)
	}
	return job, nil
}
