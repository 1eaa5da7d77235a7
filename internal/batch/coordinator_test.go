package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riviera/internal/llm"
)

type fakeProvider struct {
	submitted [][]llm.BatchRequest
	submitErr error
	batchID   string

	status    *llm.BatchStatus
	statusErr error

	canceled  []string
	cancelErr error
}

func (p *fakeProvider) SubmitBatch(ctx context.Context, requests []llm.BatchRequest) (string, error) {
	p.submitted = append(p.submitted, requests)
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.batchID, nil
}

func (p *fakeProvider) GetBatchStatus(ctx context.Context, batchID string) (*llm.BatchStatus, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return p.status, nil
}

func (p *fakeProvider) CancelBatch(ctx context.Context, batchID string) error {
	p.canceled = append(p.canceled, batchID)
	return p.cancelErr
}

type fakeJobStore struct {
	jobs      map[string]*Job
	createErr error
	updateErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*Job{}}
}

func (s *fakeJobStore) Create(ctx context.Context, job *Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) Get(ctx context.Context, jobID string) (*Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) Update(ctx context.Context, job *Job) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) List(ctx context.Context, websiteID string, filter ListFilter) ([]*Job, error) {
	var out []*Job
	for _, job := range s.jobs {
		if job.WebsiteID == websiteID {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	submitted  []*Job
	processing []*Job
}

func (n *fakeNotifier) BatchSubmitted(job *Job)  { n.submitted = append(n.submitted, job) }
func (n *fakeNotifier) BatchProcessing(job *Job) { n.processing = append(n.processing, job) }

func TestSubmitBuildsPerVillageRequests(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	notifier := &fakeNotifier{}
	coord := NewCoordinator(provider, store, notifier, nil)

	job, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType:  CollectionRestaurants,
		Villages:        []string{"riomaggiore", "vernazza"},
		WebsiteID:       "site-1",
		ItemsPerVillage: 20,
	})
	require.NoError(t, err)

	require.Len(t, provider.submitted, 1)
	requests := provider.submitted[0]
	require.Len(t, requests, 2)
	assert.Equal(t, "restaurants-riomaggiore", requests[0].CustomID)
	assert.Equal(t, "restaurants-vernazza", requests[1].CustomID)
	assert.Equal(t, GenerationModel, requests[0].Params.Model)
	assert.Equal(t, GenerationMaxTokens, requests[0].Params.MaxTokens)
	require.Len(t, requests[0].Params.Tools, 1)
	assert.Equal(t, "web_search", requests[0].Params.Tools[0]["name"])

	assert.Equal(t, "batch_abc", job.BatchID)
	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, 2, job.ItemsCount)
	assert.Equal(t, 0, job.ItemsProcessed)
	assert.False(t, job.ResultsProcessed)

	persisted, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, persisted.Status)
	assert.Equal(t, 2, persisted.ItemsCount)
	assert.Equal(t, 0, persisted.ItemsProcessed)

	require.Len(t, notifier.submitted, 1)
	assert.Equal(t, job.ID, notifier.submitted[0].ID)
}

func TestSubmitRejectsUnknownCollection(t *testing.T) {
	coord := NewCoordinator(&fakeProvider{}, newFakeJobStore(), nil, nil)
	_, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: "boats",
		Villages:       []string{"vernazza"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collection type")
}

func TestSubmitProviderFailureCreatesNoJob(t *testing.T) {
	provider := &fakeProvider{submitErr: errors.New("rate limited")}
	store := newFakeJobStore()
	coord := NewCoordinator(provider, store, nil, nil)

	_, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionPOIs,
		Villages:       []string{"manarola"},
	})
	require.Error(t, err)
	assert.Empty(t, store.jobs)
	assert.Empty(t, provider.canceled)
}

func TestSubmitPersistFailureCancelsProviderBatch(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_orphan"}
	store := newFakeJobStore()
	store.createErr = errors.New("disk full")
	coord := NewCoordinator(provider, store, nil, nil)

	_, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionEvents,
		Villages:       []string{"corniglia"},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"batch_orphan"}, provider.canceled)
}

func TestSubmitPersistAndCancelFailureReportsOrphan(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_orphan", cancelErr: errors.New("gone")}
	store := newFakeJobStore()
	store.createErr = errors.New("disk full")
	coord := NewCoordinator(provider, store, nil, nil)

	_, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionEvents,
		Villages:       []string{"corniglia"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphaned")
}

func TestCheckStatusReconcilesEndedBatch(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	notifier := &fakeNotifier{}
	coord := NewCoordinator(provider, store, notifier, nil)

	job, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionRestaurants,
		Villages:       []string{"riomaggiore", "vernazza"},
		WebsiteID:      "site-1",
	})
	require.NoError(t, err)

	provider.status = &llm.BatchStatus{
		ID:               "batch_abc",
		ProcessingStatus: llm.BatchStatusEnded,
		RequestCounts:    llm.RequestCounts{Succeeded: 2},
		ResultsURL:       "https://example.com/results",
	}

	result, err := coord.CheckStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 2, result.Job.ItemsProcessed)
	assert.Equal(t, StatusEnded, result.Job.Status)
	assert.NotNil(t, result.Job.CompletedAt)
	assert.Equal(t, "https://example.com/results", result.ResultsURL)

	persisted, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.ItemsProcessed)
	assert.Equal(t, StatusEnded, persisted.Status)

	require.Len(t, notifier.processing, 1)
}

func TestCheckStatusClampsProcessedToCount(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	coord := NewCoordinator(provider, store, nil, nil)

	job, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionWeather,
		Villages:       []string{"monterosso"},
	})
	require.NoError(t, err)

	provider.status = &llm.BatchStatus{
		ProcessingStatus: llm.BatchStatusProcessing,
		RequestCounts:    llm.RequestCounts{Succeeded: 5},
	}

	result, err := coord.CheckStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, result.Job.ItemsProcessed)
	assert.Nil(t, result.Job.CompletedAt)
}

func TestCheckStatusIsIdempotent(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	coord := NewCoordinator(provider, store, nil, nil)

	job, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionRestaurants,
		Villages:       []string{"riomaggiore", "vernazza"},
	})
	require.NoError(t, err)

	provider.status = &llm.BatchStatus{
		ProcessingStatus: llm.BatchStatusEnded,
		RequestCounts:    llm.RequestCounts{Succeeded: 2},
	}

	first, err := coord.CheckStatus(context.Background(), job.ID)
	require.NoError(t, err)
	second, err := coord.CheckStatus(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Job.ItemsProcessed, second.Job.ItemsProcessed)
	assert.Equal(t, first.Job.CompletedAt.Unix(), second.Job.CompletedAt.Unix())
}

func TestMarkResultsProcessedRequiresEndedBatch(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	coord := NewCoordinator(provider, store, nil, nil)

	job, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionRestaurants,
		Villages:       []string{"vernazza"},
	})
	require.NoError(t, err)

	_, err = coord.MarkResultsProcessed(context.Background(), job.ID)
	require.Error(t, err)

	provider.status = &llm.BatchStatus{
		ProcessingStatus: llm.BatchStatusEnded,
		RequestCounts:    llm.RequestCounts{Succeeded: 1},
	}
	_, err = coord.CheckStatus(context.Background(), job.ID)
	require.NoError(t, err)

	updated, err := coord.MarkResultsProcessed(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, updated.ResultsProcessed)
}

func TestListFiltersByWebsite(t *testing.T) {
	provider := &fakeProvider{batchID: "batch_abc"}
	store := newFakeJobStore()
	coord := NewCoordinator(provider, store, nil, nil)

	_, err := coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionRestaurants,
		Villages:       []string{"vernazza"},
		WebsiteID:      "site-1",
	})
	require.NoError(t, err)
	_, err = coord.Submit(context.Background(), SubmitParams{
		CollectionType: CollectionPOIs,
		Villages:       []string{"manarola"},
		WebsiteID:      "site-2",
	})
	require.NoError(t, err)

	jobs, err := coord.List(context.Background(), "site-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, CollectionRestaurants, jobs[0].CollectionType)
}

func TestBuildPromptMentionsVillageAndCount(t *testing.T) {
	prompt, err := BuildPrompt(CollectionRestaurants, "monterosso", 10)
	require.NoError(t, err)
	assert.Contains(t, prompt, "top 10")
	assert.Contains(t, prompt, "Monterosso al Mare")
	assert.Contains(t, prompt, "ONLY valid JSON")
}
