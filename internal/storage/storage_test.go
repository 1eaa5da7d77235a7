package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riviera/internal/batch"
)

func newJob(id, websiteID, collection, status string, createdAt time.Time) *batch.Job {
	return &batch.Job{
		ID:             id,
		BatchID:        "batch_" + id,
		JobType:        batch.JobTypeCollection,
		CollectionType: collection,
		WebsiteID:      websiteID,
		Status:         status,
		ItemsCount:     2,
		CreatedAt:      createdAt,
	}
}

func TestFileJobStoreRoundTrip(t *testing.T) {
	store, err := NewFileJobStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	job := newJob("job_1", "site-1", batch.CollectionRestaurants, batch.StatusProcessing, time.Now().UTC())
	require.NoError(t, store.Create(ctx, job))

	loaded, err := store.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, job.BatchID, loaded.BatchID)
	assert.Equal(t, batch.StatusProcessing, loaded.Status)

	loaded.Status = batch.StatusEnded
	loaded.ItemsProcessed = 2
	require.NoError(t, store.Update(ctx, loaded))

	reloaded, err := store.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, batch.StatusEnded, reloaded.Status)
	assert.Equal(t, 2, reloaded.ItemsProcessed)
}

func TestFileJobStoreCreateRejectsDuplicate(t *testing.T) {
	store, err := NewFileJobStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	job := newJob("job_1", "site-1", batch.CollectionPOIs, batch.StatusProcessing, time.Now())
	require.NoError(t, store.Create(ctx, job))
	require.Error(t, store.Create(ctx, job))
}

func TestFileJobStoreUpdateRequiresExisting(t *testing.T) {
	store, err := NewFileJobStore(t.TempDir(), nil)
	require.NoError(t, err)

	err = store.Update(context.Background(), newJob("ghost", "site-1", batch.CollectionPOIs, batch.StatusProcessing, time.Now()))
	require.Error(t, err)
}

func TestFileJobStoreGetMissing(t *testing.T) {
	store, err := NewFileJobStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFileJobStoreListFiltersAndSorts(t *testing.T) {
	store, err := NewFileJobStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, newJob("job_a", "site-1", batch.CollectionRestaurants, batch.StatusEnded, base)))
	require.NoError(t, store.Create(ctx, newJob("job_b", "site-1", batch.CollectionPOIs, batch.StatusProcessing, base.Add(time.Hour))))
	require.NoError(t, store.Create(ctx, newJob("job_c", "site-2", batch.CollectionRestaurants, batch.StatusProcessing, base.Add(2*time.Hour))))

	jobs, err := store.List(ctx, "site-1", batch.ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_b", jobs[0].ID) // newest first
	assert.Equal(t, "job_a", jobs[1].ID)

	ended, err := store.List(ctx, "site-1", batch.ListFilter{Status: batch.StatusEnded})
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, "job_a", ended[0].ID)

	limited, err := store.List(ctx, "site-1", batch.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "job_b", limited[0].ID)

	offset, err := store.List(ctx, "site-1", batch.ListFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, offset)
}

func TestFileJobStoreListSkipsCorruptDocuments(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileJobStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob("job_ok", "site-1", batch.CollectionEvents, batch.StatusProcessing, time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job_bad.json"), []byte("{nope"), 0o644))

	jobs, err := store.List(ctx, "site-1", batch.ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job_ok", jobs[0].ID)
}

const tenantToolsYAML = `
tools:
  - id: cfg-1
    name: weather_lookup
    type: rest
    display_name: Weather Lookup
    description: Current conditions by village
    input_schema:
      type: object
      properties:
        village:
          type: string
          enum: [riomaggiore, manarola, corniglia, vernazza, monterosso]
      required: [village]
    settings:
      endpoint: https://api.example.com/weather
      headers:
        Authorization: "Bearer {{WEATHER_KEY}}"
`

const tenantSecretsYAML = `
secrets:
  cfg-1:
    WEATHER_KEY: wk-123
`

func writeTenantFiles(t *testing.T, root, websiteID string) {
	t.Helper()
	dir := filepath.Join(root, websiteID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, toolsFileName), []byte(tenantToolsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, secretsFileName), []byte(tenantSecretsYAML), 0o600))
}

func TestFileToolConfigStoreListByWebsite(t *testing.T) {
	root := t.TempDir()
	writeTenantFiles(t, root, "site-1")

	store := NewFileToolConfigStore(root)
	configs, err := store.ListByWebsite(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs[0]
	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, "weather_lookup", cfg.Name)
	assert.Equal(t, "rest", cfg.Type)
	require.NotNil(t, cfg.InputSchema)
	assert.Equal(t, "object", cfg.InputSchema.Type)
	assert.Contains(t, cfg.InputSchema.Properties, "village")
	assert.Len(t, cfg.InputSchema.Properties["village"].Enum, 5)
	assert.Equal(t, []string{"village"}, cfg.InputSchema.Required)
	assert.Equal(t, "https://api.example.com/weather", cfg.Settings["endpoint"])
}

func TestFileToolConfigStoreMissingTenant(t *testing.T) {
	store := NewFileToolConfigStore(t.TempDir())
	configs, err := store.ListByWebsite(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestFileSecretStoreSecretsFor(t *testing.T) {
	root := t.TempDir()
	writeTenantFiles(t, root, "site-1")

	store := NewFileSecretStore(root)
	secrets, err := store.SecretsFor(context.Background(), "site-1", "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"WEATHER_KEY": "wk-123"}, secrets)

	none, err := store.SecretsFor(context.Background(), "site-1", "cfg-other")
	require.NoError(t, err)
	assert.Empty(t, none)

	missing, err := store.SecretsFor(context.Background(), "ghost", "cfg-1")
	require.NoError(t, err)
	assert.Empty(t, missing)
}
