// Package storage provides the file-backed persistence used by the
// runtime: batch job records as per-job JSON documents and per-tenant
// tool configuration as YAML.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"riviera/internal/batch"
	"riviera/internal/logging"
)

// FileJobStore persists batch jobs as one JSON document per job under a
// single directory. It satisfies batch.JobRepository.
type FileJobStore struct {
	dir    string
	mu     sync.RWMutex
	logger logging.Logger
}

func NewFileJobStore(dir string, logger logging.Logger) (*FileJobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store dir: %w", err)
	}
	return &FileJobStore{dir: dir, logger: logging.OrNop(logger)}, nil
}

func (s *FileJobStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// write marshals and atomically replaces the job document.
func (s *FileJobStore) write(job *batch.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	tmp := s.path(job.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmp, s.path(job.ID)); err != nil {
		return fmt.Errorf("rename job %s: %w", job.ID, err)
	}
	return nil
}

func (s *FileJobStore) read(jobID string) (*batch.Job, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	var job batch.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *FileJobStore) Create(ctx context.Context, job *batch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(job.ID)); err == nil {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	return s.write(job)
}

func (s *FileJobStore) Get(ctx context.Context, jobID string) (*batch.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(jobID)
}

func (s *FileJobStore) Update(ctx context.Context, job *batch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(job.ID)); err != nil {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	return s.write(job)
}

// List returns the website's jobs newest first. Unreadable documents
// are skipped with a warning rather than failing the whole listing.
func (s *FileJobStore) List(ctx context.Context, websiteID string, filter batch.ListFilter) ([]*batch.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []*batch.Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		job, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable job document %s: %v", name, err)
			continue
		}
		if websiteID != "" && job.WebsiteID != websiteID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.CollectionType != "" && job.CollectionType != filter.CollectionType {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}
