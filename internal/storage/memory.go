package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a process-local JobStore used when no database is
// configured. Jobs are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// UpdateJobStatus applies the update with the same merge rules as the
// PostgreSQL upsert
func (m *MemoryStore) UpdateJobStatus(_ context.Context, update *JobUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job, ok := m.jobs[update.JobID]
	if !ok {
		job = &Job{ID: update.JobID, CreatedAt: now, Metadata: map[string]interface{}{}}
		m.jobs[update.JobID] = job
	}

	job.Status = update.Status
	if update.ImageURI != "" {
		job.ImageURI = update.ImageURI
	}
	if update.DetectorType != "" {
		job.DetectorType = update.DetectorType
	}
	if update.Document != nil {
		job.Document = update.Document
	}
	if update.ProcessingTimeMs != 0 {
		job.ProcessingTimeMs = update.ProcessingTimeMs
	}
	job.ErrorCode = update.ErrorCode
	job.ErrorMessage = update.ErrorMessage
	for k, v := range update.Metadata {
		job.Metadata[k] = v
	}
	job.UpdatedAt = now
	return nil
}

// GetJobByID returns a copy of the stored job
func (m *MemoryStore) GetJobByID(_ context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	cp := *job
	cp.Metadata = make(map[string]interface{}, len(job.Metadata))
	for k, v := range job.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, nil
}
