// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package store owns the worker's job lifecycle: queued jobs run one at a
// time per host, every caller-visible transition is written to the database
// before it becomes observable, and restarts recover persisted state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/database"
	"github.com/gweizero/engine/pkg/database/model"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/metrics"
)

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrNotRetryable is returned when retry targets a job that is not in a
	// failed or cancelled state.
	ErrNotRetryable = errors.New("job is not retryable")
)

// restartError marks jobs found mid-processing after a crash.
const restartError = "Worker restarted during processing."

// GasEstimator runs the compile/measure subprocess for one job.
type GasEstimator interface {
	Run(ctx context.Context, jobID, source string) (*common.GasReport, error)
}

// Job is the in-memory view of one analysis job.
type Job struct {
	ID              string              `json:"id"`
	SourceCode      string              `json:"-"`
	Status          common.WorkerStatus `json:"status"`
	Attempts        int                 `json:"attempts"`
	CancelRequested bool                `json:"cancelRequested"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Error           string              `json:"error,omitempty"`
	Result          *common.GasReport   `json:"result,omitempty"`
	RetryOf         string              `json:"retryOf,omitempty"`
}

// Store is the worker job registry. Execution is serialized: the estimator
// shares a compiler cache per host, so at most one job is processing.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	queue   chan string

	facade    database.AnalysisJobFacadeInterface
	estimator GasEstimator
}

// New creates a Store backed by the given facade and estimator.
func New(facade database.AnalysisJobFacadeInterface, estimator GasEstimator) *Store {
	return &Store{
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		queue:     make(chan string, 1024),
		facade:    facade,
		estimator: estimator,
	}
}

// Start recovers persisted jobs and launches the single execution loop. It
// returns once recovery is done; the loop runs until ctx is cancelled.
func (s *Store) Start(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return err
	}
	go s.runLoop(ctx)
	return nil
}

// recover reloads persisted jobs. Jobs caught in processing by a restart
// are failed; queued jobs are re-enqueued in creation order.
func (s *Store) recover(ctx context.Context) error {
	if err := s.facade.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	rows, err := s.facade.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		job, err := fromModel(row)
		if err != nil {
			log.Warnf("store: skipping unreadable job %s: %v", row.ID, err)
			continue
		}
		if job.Status == common.WorkerStatusProcessing {
			job.Status = common.WorkerStatusFailed
			job.Error = restartError
			job.UpdatedAt = time.Now().UTC()
			if err := s.facade.Upsert(ctx, toModel(job)); err != nil {
				return fmt.Errorf("fail orphaned job %s: %w", job.ID, err)
			}
			metrics.WorkerJobsTotal.WithLabelValues(string(job.Status)).Inc()
			log.Warnf("store: job %s was processing at shutdown, marked failed", job.ID)
		}
		s.jobs[job.ID] = job
		if job.Status == common.WorkerStatusQueued {
			s.queue <- job.ID
		}
	}
	log.Infof("store: recovered %d persisted jobs", len(rows))
	return nil
}

// Create persists and enqueues a new analysis job.
func (s *Store) Create(ctx context.Context, source string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		SourceCode: source,
		Status:     common.WorkerStatusQueued,
		Attempts:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.admit(ctx, job)
}

// Retry creates a new job from a failed or cancelled one. The original row
// is left untouched; the new job carries attempts+1 and a retryOf link.
func (s *Store) Retry(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	original, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !original.Status.Retryable() {
		s.mu.Unlock()
		return nil, ErrNotRetryable
	}
	source := original.SourceCode
	attempts := original.Attempts
	s.mu.Unlock()

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		SourceCode: source,
		Status:     common.WorkerStatusQueued,
		Attempts:   attempts + 1,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryOf:    id,
	}
	return s.admit(ctx, job)
}

// admit persists the job, then makes it visible and enqueues it.
func (s *Store) admit(ctx context.Context, job *Job) (*Job, error) {
	if err := s.facade.Upsert(ctx, toModel(job)); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	s.queue <- job.ID
	return job.snapshot(), nil
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.snapshot(), nil
}

// List returns snapshots of all jobs, newest first, optionally filtered by
// status.
func (s *Store) List(status common.WorkerStatus) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.snapshot())
	}
	sortJobs(out)
	return out
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// processing job gets cancel_requested set and its subprocess aborted.
// Cancelling a terminal job is a no-op.
func (s *Store) Cancel(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.Status.Terminal() {
		snap := job.snapshot()
		s.mu.Unlock()
		return snap, nil
	}

	// The lock is held across the write: the transition must be in the
	// database before any caller can observe it.
	next := job.snapshot()
	next.CancelRequested = true
	if next.Status == common.WorkerStatusQueued {
		next.Status = common.WorkerStatusCancelled
	}
	next.UpdatedAt = time.Now().UTC()
	if err := s.facade.Upsert(ctx, toModel(next)); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}
	*job = *next
	var abort context.CancelFunc
	if job.Status == common.WorkerStatusProcessing {
		abort = s.cancels[id]
	}
	snap := job.snapshot()
	terminal := job.Status.Terminal()
	s.mu.Unlock()

	if terminal {
		metrics.WorkerJobsTotal.WithLabelValues(string(snap.Status)).Inc()
	}
	if abort != nil {
		abort()
	}
	return snap, nil
}

// runLoop is the single per-host executor.
func (s *Store) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.runOne(ctx, id)
		}
	}
}

func (s *Store) runOne(ctx context.Context, id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != common.WorkerStatusQueued {
		// Cancelled while queued, or already handled.
		s.mu.Unlock()
		return
	}
	next := job.snapshot()
	next.Status = common.WorkerStatusProcessing
	next.UpdatedAt = time.Now().UTC()
	if err := s.facade.Upsert(ctx, toModel(next)); err != nil {
		// The job stays queued; restart recovery re-enqueues it.
		s.mu.Unlock()
		log.Errorf("store: persist processing for %s: %v", id, err)
		return
	}
	*job = *next
	jobCtx, cancel := context.WithCancel(ctx)
	s.cancels[id] = cancel
	source := job.SourceCode
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()
	log.Infof("store: job %s processing", id)

	report, runErr := s.estimator.Run(jobCtx, id, source)
	s.finish(ctx, id, report, runErr)
}

// finish records the terminal outcome of one run.
func (s *Store) finish(ctx context.Context, id string, report *common.GasReport, runErr error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	next := job.snapshot()
	switch {
	case runErr == nil:
		next.Status = common.WorkerStatusCompleted
		next.Result = report
		next.Error = ""
	case next.CancelRequested:
		// A requested cancel is terminal as cancelled no matter how the
		// aborted run exited.
		next.Status = common.WorkerStatusCancelled
	default:
		next.Status = common.WorkerStatusFailed
		next.Error = runErr.Error()
	}
	next.UpdatedAt = time.Now().UTC()
	if err := s.facade.Upsert(ctx, toModel(next)); err != nil {
		s.mu.Unlock()
		log.Errorf("store: persist terminal status for %s: %v", id, err)
		return
	}
	*job = *next
	status := job.Status
	s.mu.Unlock()

	metrics.WorkerJobsTotal.WithLabelValues(string(status)).Inc()
	log.Infof("store: job %s %s", id, status)
}

func (j *Job) snapshot() *Job {
	copied := *j
	return &copied
}

func sortJobs(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
}

func toModel(j *Job) *model.AnalysisJob {
	row := &model.AnalysisJob{
		ID:              j.ID,
		SourceCode:      j.SourceCode,
		Status:          string(j.Status),
		Attempts:        j.Attempts,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		Error:           j.Error,
	}
	if j.RetryOf != "" {
		retryOf := j.RetryOf
		row.RetryOf = &retryOf
	}
	if j.Result != nil {
		if raw, err := json.Marshal(j.Result); err == nil {
			row.Result = raw
		} else {
			log.Warnf("store: marshal result for %s: %v", j.ID, err)
		}
	}
	return row
}

func fromModel(row *model.AnalysisJob) (*Job, error) {
	job := &Job{
		ID:              row.ID,
		SourceCode:      row.SourceCode,
		Status:          common.WorkerStatus(row.Status),
		Attempts:        row.Attempts,
		CancelRequested: row.CancelRequested,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		Error:           row.Error,
	}
	if row.RetryOf != nil {
		job.RetryOf = *row.RetryOf
	}
	if len(row.Result) > 0 {
		var report common.GasReport
		if err := json.Unmarshal(row.Result, &report); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &report
	}
	return job, nil
}
