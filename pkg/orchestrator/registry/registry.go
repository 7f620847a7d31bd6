// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package registry tracks analysis jobs on the orchestrator: submission
// dedup by source fingerprint, phase transitions, cancellation, and the
// progress stream behind the SSE endpoint.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/metrics"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Launcher runs the analysis pipeline for a newly created job. The context
// is cancelled when the job is cancelled.
type Launcher func(ctx context.Context, jobID, source string)

// job is the registry's internal record.
type job struct {
	id              string
	fingerprint     string
	source          string
	phase           common.Phase
	result          *common.AnalysisResult
	errMsg          string
	cancelRequested bool
	createdAt       time.Time
	finishedAt      time.Time
	cancel          context.CancelFunc
}

// JobView is the externally visible snapshot of a job.
type JobView struct {
	ID              string                 `json:"jobId"`
	Status          common.Phase           `json:"status"`
	CancelRequested bool                   `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	Error           string                 `json:"error,omitempty"`
	Result          *common.AnalysisResult `json:"result,omitempty"`
}

// Registry is the orchestrator-side job table. Identical submissions within
// the dedup TTL share one job instead of re-running the pipeline.
type Registry struct {
	mu            sync.Mutex
	jobs          map[string]*job
	byFingerprint map[string]string

	bus      *ProgressBus
	launcher Launcher
	ttl      time.Duration
}

// New creates a Registry with the given dedup TTL.
func New(bus *ProgressBus, ttl time.Duration) *Registry {
	return &Registry{
		jobs:          make(map[string]*job),
		byFingerprint: make(map[string]string),
		bus:           bus,
		ttl:           ttl,
	}
}

// SetLauncher installs the pipeline entry point. Must be called before the
// first CreateOrReuse.
func (r *Registry) SetLauncher(l Launcher) {
	r.launcher = l
}

// Fingerprint identifies a submission by the SHA-256 of its trimmed source.
func Fingerprint(source string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(source)))
	return hex.EncodeToString(sum[:])
}

// CreateOrReuse returns the job for this source. A running job with the
// same fingerprint is always reused; a terminal one is reused while it is
// younger than the TTL. Otherwise a new job is created and the pipeline
// launched.
func (r *Registry) CreateOrReuse(source string) (view JobView, reused bool) {
	fp := Fingerprint(source)

	r.mu.Lock()
	if id, ok := r.byFingerprint[fp]; ok {
		if existing, found := r.jobs[id]; found && r.reusable(existing) {
			view = snapshot(existing)
			r.mu.Unlock()
			metrics.AnalysisJobsReusedTotal.Inc()
			log.Infof("registry: reusing job %s for fingerprint %s", id, fp[:12])
			return view, true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:          uuid.New().String(),
		fingerprint: fp,
		source:      source,
		phase:       common.PhaseQueued,
		createdAt:   time.Now().UTC(),
		cancel:      cancel,
	}
	r.jobs[j.id] = j
	r.byFingerprint[fp] = j.id
	launcher := r.launcher
	view = snapshot(j)
	r.mu.Unlock()

	metrics.AnalysisJobsCreatedTotal.Inc()
	r.bus.Publish(j.id, event(common.PhaseQueued, "Job accepted."))
	log.Infof("registry: created job %s", j.id)
	go launcher(ctx, j.id, source)
	return view, false
}

// reusable holds r.mu. Running jobs are always reused; completed ones only
// within the TTL. Failed and cancelled jobs never are.
func (r *Registry) reusable(j *job) bool {
	if !j.phase.Terminal() {
		return true
	}
	return j.phase == common.PhaseCompleted && time.Since(j.finishedAt) < r.ttl
}

// Get returns the job snapshot or ErrNotFound.
func (r *Registry) Get(id string) (JobView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return JobView{}, ErrNotFound
	}
	return snapshot(j), nil
}

// Cancel requests cancellation of a running job. Terminal jobs are left
// untouched.
func (r *Registry) Cancel(id string) (JobView, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return JobView{}, ErrNotFound
	}
	if j.phase.Terminal() || j.cancelRequested {
		view := snapshot(j)
		r.mu.Unlock()
		return view, nil
	}
	j.cancelRequested = true
	phase := j.phase
	cancel := j.cancel
	view := snapshot(j)
	r.mu.Unlock()

	r.bus.Publish(id, event(phase, "Cancellation requested."))
	cancel()
	log.Infof("registry: cancellation requested for job %s", id)
	return view, nil
}

// Subscribe exposes the job's progress stream.
func (r *Registry) Subscribe(id string) ([]common.ProgressEvent, <-chan common.ProgressEvent, func(), error) {
	r.mu.Lock()
	_, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	backlog, events, cancel := r.bus.Subscribe(id)
	return backlog, events, cancel, nil
}

// Cancelled reports whether cancellation was requested for the job.
func (r *Registry) Cancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return ok && j.cancelRequested
}

// Advance moves the job into a non-terminal phase and announces it.
func (r *Registry) Advance(id string, phase common.Phase, message string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.phase.Terminal() {
		r.mu.Unlock()
		return
	}
	j.phase = phase
	r.mu.Unlock()
	r.bus.Publish(id, event(phase, message))
}

// Progress announces a message within the job's current phase.
func (r *Registry) Progress(id, message string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	phase := j.phase
	r.mu.Unlock()
	r.bus.Publish(id, event(phase, message))
}

// Complete finishes the job successfully.
func (r *Registry) Complete(id string, result *common.AnalysisResult) {
	r.finish(id, common.PhaseCompleted, "Analysis completed.", result, "")
}

// Fail finishes the job with an error message.
func (r *Registry) Fail(id, message string) {
	r.finish(id, common.PhaseFailed, message, nil, message)
}

// MarkCancelled finishes the job as cancelled.
func (r *Registry) MarkCancelled(id string) {
	r.finish(id, common.PhaseCancelled, "Analysis cancelled by user.", nil, "Analysis cancelled by user.")
}

func (r *Registry) finish(id string, phase common.Phase, message string, result *common.AnalysisResult, errMsg string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.phase.Terminal() {
		r.mu.Unlock()
		return
	}
	j.phase = phase
	j.result = result
	j.errMsg = errMsg
	j.finishedAt = time.Now().UTC()
	r.mu.Unlock()

	r.bus.Publish(id, event(phase, message))
	r.bus.Close(id)
	metrics.AnalysisJobsTerminalTotal.WithLabelValues(string(phase)).Inc()
	log.Infof("registry: job %s %s", id, phase)
}

func snapshot(j *job) JobView {
	return JobView{
		ID:              j.id,
		Status:          j.phase,
		CancelRequested: j.cancelRequested,
		CreatedAt:       j.createdAt,
		Error:           j.errMsg,
		Result:          j.result,
	}
}

func event(phase common.Phase, message string) common.ProgressEvent {
	return common.ProgressEvent{
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
