// Package jobs implements the cancellable batch executor: the per-user job
// registry, the synchronized progress counters, and the worker that walks a
// target list applying one mutating action per target.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Sayuri/common/trace"
)

// Kind identifies which bulk operation a job performs.
type Kind string

const (
	// KindRemoveFollowers removes every follower of the account.
	KindRemoveFollowers Kind = "remove-followers"

	// KindUnfollowAll unfollows every account the user follows.
	KindUnfollowAll Kind = "unfollow-all"
)

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	return k == KindRemoveFollowers || k == KindUnfollowAll
}

// title is the headline used in batch reports.
func (k Kind) title() string {
	if k == KindRemoveFollowers {
		return "Mass removal"
	}
	return "Mass unfollow"
}

// verb is the past-tense action word used in batch reports.
func (k Kind) verb() string {
	if k == KindRemoveFollowers {
		return "Removed"
	}
	return "Unfollowed"
}

// noun names the target list the job walks.
func (k Kind) noun() string {
	if k == KindRemoveFollowers {
		return "followers"
	}
	return "following"
}

// ErrAlreadyRunning is returned by Register when the user already has a live
// batch job. At most one job per user, ever.
var ErrAlreadyRunning = errors.New("a batch job is already running for this user")

// Progress is an immutable snapshot of a job's counters.
type Progress struct {
	Kind   Kind
	Count  int
	Failed int
	Total  int
}

// Remaining returns the number of unprocessed targets.
func (p Progress) Remaining() int {
	return p.Total - p.Count - p.Failed
}

// Percent returns completion as count/total. Zero when the total is not yet
// known — callers must not render a percentage in that case.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Count) / float64(p.Total) * 100
}

// Job is one run of a bulk operation. The counters are monotonically
// non-decreasing and guarded by a mutex so the worker's increments and
// concurrent progress queries never observe count+failed > total.
type Job struct {
	UserID    string
	Kind      Kind
	RunID     string
	TraceID   string
	StartedAt time.Time

	mu     sync.Mutex
	count  int
	failed int
	total  int
	stop   bool

	done     chan struct{}
	doneOnce sync.Once
}

func newJob(userID string, kind Kind) *Job {
	return &Job{
		UserID:    userID,
		Kind:      kind,
		RunID:     uuid.New().String(),
		TraceID:   trace.GenerateID(),
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Snapshot returns the current counters.
func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{Kind: j.Kind, Count: j.count, Failed: j.failed, Total: j.total}
}

// RequestStop sets the cancellation flag. Write-once-true: the flag never
// reverts, and the worker polls it at each iteration boundary.
func (j *Job) RequestStop() {
	j.mu.Lock()
	j.stop = true
	j.mu.Unlock()
}

// StopRequested reports whether cancellation has been requested.
func (j *Job) StopRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stop
}

// Done is closed when the worker has terminated and the job has been
// deregistered. Used by tests and shutdown paths to wait for completion.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) markDone() {
	j.doneOnce.Do(func() { close(j.done) })
}

func (j *Job) setTotal(n int) {
	j.mu.Lock()
	j.total = n
	j.mu.Unlock()
}

// recordSuccess increments the success counter and returns its new value.
func (j *Job) recordSuccess() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.count++
	return j.count
}

func (j *Job) recordFailure() {
	j.mu.Lock()
	j.failed++
	j.mu.Unlock()
}

// Registry is the process-wide map from user ID to at most one live batch
// job. It is the only cross-component shared mutable state in the core:
// coarse-grained locking is deliberate, call frequency is low.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Register creates and registers a job for userID. Returns ErrAlreadyRunning
// when the user already has one — the reservation is atomic, so two racing
// starts cannot both proceed.
func (r *Registry) Register(userID string, kind Kind) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[userID]; exists {
		return nil, ErrAlreadyRunning
	}
	job := newJob(userID, kind)
	r.jobs[userID] = job
	return job, nil
}

// Deregister removes job from the registry. The pointer comparison makes
// removal exactly-once and immune to a newer job having reused the slot.
func (r *Registry) Deregister(job *Job) {
	r.mu.Lock()
	if current, ok := r.jobs[job.UserID]; ok && current == job {
		delete(r.jobs, job.UserID)
	}
	r.mu.Unlock()
}

// Get returns the live job for userID, if any.
func (r *Registry) Get(userID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	return job, ok
}

// RequestStop flags the user's live job for cancellation. Returns whether a
// job was found; calling it again after the job stopped is a no-op returning
// false.
func (r *Registry) RequestStop(userID string) bool {
	r.mu.Lock()
	job, ok := r.jobs[userID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	job.RequestStop()
	return true
}

// Progress returns a snapshot of the user's live job. ok=false means no job
// is registered — a completed job never leaves stale data behind.
func (r *Registry) Progress(userID string) (Progress, bool) {
	job, ok := r.Get(userID)
	if !ok {
		return Progress{}, false
	}
	return job.Snapshot(), true
}

// ActiveCount returns the number of live jobs across all users.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
