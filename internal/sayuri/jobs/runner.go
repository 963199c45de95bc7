package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Sayuri/common/trace"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
	"github.com/bdobrica/Sayuri/internal/sayuri/notify"
	"github.com/bdobrica/Sayuri/internal/sayuri/pacer"
)

// progressEvery is the success cadence for incremental progress reports.
// Bounds notification volume on large batches.
const progressEvery = 5

// RunRecord is the terminal summary of a batch job, handed to the history
// recorder. Outcome is one of "complete", "stopped", "error".
type RunRecord struct {
	RunID      string
	TraceID    string
	UserID     string
	Kind       Kind
	Count      int
	Failed     int
	Total      int
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists finished runs. Failures are the recorder's problem;
// the runner logs and moves on.
type Recorder interface {
	RecordRun(ctx context.Context, rec *RunRecord) error
}

// Runner launches and supervises batch jobs: one worker goroutine per job,
// communicating progress through the registry's synchronized counters and
// outward through the notifier.
type Runner struct {
	registry *Registry
	pacer    *pacer.Pacer
	notifier notify.Notifier
	history  Recorder // may be nil
}

// NewRunner wires a Runner. history may be nil to disable run records.
func NewRunner(registry *Registry, p *pacer.Pacer, notifier notify.Notifier, history Recorder) *Runner {
	return &Runner{registry: registry, pacer: p, notifier: notifier, history: history}
}

// Start registers a job for userID and launches its worker. The registry
// slot is reserved synchronously — a concurrent second Start gets
// ErrAlreadyRunning before any provider call — and the worker fills in the
// total once the target list is fetched. An empty list or a failed fetch
// releases the slot before any mutating action.
//
// The worker runs on its own context: it must outlive the conversational
// turn that confirmed the action.
func (r *Runner) Start(userID string, kind Kind, account insta.Provider) (*Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	job, err := r.registry.Register(userID, kind)
	if err != nil {
		return nil, err
	}

	go r.run(job, account)
	return job, nil
}

// run is the worker. Exactly one terminal path executes: stopped, complete,
// or error — each emits a final report and deregisters exactly once.
func (r *Runner) run(job *Job, account insta.Provider) {
	ctx := trace.WithTraceID(context.Background(), job.TraceID)
	defer job.markDone()
	defer r.registry.Deregister(job)

	log := slog.With("user", job.UserID, "kind", string(job.Kind), "trace", job.TraceID)

	r.notifier.Send(ctx, job.UserID,
		fmt.Sprintf("🔄 Fetching your %s list, please wait...", job.Kind.noun()))

	targets, err := r.fetchTargets(ctx, job.Kind, account)
	if err != nil {
		log.Error("target list fetch failed", "err", err)
		r.notifier.Send(ctx, job.UserID,
			fmt.Sprintf("❌ Could not fetch your %s list: %v\n\nNothing was changed.", job.Kind.noun(), err))
		r.record(ctx, job, "error")
		return
	}
	if len(targets) == 0 {
		log.Info("no targets, batch skipped")
		r.notifier.Send(ctx, job.UserID,
			fmt.Sprintf("ℹ️ Your %s list is empty — nothing to do.", job.Kind.noun()))
		return
	}

	job.setTotal(len(targets))
	log.Info("batch started", "total", len(targets))

	// The fetch placeholder has served its purpose.
	r.notifier.DeleteLast(ctx, job.UserID)

	delay := r.pacer.NormalDelay()
	estimate := time.Duration(len(targets)) * delay
	r.notifier.Send(ctx, job.UserID, fmt.Sprintf(
		"🔥 **Starting %s**\n\n"+
			"📊 Total %s: **%d**\n"+
			"⏱ Delay between actions: **%s**\n"+
			"⚠️ Estimated time: **%.1f minutes**\n\n"+
			"_Send **stop** to cancel anytime, **progress** to check on it._",
		job.Kind.title(), job.Kind.noun(), len(targets), delay, estimate.Minutes()))

	for _, target := range targets {
		// Cancellation is cooperative: polled here, at the iteration
		// boundary, never inside an in-flight provider call.
		if job.StopRequested() {
			p := job.Snapshot()
			log.Info("batch stopped by user", "count", p.Count, "failed", p.Failed, "remaining", p.Remaining())
			r.notifier.Send(ctx, job.UserID, fmt.Sprintf(
				"⛔ **Process stopped**\n\n"+
					"✅ %s: **%d**\n"+
					"❌ Failed: **%d**\n"+
					"⏭ Remaining: **%d**",
				job.Kind.verb(), p.Count, p.Failed, p.Remaining()))
			r.record(ctx, job, "stopped")
			return
		}

		err := r.apply(ctx, job.Kind, account, target)
		if err != nil {
			job.recordFailure()
			log.Error("batch action failed", "target", target.Username, "err", err)
		} else if n := job.recordSuccess(); n%progressEvery == 0 {
			// Successive progress updates replace each other so the room is
			// not flooded on large batches.
			p := job.Snapshot()
			r.notifier.EditLast(ctx, job.UserID, fmt.Sprintf(
				"⚙️ **Progress update**\n\n"+
					"✅ %s: **%d/%d**\n"+
					"❌ Failed: **%d**\n"+
					"📊 Progress: **%.1f%%**\n"+
					"🕐 Last: @%s",
				job.Kind.verb(), p.Count, p.Total, p.Failed, p.Percent(), target.Username))
		}

		r.pacer.Pace(err == nil)
	}

	p := job.Snapshot()
	log.Info("batch complete", "count", p.Count, "failed", p.Failed, "total", p.Total)
	r.notifier.Send(ctx, job.UserID, fmt.Sprintf(
		"✅ **%s complete!**\n\n"+
			"✅ %s: **%d**\n"+
			"❌ Failed: **%d**\n"+
			"📊 Total processed: **%d**\n\n"+
			"🎉 All done!",
		job.Kind.title(), job.Kind.verb(), p.Count, p.Failed, p.Total))
	r.record(ctx, job, "complete")
}

// fetchTargets pulls the full, immutable target list for the run. No live
// re-fetching afterwards.
func (r *Runner) fetchTargets(ctx context.Context, kind Kind, account insta.Provider) ([]insta.Target, error) {
	if kind == KindRemoveFollowers {
		return account.ListFollowers(ctx)
	}
	return account.ListFollowing(ctx)
}

// apply issues the single mutating action for one target.
func (r *Runner) apply(ctx context.Context, kind Kind, account insta.Provider, target insta.Target) error {
	if kind == KindRemoveFollowers {
		return account.RemoveFollower(ctx, target.ID)
	}
	return account.Unfollow(ctx, target.ID)
}

// record hands the terminal summary to the history store, when one is wired.
func (r *Runner) record(ctx context.Context, job *Job, outcome string) {
	if r.history == nil {
		return
	}
	p := job.Snapshot()
	rec := &RunRecord{
		RunID:      job.RunID,
		TraceID:    job.TraceID,
		UserID:     job.UserID,
		Kind:       job.Kind,
		Count:      p.Count,
		Failed:     p.Failed,
		Total:      p.Total,
		Outcome:    outcome,
		StartedAt:  job.StartedAt,
		FinishedAt: time.Now(),
	}
	if err := r.history.RecordRun(ctx, rec); err != nil {
		slog.Warn("could not record batch run", "user", job.UserID, "trace", job.TraceID, "err", err)
	}
}
