package model

import (
	"fmt"
	"runtime/debug"

	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/refmgr"
)

// State is the run state of a Job.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StatePaused
	StateStopped
	StateCompleted
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateCompleted
}

// Workload is the work a Job performs. It runs without the job's lock held and is
// expected to poll ShouldContinue, returning errors.Interrupted when told to stop.
// A nil return means the work succeeded.
type Workload func(j *Job) error

// worker is the handle of an active run. Background runs own a goroutine;
// synchronous runs borrow the caller's.
type worker struct {
	name string
	done chan struct{}
}

var defaultJobRefs = refmgr.New(func(j *Job) { j.Destroy() },
	refmgr.WithLogger(logging.NewLogger("refmgr")))

// DefaultJobRefs returns the reference manager used by jobs created without WithRefs.
// Reclaiming a job destroys it.
func DefaultJobRefs() *refmgr.Manager[*Job] {
	return defaultJobRefs
}

// Job is a Model whose workload runs under a cooperative run-state machine:
// initialized → running ⇄ paused, running|paused → stopped, running → completed.
type Job struct {
	*Model

	workload   Workload
	refs       *refmgr.Manager[*Job]
	state      State
	worker     *worker
	lastWorker *worker
	err        error
}

// NewJob creates a job named name that runs workload.
func NewJob(name string, workload Workload, opts ...Option) *Job {
	o := buildOptions(opts)
	refs := o.refs
	if refs == nil {
		refs = defaultJobRefs
	}
	return &Job{
		Model:    newModel(name, o),
		workload: workload,
		refs:     refs,
	}
}

// State returns the current run state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// IsJobRunning reports whether the job is running or paused.
func (j *Job) IsJobRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runningLocked()
}

// HasWorker reports whether a run is attached to the job. After StopJob the worker
// stays attached, with the job Stopped, until the workload returns.
func (j *Job) HasWorker() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.worker != nil
}

// Err returns the failure of the last run, or nil when it succeeded or gave up.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// StartInBackground runs the workload on a new goroutine. The goroutine holds a
// reference on the job until it exits, so the job outlives its launcher's reference.
// Starting a job that already has a run in progress, or that has stopped or
// completed, is logged and refused.
func (j *Job) StartInBackground() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.checkStartableLocked(); err != nil {
		return err
	}
	if err := j.refs.AddRef(j); err != nil {
		return err
	}

	w := &worker{name: j.name, done: make(chan struct{})}
	j.worker = w
	j.lastWorker = w
	j.state = StateRunning

	j.logger.Debug("Starting job worker")
	go j.runWorker(w)
	return nil
}

// StartInCurrentThread runs the workload on the calling goroutine and returns when
// the job has reported that it is done. The run counts as the job's worker, so no
// other start is accepted meanwhile.
func (j *Job) StartInCurrentThread() error {
	j.mu.Lock()
	if err := j.checkStartableLocked(); err != nil {
		j.mu.Unlock()
		return err
	}
	w := &worker{name: j.name, done: make(chan struct{})}
	j.worker = w
	j.state = StateRunning
	j.mu.Unlock()

	defer close(w.done)
	ok := j.execute()
	j.finish(w, ok)
	return nil
}

// Wait blocks until the most recently started background worker has exited.
func (j *Job) Wait() {
	j.mu.Lock()
	w := j.lastWorker
	j.mu.Unlock()
	if w != nil {
		<-w.done
	}
}

// PauseJob moves a running job to paused. ShouldContinue blocks until ContinueJob
// or StopJob is called.
func (j *Job) PauseJob() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateRunning {
		j.state = StatePaused
		j.logger.Debug("Job paused")
	}
}

// ContinueJob moves a paused job back to running.
func (j *Job) ContinueJob() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StatePaused {
		j.state = StateRunning
		j.logger.Debug("Job continued")
	}
}

// StopJob marks a running or paused job as stopped. The workload notices on its
// next ShouldContinue; nothing is preempted.
func (j *Job) StopJob() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runningLocked() {
		j.state = StateStopped
		j.logger.Debug("Job stopped")
	}
}

// ShouldContinue is the workload's cancellation point. While the job is paused it
// blocks; afterwards it reports whether the job is running and anyone is still
// interested in it.
func (j *Job) ShouldContinue() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.waitLocked(func() bool { return j.state == StatePaused }, nil)
	return len(j.controllers) > 0 && j.state == StateRunning
}

// TellJobIsDone marks the job completed when completed is set and tells every
// controller with a KindJobDone message.
func (j *Job) TellJobIsDone(completed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tellJobIsDoneLocked(completed)
}

func (j *Job) tellJobIsDoneLocked(completed bool) {
	if completed {
		j.state = StateCompleted
	}
	j.logger.WithField("completed", completed).Debug("Job tells it is done")
	j.notifyLocked(Message{Kind: KindJobDone, Payload: JobResult{Completed: completed}}, true)
}

func (j *Job) runWorker(w *worker) {
	defer close(w.done)
	defer j.refs.RemoveRef(j)

	j.logger.Debug("Worker started")
	ok := j.execute()
	j.finish(w, ok)
	j.logger.Debug("Worker finished")
}

// execute runs the workload with the lock released and converts its outcome
// into success or failure. Nothing the workload does escapes this frame.
func (j *Job) execute() (ok bool) {
	j.mu.Lock()
	if j.state == StateInitialized {
		j.state = StateRunning
	}
	j.err = nil
	j.mu.Unlock()

	j.logger.Debug("Job has started")

	defer func() {
		if r := recover(); r != nil {
			err := errors.WorkloadFailed(j.name, fmt.Errorf("panic: %v", r))
			j.logger.WithError(err).WithField("stack", string(debug.Stack())).Error("Workload panicked")
			j.setErr(err)
			ok = false
		}
	}()

	if j.workload == nil {
		return true
	}

	err := j.workload(j)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errors.ErrCodeInterrupted):
		j.logger.WithError(err).Debug("Workload gave up")
		return false
	default:
		failed := errors.WorkloadFailed(j.name, err)
		j.logger.WithError(failed).Error("Workload failed")
		j.setErr(failed)
		return false
	}
}

func (j *Job) setErr(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
}

// finish detaches the worker w and reports completion.
func (j *Job) finish(w *worker, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.worker == w {
		j.worker = nil
	}
	j.tellJobIsDoneLocked(ok && j.state != StateStopped)
}

func (j *Job) checkStartableLocked() error {
	if j.worker == nil && !j.state.Terminal() {
		return nil
	}
	err := errors.JobAlreadyRunning(j.name, j.state.String())
	j.logger.WithError(err).Error("Trying to start a job that is already running")
	return err
}

func (j *Job) runningLocked() bool {
	return j.state == StateRunning || j.state == StatePaused
}
