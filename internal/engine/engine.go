// Package engine runs jobs in the background and reclaims them once nobody
// references them any more.
package engine

import (
	"context"
	"sync"

	"github.com/grovetools/modelcore/pkg/model"
	"github.com/grovetools/modelcore/pkg/refmgr"
	"github.com/sirupsen/logrus"
)

// Options configures an Engine.
type Options struct {
	// SyncReclaim destroys jobs on the goroutine dropping their last reference.
	SyncReclaim bool
	// JobOptions are applied to every job created with NewJob.
	JobOptions []model.Option
}

// Engine owns the reference manager of its jobs and holds one reference on each
// registered job until Close.
type Engine struct {
	refs   *refmgr.Manager[*model.Job]
	logger *logrus.Entry

	mu   sync.Mutex
	jobs []*model.Job
	opts Options
}

// New creates an Engine. Reclaiming a job destroys it, which waits for its
// controllers to detach.
func New(opts Options, logger *logrus.Entry) *Engine {
	refOpts := []refmgr.Option{refmgr.WithLogger(logger.WithField("refs", "jobs"))}
	if opts.SyncReclaim {
		refOpts = append(refOpts, refmgr.WithSyncReclaim())
	}

	e := &Engine{
		logger: logger,
		opts:   opts,
	}
	e.refs = refmgr.New(func(j *model.Job) {
		e.logger.WithField("job", j.Name()).Debug("Reclaiming job")
		j.Destroy()
	}, refOpts...)
	return e
}

// Refs returns the reference manager jobs of this engine register with.
func (e *Engine) Refs() *refmgr.Manager[*model.Job] {
	return e.refs
}

// NewJob creates a job bound to the engine's reference manager and registers it.
func (e *Engine) NewJob(name string, workload model.Workload, opts ...model.Option) (*model.Job, error) {
	all := append(append([]model.Option(nil), e.opts.JobOptions...), opts...)
	all = append(all, model.WithRefs(e.refs))
	j := model.NewJob(name, workload, all...)
	if err := e.Register(j); err != nil {
		return nil, err
	}
	return j, nil
}

// Register takes the engine's reference on j.
func (e *Engine) Register(j *model.Job) error {
	if err := e.refs.AddRef(j); err != nil {
		return err
	}
	e.mu.Lock()
	e.jobs = append(e.jobs, j)
	e.mu.Unlock()
	e.logger.WithField("job", j.Name()).Debug("Registered job")
	return nil
}

// Jobs returns the registered jobs in registration order.
func (e *Engine) Jobs() []*model.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*model.Job(nil), e.jobs...)
}

// Start starts every registered job that has not run yet in the background.
func (e *Engine) Start() {
	for _, j := range e.Jobs() {
		if j.State() != model.StateInitialized || j.HasWorker() {
			continue
		}
		e.logger.WithField("job", j.Name()).Info("Starting job")
		if err := j.StartInBackground(); err != nil {
			e.logger.WithField("job", j.Name()).WithError(err).Error("Job failed to start")
		}
	}
}

// Run starts all jobs and blocks until they have finished or ctx is done, in which
// case the jobs are stopped and waited for.
func (e *Engine) Run(ctx context.Context) {
	e.Start()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Info("Stopping jobs")
		e.Stop()
		<-done
	}
}

// Stop asks every running job to stop.
func (e *Engine) Stop() {
	for _, j := range e.Jobs() {
		j.StopJob()
	}
}

// Wait blocks until every job's worker has exited.
func (e *Engine) Wait() {
	for _, j := range e.Jobs() {
		j.Wait()
	}
}

// Close drops the engine's references and waits until every job whose last
// reference went away has been destroyed. Controllers still attached to a job
// keep Close waiting.
func (e *Engine) Close() error {
	e.mu.Lock()
	jobs := e.jobs
	e.jobs = nil
	e.mu.Unlock()

	for _, j := range jobs {
		e.refs.RemoveRef(j)
	}
	return e.refs.Close()
}
