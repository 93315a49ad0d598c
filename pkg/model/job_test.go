package model

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/pkg/refmgr"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRefs(t *testing.T) *refmgr.Manager[*Job] {
	t.Helper()
	logger, _ := test.NewNullLogger()
	refs := refmgr.New(func(j *Job) { j.Destroy() }, refmgr.WithLogger(logger.WithField("component", "refmgr")))
	t.Cleanup(func() { require.NoError(t, refs.Close()) })
	return refs
}

func jobDone(t *testing.T, msgs []Message) []JobResult {
	t.Helper()
	var out []JobResult
	for _, msg := range msgs {
		if msg.Kind != KindJobDone {
			continue
		}
		res, ok := msg.Payload.(JobResult)
		require.True(t, ok, "job done payload must be a JobResult")
		out = append(out, res)
	}
	return out
}

func TestImportJobRunsToCompletion(t *testing.T) {
	refs := newTestRefs(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var polls atomic.Int32

	job := NewJob("Import", func(j *Job) error {
		close(started)
		<-release
		for i := 0; i < 5; i++ {
			if !j.ShouldContinue() {
				return errors.Interrupted(j.Name())
			}
			polls.Add(1)
		}
		return nil
	}, fastOptions(WithRefs(refs))...)
	assert.Equal(t, StateInitialized, job.State())

	ui, box := newTestController("UI")
	require.NoError(t, ui.Attach(job))
	stamp, ok := job.ControllerVersion(ui)
	require.True(t, ok)
	assert.Equal(t, uint64(0), stamp)

	require.NoError(t, job.StartInBackground())
	<-started
	assert.Equal(t, StateRunning, job.State())
	assert.True(t, job.IsJobRunning())
	assert.True(t, job.HasWorker())
	assert.Equal(t, 1, refs.Count(job), "the worker holds a reference")

	close(release)
	job.Wait()

	assert.Equal(t, int32(5), polls.Load())
	assert.Equal(t, StateCompleted, job.State())
	assert.False(t, job.IsJobRunning())
	assert.False(t, job.HasWorker())
	assert.Equal(t, []JobResult{{Completed: true}}, jobDone(t, drain(box)))

	// Dropping the worker's reference reclaims the job once the UI lets go.
	ui.DetachAll()
	refs.Drain()
	assert.True(t, job.Destroyed())
}

func TestShouldContinueIsFalseWithoutControllers(t *testing.T) {
	refs := newTestRefs(t)
	results := make(chan bool, 1)

	job := NewJob("Orphan", func(j *Job) error {
		results <- j.ShouldContinue()
		return nil
	}, fastOptions(WithRefs(refs))...)
	require.NoError(t, refs.AddRef(job))
	defer refs.RemoveRef(job)
	assert.False(t, job.ShouldContinue(), "initialized without controllers")

	require.NoError(t, job.StartInBackground())
	job.Wait()
	assert.False(t, <-results, "running without controllers")

	c, _ := newTestController("late")
	require.NoError(t, c.Attach(job))
	assert.False(t, job.ShouldContinue(), "completed with a controller")
	c.DetachAll()
	assert.False(t, job.ShouldContinue())
}

func TestPausedJobBlocksInShouldContinue(t *testing.T) {
	refs := newTestRefs(t)
	reached := make(chan struct{})
	proceed := make(chan struct{})
	results := make(chan bool, 1)

	job := NewJob("Sync", func(j *Job) error {
		close(reached)
		<-proceed
		results <- j.ShouldContinue()
		return nil
	}, fastOptions(WithRefs(refs))...)
	c, box := newTestController("UI")
	require.NoError(t, c.Attach(job))

	require.NoError(t, job.StartInBackground())
	<-reached
	job.PauseJob()
	assert.Equal(t, StatePaused, job.State())
	assert.True(t, job.IsJobRunning())
	close(proceed)

	select {
	case <-results:
		t.Fatal("ShouldContinue returned while the job was paused")
	case <-time.After(20 * testPoll):
	}

	job.ContinueJob()
	select {
	case ok := <-results:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("ShouldContinue did not resume after ContinueJob")
	}

	job.Wait()
	assert.Equal(t, StateCompleted, job.State())
	assert.Equal(t, []JobResult{{Completed: true}}, jobDone(t, drain(box)))
	c.DetachAll()
}

func TestStopWhilePausedEndsTheJob(t *testing.T) {
	refs := newTestRefs(t)
	reached := make(chan struct{})
	proceed := make(chan struct{})

	job := NewJob("Fetch", func(j *Job) error {
		close(reached)
		<-proceed
		if !j.ShouldContinue() {
			return errors.Interrupted(j.Name())
		}
		return nil
	}, fastOptions(WithRefs(refs))...)
	c, box := newTestController("UI")
	require.NoError(t, c.Attach(job))

	require.NoError(t, job.StartInBackground())
	<-reached
	job.PauseJob()
	close(proceed)
	job.StopJob()
	job.Wait()

	assert.Equal(t, StateStopped, job.State())
	assert.False(t, job.IsJobRunning())
	assert.Equal(t, []JobResult{{Completed: false}}, jobDone(t, drain(box)))
	c.DetachAll()
}

func TestStoppedJobIsNotReportedCompleted(t *testing.T) {
	refs := newTestRefs(t)
	reached := make(chan struct{})
	proceed := make(chan struct{})

	// The workload ignores the stop and claims success.
	job := NewJob("Stubborn", func(j *Job) error {
		close(reached)
		<-proceed
		return nil
	}, fastOptions(WithRefs(refs))...)
	c, box := newTestController("UI")
	require.NoError(t, c.Attach(job))

	require.NoError(t, job.StartInBackground())
	<-reached
	job.StopJob()
	assert.Equal(t, StateStopped, job.State())
	assert.True(t, job.HasWorker(), "the worker stays attached until the workload returns")
	assert.True(t, errors.Is(job.StartInBackground(), errors.ErrCodeJobAlreadyRunning))
	close(proceed)
	job.Wait()

	assert.False(t, job.HasWorker())
	assert.Equal(t, StateStopped, job.State())
	assert.Equal(t, []JobResult{{Completed: false}}, jobDone(t, drain(box)))
	c.DetachAll()
}

func TestStartingARunningJobIsRefused(t *testing.T) {
	refs := newTestRefs(t)
	logger, hook := testLogger()
	reached := make(chan struct{})
	proceed := make(chan struct{})
	var runs atomic.Int32

	job := NewJob("Once", func(j *Job) error {
		runs.Add(1)
		close(reached)
		<-proceed
		return nil
	}, WithPollInterval(testPoll), WithLogger(logger), WithRefs(refs))

	require.NoError(t, job.StartInBackground())
	<-reached

	err := job.StartInBackground()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeJobAlreadyRunning))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.True(t, errors.Is(job.StartInCurrentThread(), errors.ErrCodeJobAlreadyRunning))

	close(proceed)
	job.Wait()
	assert.Equal(t, int32(1), runs.Load())

	// Completed is terminal.
	assert.True(t, errors.Is(job.StartInBackground(), errors.ErrCodeJobAlreadyRunning))
	assert.Equal(t, int32(1), runs.Load())
}

func TestStartDuringSynchronousRunIsRefused(t *testing.T) {
	refs := newTestRefs(t)
	logger, hook := testLogger()
	reached := make(chan struct{})
	proceed := make(chan struct{})
	var runs, active, overlap atomic.Int32

	job := NewJob("Sync", func(j *Job) error {
		runs.Add(1)
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		defer active.Add(-1)
		if runs.Load() == 1 {
			close(reached)
			<-proceed
		}
		return nil
	}, WithPollInterval(testPoll), WithLogger(logger), WithRefs(refs))

	ui, box := newTestController("UI")
	require.NoError(t, ui.Attach(job))
	t.Cleanup(func() { ui.DetachAll() })

	finished := make(chan error, 1)
	go func() { finished <- job.StartInCurrentThread() }()
	<-reached

	assert.True(t, job.HasWorker())
	err := job.StartInBackground()
	assert.True(t, errors.Is(err, errors.ErrCodeJobAlreadyRunning), "got %v", err)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.True(t, errors.Is(job.StartInCurrentThread(), errors.ErrCodeJobAlreadyRunning))

	close(proceed)
	require.NoError(t, <-finished)

	assert.False(t, job.HasWorker())
	assert.Equal(t, int32(1), runs.Load())
	assert.Zero(t, overlap.Load())
	assert.Equal(t, []JobResult{{Completed: true}}, jobDone(t, drain(box)))
}

func TestWorkloadFailureIsReportedAsNotCompleted(t *testing.T) {
	cases := map[string]struct {
		workload Workload
		level    logrus.Level
		failed   bool
	}{
		"error": {
			workload: func(j *Job) error { return fmt.Errorf("disk full") },
			level:    logrus.ErrorLevel,
			failed:   true,
		},
		"panic": {
			workload: func(j *Job) error { panic("corrupt mailbox") },
			level:    logrus.ErrorLevel,
			failed:   true,
		},
		"interrupted": {
			workload: func(j *Job) error { return errors.Interrupted(j.Name()) },
			level:    logrus.DebugLevel,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			refs := newTestRefs(t)
			logger, hook := testLogger()
			job := NewJob("Faulty", tc.workload, WithPollInterval(testPoll), WithLogger(logger), WithRefs(refs))
			c, box := newTestController("UI")
			require.NoError(t, c.Attach(job))

			require.NoError(t, job.StartInBackground())
			job.Wait()

			assert.Equal(t, []JobResult{{Completed: false}}, jobDone(t, drain(box)))
			assert.NotEqual(t, StateCompleted, job.State())
			assert.False(t, job.HasWorker())
			if tc.failed {
				assert.True(t, errors.Is(job.Err(), errors.ErrCodeWorkloadFailed), "got %v", job.Err())
			} else {
				assert.NoError(t, job.Err())
			}

			var failure *logrus.Entry
			for _, e := range hook.AllEntries() {
				if e.Data[logrus.ErrorKey] != nil {
					failure = e
				}
			}
			require.NotNil(t, failure)
			assert.Equal(t, tc.level, failure.Level)
			c.DetachAll()
		})
	}
}

func TestFailedJobCanBeStartedAgain(t *testing.T) {
	refs := newTestRefs(t)
	var runs atomic.Int32
	job := NewJob("Retry", func(j *Job) error {
		if runs.Add(1) == 1 {
			return fmt.Errorf("network down")
		}
		return nil
	}, fastOptions(WithRefs(refs))...)
	require.NoError(t, refs.AddRef(job))
	defer refs.RemoveRef(job)
	c, box := newTestController("UI")
	require.NoError(t, c.Attach(job))

	require.NoError(t, job.StartInBackground())
	job.Wait()
	assert.Error(t, job.Err())
	require.NoError(t, job.StartInBackground())
	job.Wait()

	assert.NoError(t, job.Err())
	assert.Equal(t, StateCompleted, job.State())
	assert.Equal(t, []JobResult{{Completed: false}, {Completed: true}}, jobDone(t, drain(box)))
	c.DetachAll()
}

func TestStartInCurrentThread(t *testing.T) {
	var sawController bool
	job := NewJob("Inline", func(j *Job) error {
		sawController = j.ShouldContinue()
		return nil
	}, fastOptions()...)
	c, box := newTestController("UI")
	require.NoError(t, c.Attach(job))

	require.NoError(t, job.StartInCurrentThread())

	assert.True(t, sawController)
	assert.Equal(t, StateCompleted, job.State())
	assert.False(t, job.HasWorker())
	assert.Equal(t, []JobResult{{Completed: true}}, jobDone(t, drain(box)))

	c.DetachAll()
	job.Wait()
	job.Destroy()
}

func TestTellJobIsDoneReachesEachControllerOnce(t *testing.T) {
	job := NewJob("Manual", nil, fastOptions()...)
	a, boxA := newTestController("A")
	b, boxB := newTestController("B")
	require.NoError(t, a.Attach(job))
	require.NoError(t, b.Attach(job))

	job.TellJobIsDone(false)
	assert.NotEqual(t, StateCompleted, job.State())
	job.TellJobIsDone(true)
	assert.Equal(t, StateCompleted, job.State())

	for _, box := range []*Mailbox{boxA, boxB} {
		assert.Equal(t, []JobResult{{Completed: false}, {Completed: true}}, jobDone(t, drain(box)))
	}
	a.DetachAll()
	b.DetachAll()
	job.Destroy()
}

func TestStateTransitionsOutsideRunAreIgnored(t *testing.T) {
	job := NewJob("Idle", nil, fastOptions()...)
	job.PauseJob()
	assert.Equal(t, StateInitialized, job.State())
	job.ContinueJob()
	assert.Equal(t, StateInitialized, job.State())
	job.StopJob()
	assert.Equal(t, StateInitialized, job.State())

	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StatePaused.Terminal())
}
