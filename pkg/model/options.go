package model

import (
	"time"

	"github.com/grovetools/modelcore/pkg/refmgr"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how long blocking waits sleep between checks.
const DefaultPollInterval = 200 * time.Millisecond

// Option configures models, jobs and list models.
type Option func(*options)

type options struct {
	clock        clock.Clock
	pollInterval time.Duration
	logger       *logrus.Entry
	refs         *refmgr.Manager[*Job]
}

// WithClock sets the clock used by blocking waits.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPollInterval sets the sleep between checks of blocking waits.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithLogger sets the logger. A "model" field with the model's name is added to it.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// WithRefs sets the reference manager a Job registers its background worker with.
// Ignored by plain models and list models.
func WithRefs(refs *refmgr.Manager[*Job]) Option {
	return func(o *options) { o.refs = refs }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	return o
}
