// Package refmgr provides reference-counted ownership keyed by object identity.
//
// The last RemoveRef for an object hands it to a reclaim callback. By default the
// callback runs on a dedicated reclamation goroutine, so the goroutine dropping the
// last reference never blocks on destruction. While an object waits for or undergoes
// reclamation, AddRef rejects it.
package refmgr

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/logging"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"
)

// Manager counts references per object and reclaims objects whose count drops to zero.
type Manager[T comparable] struct {
	mu         sync.Mutex
	counts     map[T]int
	reclaiming map[T]struct{}
	queue      []T
	wake       chan struct{}
	idle       *sync.Cond

	reclaim func(T)
	sync    bool
	logger  *logrus.Entry

	tomb    tomb.Tomb
	started bool
	closed  bool
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	sync   bool
	logger *logrus.Entry
}

// WithSyncReclaim runs the reclaim callback on the goroutine that drops the last reference.
func WithSyncReclaim() Option {
	return func(o *options) { o.sync = true }
}

// WithLogger sets the logger used for reference bookkeeping.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a Manager that calls reclaim for every object whose last reference is dropped.
func New[T comparable](reclaim func(T), opts ...Option) *Manager[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("refmgr")
	}

	m := &Manager[T]{
		counts:     make(map[T]int),
		reclaiming: make(map[T]struct{}),
		wake:       make(chan struct{}, 1),
		reclaim:    reclaim,
		sync:       o.sync,
		logger:     o.logger,
	}
	m.idle = sync.NewCond(&m.mu)
	return m
}

// AddRef takes a reference on obj, creating its entry if absent.
// It fails with ErrCodeReclaimed while obj is queued for or undergoing reclamation.
func (m *Manager[T]) AddRef(obj T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reclaiming[obj]; ok {
		err := errors.Reclaimed(describe(obj))
		m.logger.WithError(err).Error("AddRef on object under reclamation")
		return err
	}
	m.counts[obj]++
	m.logger.WithField("object", describe(obj)).WithField("refs", m.counts[obj]).Trace("Reference added")
	return nil
}

// RemoveRef drops a reference on obj. Dropping the last one schedules reclamation.
// Removing a reference that was never taken is logged and ignored.
func (m *Manager[T]) RemoveRef(obj T) {
	m.mu.Lock()

	count, ok := m.counts[obj]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("object", describe(obj)).Warn("RemoveRef on object without references")
		return
	}

	if count > 1 {
		m.counts[obj] = count - 1
		m.logger.WithField("object", describe(obj)).WithField("refs", count-1).Trace("Reference removed")
		m.mu.Unlock()
		return
	}

	delete(m.counts, obj)
	m.reclaiming[obj] = struct{}{}
	m.logger.WithField("object", describe(obj)).Debug("Last reference removed, reclaiming")

	if m.sync || m.closed {
		m.mu.Unlock()
		m.runReclaim(obj)
		return
	}

	m.queue = append(m.queue, obj)
	m.startLocked()
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Count returns the number of references currently held on obj.
func (m *Manager[T]) Count(obj T) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[obj]
}

// Len returns the number of objects holding at least one reference.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counts)
}

// Drain blocks until no reclamation is queued or running.
func (m *Manager[T]) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.reclaiming) > 0 {
		m.idle.Wait()
	}
}

// Close drains pending reclamations and stops the reclamation goroutine.
// Objects whose last reference is dropped after Close are reclaimed synchronously.
func (m *Manager[T]) Close() error {
	m.Drain()

	m.mu.Lock()
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}
	m.tomb.Kill(nil)
	return m.tomb.Wait()
}

func (m *Manager[T]) startLocked() {
	if m.started {
		return
	}
	m.started = true
	m.tomb.Go(m.loop)
}

func (m *Manager[T]) loop() error {
	for {
		select {
		case <-m.tomb.Dying():
			m.processQueue()
			return nil
		case <-m.wake:
			m.processQueue()
		}
	}
}

func (m *Manager[T]) processQueue() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		obj := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.runReclaim(obj)
	}
}

func (m *Manager[T]) runReclaim(obj T) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("object", describe(obj)).WithField("panic", r).Error("Reclaim panicked")
		}

		m.mu.Lock()
		delete(m.reclaiming, obj)
		m.idle.Broadcast()
		m.mu.Unlock()
	}()

	if m.reclaim != nil {
		m.reclaim(obj)
	}
}

func describe(obj interface{}) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	if reflect.ValueOf(obj).Kind() == reflect.Pointer {
		return fmt.Sprintf("%T(%p)", obj, obj)
	}
	return fmt.Sprintf("%v", obj)
}
