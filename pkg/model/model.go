package model

import (
	"sort"
	"sync"
	"time"

	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/logging"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

type registration struct {
	controller Controller
	version    uint64
}

// Model is a named unit of observable state with a versioned controller registry.
// The version starts at 1, so a controller stamped 0 is always behind.
//
// Methods whose names end in Locked expect mu to be held. Public methods take the
// lock themselves and never call each other while holding it, so nested
// bookkeeping inside the package goes through the Locked variants.
type Model struct {
	name string

	mu          sync.Mutex
	version     uint64
	controllers map[string]*registration
	destroying  bool
	destroyed   bool
	teardown    func()
	// detached runs under mu after a controller has been removed.
	detached func(id string)

	clock        clock.Clock
	pollInterval time.Duration
	logger       *logrus.Entry
}

// New creates a model named name.
func New(name string, opts ...Option) *Model {
	return newModel(name, buildOptions(opts))
}

func newModel(name string, o options) *Model {
	logger := o.logger
	if logger == nil {
		logger = logging.NewLogger("model")
	}
	return &Model{
		name:         name,
		version:      1,
		controllers:  make(map[string]*registration),
		clock:        o.clock,
		pollInterval: o.pollInterval,
		logger:       logger.WithField("model", name),
	}
}

// Name returns the model's name.
func (m *Model) Name() string { return m.name }

// String returns the model's name.
func (m *Model) String() string { return m.name }

// AddController attaches c. A freshly attached controller is stamped with version 0,
// so it receives the next notification whatever the current version is.
// Adding an attached controller again changes nothing.
func (m *Model) AddController(c Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroying {
		err := errors.ModelDestroyed(m.name)
		m.logger.WithError(err).WithField("controller", c.ControllerName()).
			Error("Controller tried to attach to a model that is being destroyed")
		return err
	}
	if _, ok := m.controllers[c.ControllerID()]; ok {
		m.logger.WithField("controller", c.ControllerName()).Debug("Controller already attached")
		return nil
	}

	m.logger.WithField("controller", c.ControllerName()).Debug("Adding controller")
	m.controllers[c.ControllerID()] = &registration{controller: c}
	return nil
}

// RemoveController detaches c. Removing a controller that is not attached does nothing.
func (m *Model) RemoveController(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.controllers[c.ControllerID()]; !ok {
		return
	}
	m.logger.WithField("controller", c.ControllerName()).Debug("Removing controller")
	delete(m.controllers, c.ControllerID())
	if m.detached != nil {
		m.detached(c.ControllerID())
	}
}

// HasControllers reports whether at least one controller is attached.
func (m *Model) HasControllers() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers) > 0
}

// Controllers returns the names of the attached controllers, sorted.
func (m *Model) Controllers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controllerNamesLocked()
}

// Version returns the current state version.
func (m *Model) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// ControllerVersion returns the version c was last sent, and whether c is attached.
func (m *Model) ControllerVersion(c Controller) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.controllers[c.ControllerID()]
	if !ok {
		return 0, false
	}
	return reg.version, true
}

// Notify posts msg to every controller that has not yet been sent the current
// version. With bump set, the version is incremented first and the receivers'
// stamps advance to it; without bump, stamps stay put so a repeated call reaches
// the same controllers again only if they are still behind.
//
// A target that refuses the message means a controller broke the detach contract;
// Notify panics with a CONTROLLER_UNREACHABLE error.
func (m *Model) Notify(msg Message, bump bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyLocked(msg, bump)
}

func (m *Model) notifyLocked(msg Message, bump bool) {
	if bump {
		m.version++
	}
	msg.Model = m.name
	msg.Version = m.version

	if len(m.controllers) == 0 {
		m.logger.WithField("kind", msg.Kind).Trace("No controllers to talk to")
		return
	}

	for _, reg := range m.controllers {
		if reg.version >= m.version {
			continue
		}
		m.logger.WithField("controller", reg.controller.ControllerName()).
			WithField("kind", msg.Kind).
			WithField("version", m.version).
			Trace("Posting to controller")
		if err := reg.controller.Target().Post(msg); err != nil {
			fatal := errors.ControllerUnreachable(m.name, reg.controller.ControllerName(), err)
			m.logger.WithError(fatal).Error("Controller target unreachable")
			panic(fatal)
		}
		if bump {
			reg.version = m.version
		}
	}
}

// Destroy blocks until every controller has detached, then tears the model down.
// New controllers are refused from the moment Destroy is called. Destroying a
// destroyed model does nothing.
func (m *Model) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroying {
		m.waitLocked(func() bool { return !m.destroyed }, nil)
		return
	}
	m.destroying = true

	m.logger.Debug("Model is being destroyed")
	if len(m.controllers) > 0 {
		m.logger.Debug("Waiting for controllers to detach")
		m.waitLocked(
			func() bool { return len(m.controllers) > 0 },
			func() {
				m.logger.WithField("attached", m.controllerNamesLocked()).
					Trace("Still waiting for controllers to detach")
			},
		)
	}
	if m.teardown != nil {
		m.teardown()
	}
	m.destroyed = true
	m.logger.Debug("Model is dead now")
}

// Destroyed reports whether Destroy has completed.
func (m *Model) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// waitLocked sleeps with mu released for one poll interval at a time while cond
// holds. round, if set, runs under the lock before every sleep but the first.
func (m *Model) waitLocked(cond func() bool, round func()) {
	for first := true; cond(); first = false {
		if !first && round != nil {
			round()
		}
		m.mu.Unlock()
		<-m.clock.After(m.pollInterval)
		m.mu.Lock()
	}
}

func (m *Model) controllerNamesLocked() []string {
	names := make([]string, 0, len(m.controllers))
	for _, reg := range m.controllers {
		names = append(names, reg.controller.ControllerName())
	}
	sort.Strings(names)
	return names
}
