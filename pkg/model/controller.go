package model

import (
	"sync"

	"github.com/google/uuid"
)

// Controller is an asynchronous consumer of model notifications.
// A controller must detach from every model before its target stops accepting
// messages; posting to an unreachable target is fatal.
type Controller interface {
	// ControllerID is the stable identity the model registry is keyed by.
	ControllerID() string
	// ControllerName is used in logs.
	ControllerName() string
	// Target is where the model posts messages.
	Target() Target
}

// Attachable is a model a controller can attach to.
type Attachable interface {
	Name() string
	AddController(c Controller) error
	RemoveController(c Controller)
}

// Basic is a Controller with a generated identity that remembers the models it is
// attached to, so it can detach from all of them before going away.
type Basic struct {
	id     string
	name   string
	target Target

	mu     sync.Mutex
	models map[Attachable]struct{}
}

// NewController creates a controller named name that receives messages on target.
func NewController(name string, target Target) *Basic {
	return &Basic{
		id:     uuid.NewString(),
		name:   name,
		target: target,
		models: make(map[Attachable]struct{}),
	}
}

func (b *Basic) ControllerID() string   { return b.id }
func (b *Basic) ControllerName() string { return b.name }
func (b *Basic) Target() Target         { return b.target }

// Attach registers the controller with m.
func (b *Basic) Attach(m Attachable) error {
	if err := m.AddController(b); err != nil {
		return err
	}
	b.mu.Lock()
	b.models[m] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Detach unregisters the controller from m. Detaching from a model the controller
// is not attached to does nothing.
func (b *Basic) Detach(m Attachable) {
	m.RemoveController(b)
	b.mu.Lock()
	delete(b.models, m)
	b.mu.Unlock()
}

// DetachAll unregisters the controller from every model it attached to.
func (b *Basic) DetachAll() {
	b.mu.Lock()
	models := make([]Attachable, 0, len(b.models))
	for m := range b.models {
		models = append(models, m)
	}
	b.models = make(map[Attachable]struct{})
	b.mu.Unlock()

	for _, m := range models {
		m.RemoveController(b)
	}
}

// Attached reports whether the controller attached to m and has not detached since.
func (b *Basic) Attached(m Attachable) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.models[m]
	return ok
}
