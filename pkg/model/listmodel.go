package model

import (
	"github.com/grovetools/modelcore/errors"
)

// ListModel is a Model holding a tree of keyed items.
//
// Adding and updating items only notifies. Removing an item is a handshake: every
// attached controller is sent a KindItemRemoved message and RemoveItem blocks until
// each of them has called RemovalAcknowledged or detached. Only then is the item
// taken out of the tree and destroyed, so no controller is left holding an item
// whose destruction has started.
type ListModel struct {
	*Model

	items       map[string]*Item
	pendingAcks map[string]struct{}
	removing    bool
}

// NewListModel creates an empty list model named name.
func NewListModel(name string, opts ...Option) *ListModel {
	l := &ListModel{
		Model:       newModel(name, buildOptions(opts)),
		items:       make(map[string]*Item),
		pendingAcks: make(map[string]struct{}),
	}
	l.Model.teardown = l.destroyItemsLocked
	l.Model.detached = func(id string) { delete(l.pendingAcks, id) }
	return l
}

// AddItem adds item at the root of the tree.
func (l *ListModel) AddItem(item *Item) error {
	return l.insert("", item)
}

// AddSubItem adds item as a child of the item keyed parentKey.
func (l *ListModel) AddSubItem(parentKey string, item *Item) error {
	return l.insert(parentKey, item)
}

func (l *ListModel) insert(parentKey string, item *Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.ModelDestroyed(l.name)
	}
	if err := l.checkInsertableLocked(item); err != nil {
		l.logger.WithError(err).Error("Cannot add item")
		return err
	}

	siblings := l.items
	var parent *Item
	if parentKey != "" {
		parent = l.findLocked(parentKey)
		if parent == nil {
			err := errors.ItemNotFound(l.name, parentKey)
			l.logger.WithError(err).Error("Cannot add sub item")
			return err
		}
		siblings = parent.children
	}
	if _, ok := siblings[item.key]; ok {
		err := errors.DuplicateKey(l.name, item.key)
		l.logger.WithError(err).Error("Cannot add item")
		return err
	}

	item.parent = parent
	item.setOwner(l)
	siblings[item.key] = item

	l.logger.WithField("item", item.key).WithField("parent", parentKey).Debug("Item added")
	l.notifyLocked(Message{
		Kind:    KindItemAdded,
		Payload: ItemEvent{Key: item.key, ParentKey: parentKey, Item: item},
	}, true)
	return nil
}

// UpdateItem replaces the value of the item keyed key and notifies controllers.
func (l *ListModel) UpdateItem(key string, value interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.findLocked(key)
	if item == nil {
		return errors.ItemNotFound(l.name, key)
	}
	item.value = value

	l.logger.WithField("item", key).Trace("Item updated")
	l.notifyLocked(Message{
		Kind:    KindItemUpdated,
		Payload: ItemEvent{Key: key, ParentKey: parentKeyOf(item), Item: item},
	}, true)
	return nil
}

// RemoveItem removes the item keyed key together with its subtree. With
// controllers attached it blocks until each has acknowledged the removal or
// detached. Removals are serialized; a second caller waits for the first
// handshake to finish.
func (l *ListModel) RemoveItem(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.waitLocked(func() bool { return l.removing }, nil)

	item := l.findLocked(key)
	if item == nil {
		return errors.ItemNotFound(l.name, key)
	}

	if len(l.controllers) > 0 {
		l.removing = true
		for id := range l.controllers {
			l.pendingAcks[id] = struct{}{}
		}

		l.logger.WithField("item", key).WithField("pending", len(l.pendingAcks)).
			Debug("Waiting for controllers to acknowledge removal")
		l.notifyLocked(Message{
			Kind:    KindItemRemoved,
			Payload: ItemEvent{Key: key, ParentKey: parentKeyOf(item), Item: item},
		}, true)

		l.waitLocked(
			func() bool { return len(l.pendingAcks) > 0 },
			func() {
				l.logger.WithField("item", key).WithField("pending", len(l.pendingAcks)).
					Trace("Still waiting for removal acknowledgements")
			},
		)
		l.removing = false
	}

	l.detachLocked(item)
	item.destroy()
	l.logger.WithField("item", key).Debug("Item removed")
	return nil
}

// RemovalAcknowledged records that c has let go of the item being removed.
// Controllers without a pending acknowledgement are ignored.
func (l *ListModel) RemovalAcknowledged(c Controller) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pendingAcks[c.ControllerID()]; !ok {
		return
	}
	delete(l.pendingAcks, c.ControllerID())
	l.logger.WithField("controller", c.ControllerName()).Trace("Removal acknowledged")
}

// PendingAcknowledgements returns how many controllers still have to acknowledge
// the removal in progress.
func (l *ListModel) PendingAcknowledgements() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingAcks)
}

// FindItemByKey searches the tree depth first, siblings in key order. Items whose
// removal is being acknowledged are still found.
func (l *ListModel) FindItemByKey(key string) (*Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := l.findLocked(key)
	return item, item != nil
}

// Items returns the root items sorted by key.
func (l *ListModel) Items() []*Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedItems(l.items)
}

// Len returns the number of root items.
func (l *ListModel) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *ListModel) findLocked(key string) *Item {
	for _, k := range sortedKeys(l.items) {
		item := l.items[k]
		if item.key == key {
			return item
		}
		if found := item.find(key); found != nil {
			return found
		}
	}
	return nil
}

// checkInsertableLocked refuses items that are part of a tree or were destroyed.
// An item taken out of l by RemoveItem keeps l as owner and is destroyed.
func (l *ListModel) checkInsertableLocked(item *Item) error {
	item.detachedMu.Lock()
	owner := item.owner
	destroyed := owner == nil && item.destroyed
	item.detachedMu.Unlock()

	switch {
	case owner == l && item.destroyed:
		return errors.ItemDestroyed(l.name, item.key)
	case owner != nil:
		return errors.ItemAttached(l.name, item.key)
	case destroyed:
		return errors.ItemDestroyed(l.name, item.key)
	}
	return nil
}

func (l *ListModel) detachLocked(item *Item) {
	if item.parent != nil {
		delete(item.parent.children, item.key)
		return
	}
	delete(l.items, item.key)
}

func (l *ListModel) destroyItemsLocked() {
	for _, key := range sortedKeys(l.items) {
		l.items[key].destroy()
	}
	l.items = make(map[string]*Item)
}

func parentKeyOf(item *Item) string {
	if item.parent == nil {
		return ""
	}
	return item.parent.key
}
