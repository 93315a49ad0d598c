package model

import (
	"sort"
	"sync"
)

// Item is a node in a ListModel's tree. Its children are owned by it; the parent
// link is a plain back-reference that is cleared when the item is destroyed.
//
// Accessors are safe to call concurrently with the list model that holds the item.
type Item struct {
	key     string
	display string

	// detachedMu guards the fields below while the item belongs to no list model.
	detachedMu sync.Mutex
	owner      *ListModel

	value     interface{}
	parent    *Item
	children  map[string]*Item
	onDestroy func(*Item)
	destroyed bool
}

// ItemOption configures an Item.
type ItemOption func(*Item)

// WithDisplayKey sets the label shown for the item instead of its key.
func WithDisplayKey(display string) ItemOption {
	return func(it *Item) { it.display = display }
}

// OnDestroy registers fn to run when the item is destroyed, after its children.
// fn runs with the list model locked and must not call back into it or its items.
func OnDestroy(fn func(*Item)) ItemOption {
	return func(it *Item) { it.onDestroy = fn }
}

// NewItem creates a detached item.
func NewItem(key string, value interface{}, opts ...ItemOption) *Item {
	it := &Item{
		key:      key,
		value:    value,
		children: make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Key returns the item's key, unique among its siblings.
func (it *Item) Key() string { return it.key }

// DisplayKey returns the display label, falling back to the key.
func (it *Item) DisplayKey() string {
	if it.display != "" {
		return it.display
	}
	return it.key
}

// Value returns the item's payload.
func (it *Item) Value() interface{} {
	unlock := it.lock()
	defer unlock()
	return it.value
}

// Parent returns the parent item, or nil for a root item or a detached one.
func (it *Item) Parent() *Item {
	unlock := it.lock()
	defer unlock()
	return it.parent
}

// Children returns the direct children sorted by key.
func (it *Item) Children() []*Item {
	unlock := it.lock()
	defer unlock()
	return sortedItems(it.children)
}

// Destroyed reports whether the item has been destroyed.
func (it *Item) Destroyed() bool {
	unlock := it.lock()
	defer unlock()
	return it.destroyed
}

// lock takes the owning list model's lock, or the item's own lock when detached.
func (it *Item) lock() func() {
	it.detachedMu.Lock()
	owner := it.owner
	if owner == nil {
		return it.detachedMu.Unlock
	}
	it.detachedMu.Unlock()
	owner.mu.Lock()
	return owner.mu.Unlock
}

func (it *Item) setOwner(l *ListModel) {
	it.detachedMu.Lock()
	it.owner = l
	it.detachedMu.Unlock()
	for _, child := range it.children {
		child.setOwner(l)
	}
}

// destroy tears down the subtree rooted at it, children first. The caller holds
// the owner's lock or is the item's sole user.
func (it *Item) destroy() {
	if it.destroyed {
		return
	}
	for _, key := range sortedKeys(it.children) {
		it.children[key].destroy()
	}
	it.children = make(map[string]*Item)
	if it.onDestroy != nil {
		it.onDestroy(it)
	}
	it.parent = nil
	it.destroyed = true
}

func (it *Item) find(key string) *Item {
	for _, k := range sortedKeys(it.children) {
		child := it.children[k]
		if child.key == key {
			return child
		}
		if found := child.find(key); found != nil {
			return found
		}
	}
	return nil
}

func sortedKeys(items map[string]*Item) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedItems(items map[string]*Item) []*Item {
	out := make([]*Item, 0, len(items))
	for _, k := range sortedKeys(items) {
		out = append(out, items[k])
	}
	return out
}
