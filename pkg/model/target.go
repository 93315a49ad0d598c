package model

import (
	"context"
	"sync"

	"github.com/grovetools/modelcore/errors"
)

// Target is the asynchronous delivery handle of a controller.
// Post must not block on the receiver; it fails only when the target can no
// longer accept messages.
type Target interface {
	Post(msg Message) error
}

// Mailbox is an unbounded FIFO Target drained by its owner.
type Mailbox struct {
	name   string
	mu     sync.Mutex
	queue  []Message
	signal chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox. The name shows up in errors.
func NewMailbox(name string) *Mailbox {
	return &Mailbox{
		name:   name,
		signal: make(chan struct{}, 1),
	}
}

// Post appends msg to the mailbox.
func (b *Mailbox) Post(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.TargetClosed(b.name)
	}
	b.queue = append(b.queue, msg)
	b.wakeLocked()
	return nil
}

// Receive returns the oldest message, blocking until one arrives, the context is
// done, or the mailbox is closed and empty.
func (b *Mailbox) Receive(ctx context.Context) (Message, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			msg := b.popLocked()
			b.mu.Unlock()
			return msg, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Message{}, errors.TargetClosed(b.name)
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-b.signal:
		}
	}
}

// TryReceive returns the oldest message without blocking.
func (b *Mailbox) TryReceive() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Message{}, false
	}
	return b.popLocked(), true
}

// Len returns the number of queued messages.
func (b *Mailbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops accepting messages. Queued messages can still be received.
func (b *Mailbox) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.signal)
}

func (b *Mailbox) popLocked() Message {
	msg := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	if len(b.queue) > 0 {
		b.wakeLocked()
	}
	return msg
}

func (b *Mailbox) wakeLocked() {
	if b.closed {
		return
	}
	select {
	case b.signal <- struct{}{}:
	default:
	}
}
