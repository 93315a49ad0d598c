package model

import (
	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/tomb.v2"
)

// Sender is the part of *tea.Program a ProgramTarget needs.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramTarget delivers messages into a bubbletea program.
// Messages are queued in a mailbox and forwarded in order by a pump goroutine,
// so Post never waits for the program's event loop.
type ProgramTarget struct {
	sender Sender
	box    *Mailbox
	tomb   tomb.Tomb
}

// NewProgramTarget starts forwarding posted messages to sender.
// Each message reaches the program as a model.Message value.
func NewProgramTarget(name string, sender Sender) *ProgramTarget {
	t := &ProgramTarget{
		sender: sender,
		box:    NewMailbox(name),
	}
	t.tomb.Go(t.pump)
	return t
}

// Post queues msg for the program.
func (t *ProgramTarget) Post(msg Message) error {
	return t.box.Post(msg)
}

// Close stops accepting messages and waits for the pump to exit.
// Messages already queued are still forwarded unless the program quit.
func (t *ProgramTarget) Close() error {
	t.box.Close()
	return t.tomb.Wait()
}

// Kill stops the pump without forwarding queued messages.
func (t *ProgramTarget) Kill() error {
	t.box.Close()
	t.tomb.Kill(nil)
	return t.tomb.Wait()
}

func (t *ProgramTarget) pump() error {
	ctx := t.tomb.Context(nil)
	for {
		msg, err := t.box.Receive(ctx)
		if err != nil {
			return nil
		}
		t.sender.Send(msg)
	}
}
