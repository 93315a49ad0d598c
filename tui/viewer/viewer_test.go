package viewer

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/grovetools/modelcore/tui/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInbox(t *testing.T) (*model.ListModel, *model.Basic, *model.Mailbox) {
	t.Helper()
	list := model.NewListModel("inbox", model.WithPollInterval(time.Millisecond))
	require.NoError(t, list.AddItem(model.NewItem("msg-1", "hello")))
	require.NoError(t, list.AddSubItem("msg-1", model.NewItem("att-1", "file.pdf")))
	require.NoError(t, list.AddItem(model.NewItem("msg-2", "world")))

	box := model.NewMailbox("viewer")
	ctrl := model.NewController("viewer", box)
	require.NoError(t, ctrl.Attach(list))
	t.Cleanup(func() {
		ctrl.DetachAll()
		box.Close()
		list.Destroy()
	})
	return list, ctrl, box
}

func receive(t *testing.T, box *model.Mailbox) model.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := box.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestViewerShowsTree(t *testing.T) {
	list, ctrl, _ := newInbox(t)
	m := New(list, ctrl, Options{Theme: theme.NewThemeWithName("terminal")})

	assert.Equal(t, []string{"msg-1", "att-1", "msg-2"}, m.Keys())
	view := m.View()
	assert.Contains(t, view, "inbox")
	assert.Contains(t, view, "file.pdf")
}

func TestViewerFollowsAdditions(t *testing.T) {
	list, ctrl, box := newInbox(t)
	m := New(list, ctrl, Options{})

	require.NoError(t, list.AddItem(model.NewItem("msg-0", "first")))
	m, _ = update(m, receive(t, box))
	assert.Equal(t, []string{"msg-0", "msg-1", "att-1", "msg-2"}, m.Keys())
	assert.Contains(t, m.View(), fmt.Sprintf("v%d", list.Version()))
}

func TestViewerAcknowledgesRemoval(t *testing.T) {
	list, ctrl, box := newInbox(t)
	m := New(list, ctrl, Options{})

	removed := make(chan error, 1)
	go func() { removed <- list.RemoveItem("msg-1") }()

	msg := receive(t, box)
	require.Equal(t, model.KindItemRemoved, msg.Kind)
	m, _ = update(m, msg)

	assert.Equal(t, []string{"msg-2"}, m.Keys(), "the removed item and its children are hidden")
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("removal was not acknowledged")
	}
}

func TestViewerJobDone(t *testing.T) {
	list, ctrl, _ := newInbox(t)

	m := New(list, ctrl, Options{})
	m, cmd := update(m, model.Message{Kind: model.KindJobDone, Payload: model.JobResult{Completed: true}})
	assert.Equal(t, "completed", m.Status())
	assert.Nil(t, cmd)

	m = New(list, ctrl, Options{QuitOnDone: true})
	m, cmd = update(m, model.Message{Kind: model.KindJobDone, Payload: model.JobResult{}})
	assert.Equal(t, "stopped", m.Status())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewerKeys(t *testing.T) {
	list, ctrl, _ := newInbox(t)
	m := New(list, ctrl, Options{})

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	assert.Equal(t, 2, m.cursor)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.cursor)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.cursor)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.details)
	assert.Contains(t, m.View(), "att-1")

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
