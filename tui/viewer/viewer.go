// Package viewer is a terminal view of a list model.
//
// The viewer is driven by a model.ProgramTarget: every model.Message posted to its
// controller arrives in Update. Removed items are dropped from the view and the
// removal is acknowledged right away.
package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/grovetools/modelcore/tui/theme"
)

// Formatter renders the value column of an item.
type Formatter func(it *model.Item) string

// Options configures a viewer.
type Options struct {
	Title     string
	Formatter Formatter
	Theme     *theme.Theme
	KeyMap    KeyMap
	// QuitOnDone quits the program when the job reports it is done.
	QuitOnDone bool
}

type row struct {
	key   string
	depth int
	value string
}

// Model is the bubbletea model of the viewer.
type Model struct {
	list *model.ListModel
	ctrl model.Controller
	opts Options

	rows    []row
	gone    map[string]bool
	cursor  int
	details bool

	spinner spinner.Model
	help    help.Model
	running bool
	status  string
	version uint64

	width  int
	height int
}

// New creates a viewer of list. ctrl is the controller whose target feeds the
// program running the viewer; removals are acknowledged on its behalf.
func New(list *model.ListModel, ctrl model.Controller, opts Options) Model {
	if opts.Formatter == nil {
		opts.Formatter = func(it *model.Item) string { return fmt.Sprint(it.Value()) }
	}
	if opts.Theme == nil {
		opts.Theme = theme.DefaultTheme
	}
	if opts.KeyMap.Quit.Keys() == nil {
		opts.KeyMap = DefaultKeyMap
	}
	if opts.Title == "" {
		opts.Title = list.Name()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(opts.Theme.Colors.Orange)

	m := Model{
		list:    list,
		ctrl:    ctrl,
		opts:    opts,
		gone:    make(map[string]bool),
		spinner: s,
		help:    help.New(),
		running: true,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case model.Message:
		return m.handleMessage(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleMessage(msg model.Message) (tea.Model, tea.Cmd) {
	if msg.Version > m.version {
		m.version = msg.Version
	}

	switch msg.Kind {
	case model.KindItemAdded, model.KindItemUpdated:
		if ev, ok := msg.Payload.(model.ItemEvent); ok {
			delete(m.gone, ev.Key)
		}
		m.refresh()

	case model.KindItemRemoved:
		if ev, ok := msg.Payload.(model.ItemEvent); ok {
			m.gone[ev.Key] = true
		}
		m.refresh()
		m.list.RemovalAcknowledged(m.ctrl)

	case model.KindJobDone:
		m.running = false
		if res, ok := msg.Payload.(model.JobResult); ok && res.Completed {
			m.status = "completed"
		} else {
			m.status = "stopped"
		}
		if m.opts.QuitOnDone {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.opts.KeyMap
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.GotoTop):
		m.cursor = 0
	case key.Matches(msg, keys.GotoEnd):
		m.cursor = max(len(m.rows)-1, 0)
	case key.Matches(msg, keys.Details):
		m.details = !m.details
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// refresh rebuilds the rows from the list, hiding items whose removal is under way.
func (m *Model) refresh() {
	m.rows = nil
	var walk func(items []*model.Item, depth int)
	walk = func(items []*model.Item, depth int) {
		for _, it := range items {
			if m.gone[it.Key()] {
				continue
			}
			m.rows = append(m.rows, row{
				key:   it.DisplayKey(),
				depth: depth,
				value: m.opts.Formatter(it),
			})
			walk(it.Children(), depth+1)
		}
	}
	walk(m.list.Items(), 0)

	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
}

// Keys returns the display keys of the visible rows in display order.
func (m Model) Keys() []string {
	keys := make([]string, len(m.rows))
	for i, r := range m.rows {
		keys[i] = r.key
	}
	return keys
}

// Status returns "" while the job runs, then "completed" or "stopped".
func (m Model) Status() string { return m.status }

// View implements tea.Model.
func (m Model) View() string {
	t := m.opts.Theme
	var b strings.Builder

	header := t.Header.Render(m.opts.Title)
	if m.running {
		header += " " + m.spinner.View()
	} else {
		header += " " + t.Muted.Render(m.status)
	}
	header += t.Muted.Render(fmt.Sprintf("  %d items  v%d", len(m.rows), m.version))
	b.WriteString(header + "\n\n")

	if len(m.rows) == 0 {
		b.WriteString(t.Muted.Render("  (empty)") + "\n")
	}

	keyWidth := 0
	for _, r := range m.rows {
		keyWidth = max(keyWidth, len(r.key)+2*r.depth)
	}

	for i, r := range m.visibleRange() {
		idx := i + m.offset()
		label := strings.Repeat("  ", r.depth) + r.key
		line := fmt.Sprintf("%-*s  %s", keyWidth, label, t.Muted.Render(r.value))
		if idx == m.cursor {
			line = t.Selected.Render(fmt.Sprintf("%-*s", keyWidth, label)) + "  " + r.value
		}
		b.WriteString("  " + line + "\n")
	}

	if m.details && m.cursor < len(m.rows) {
		r := m.rows[m.cursor]
		b.WriteString("\n" + t.DetailsBox.Render(t.Bold.Render(r.key)+"\n"+r.value) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.opts.KeyMap))
	return b.String()
}

// visibleRange returns the rows that fit the window, keeping the cursor in view.
func (m Model) visibleRange() []row {
	start := m.offset()
	end := len(m.rows)
	if limit := m.listHeight(); limit > 0 && start+limit < end {
		end = start + limit
	}
	return m.rows[start:end]
}

func (m Model) offset() int {
	limit := m.listHeight()
	if limit <= 0 || m.cursor < limit {
		return 0
	}
	return m.cursor - limit + 1
}

// listHeight is the number of rows that fit between the header and the help line.
// Zero means unknown, before the first WindowSizeMsg.
func (m Model) listHeight() int {
	if m.height == 0 {
		return 0
	}
	h := m.height - 4
	if m.details {
		h -= 5
	}
	return max(h, 1)
}
