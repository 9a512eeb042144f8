// Package tui drives the interactive readers/signatures picker used by
// `eg resolve --interactive`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	editgatesdk "editgate/sdk/go"
)

// ErrCanceled is returned when the user leaves the picker without confirming.
var ErrCanceled = errors.New("selection canceled")

// ResolveFunc resolves the edit with the values picked so far.
type ResolveFunc func(ctx context.Context, readers, signatures []string) (editgatesdk.Resolution, error)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	errorStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)
)

type resolvedMsg struct {
	res editgatesdk.Resolution
	err error
}

// candidateItem is one checkable row in the list.
type candidateItem struct {
	id          string
	description string
	checked     bool
	mandatory   bool
}

func (i candidateItem) Title() string {
	box := "[ ]"
	if i.checked {
		box = "[x]"
	}
	return box + " " + i.id
}

func (i candidateItem) Description() string {
	switch {
	case i.description != "":
		return i.description
	case i.mandatory:
		return "required"
	}
	return ""
}

func (i candidateItem) FilterValue() string { return i.id }

// Model walks through every field the server reports as pending, then
// resolves again with the picked values until the edit is ready.
type Model struct {
	ctx     context.Context
	resolve ResolveFunc

	spinner spinner.Model
	list    list.Model
	loading bool

	res     editgatesdk.Resolution
	queue   []editgatesdk.Selection
	current *editgatesdk.Selection
	picked  map[string][]string

	width    int
	height   int
	status   string
	err      error
	done     bool
	canceled bool
}

func New(ctx context.Context, resolve ResolveFunc) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	l := list.New([]list.Item{}, delegate, 60, 14)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)

	return &Model{
		ctx:     ctx,
		resolve: resolve,
		spinner: sp,
		list:    l,
		loading: true,
		picked:  map[string][]string{},
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.resolveCmd())
}

func (m *Model) resolveCmd() tea.Cmd {
	readers := m.picked["readers"]
	signatures := m.picked["signatures"]
	return func() tea.Msg {
		res, err := m.resolve(m.ctx, readers, signatures)
		return resolvedMsg{res: res, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, max(msg.Height-4, 4))
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resolvedMsg:
		return m.handleResolved(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		}
		if m.loading || m.current == nil {
			return m, nil
		}
		switch msg.String() {
		case " ":
			m.toggle()
			return m, nil
		case "enter":
			return m.confirm()
		}
	}

	if m.current == nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleResolved(msg resolvedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.err = msg.err
		return m, tea.Quit
	}
	m.res = msg.res
	if msg.res.Status == "ready" {
		m.done = true
		return m, tea.Quit
	}
	m.queue = m.queue[:0]
	for _, sel := range []editgatesdk.Selection{msg.res.Signatures, msg.res.Readers} {
		if sel.Pending {
			m.queue = append(m.queue, sel)
		}
	}
	if len(m.queue) == 0 {
		m.err = fmt.Errorf("resolution is %s but no field is pending", msg.res.Status)
		return m, tea.Quit
	}
	m.next()
	return m, nil
}

// next shows the first queued field.
func (m *Model) next() {
	sel := m.queue[0]
	m.queue = m.queue[1:]
	m.current = &sel
	m.status = ""

	items := make([]list.Item, 0, len(sel.Candidates))
	for _, id := range sel.Candidates {
		mandatory := slices.Contains(sel.Mandatory, id)
		items = append(items, candidateItem{
			id:          id,
			description: sel.Descriptions[id],
			checked:     mandatory || slices.Contains(sel.Selected, id) || slices.Contains(sel.Defaults, id),
			mandatory:   mandatory,
		})
	}
	m.list.Title = "Select " + sel.Field
	m.list.SetItems(items)
	m.list.Select(0)
}

func (m *Model) toggle() {
	item, ok := m.list.SelectedItem().(candidateItem)
	if !ok {
		return
	}
	if item.mandatory {
		m.status = item.id + " is required"
		return
	}
	item.checked = !item.checked
	m.status = ""
	m.list.SetItem(m.list.Index(), item)
}

func (m *Model) confirm() (tea.Model, tea.Cmd) {
	var values []string
	for _, it := range m.list.Items() {
		if item, ok := it.(candidateItem); ok && item.checked {
			values = append(values, item.id)
		}
	}
	if len(values) == 0 {
		m.status = "pick at least one value"
		return m, nil
	}
	m.picked[m.current.Field] = values
	if len(m.queue) > 0 {
		m.next()
		return m, nil
	}
	m.current = nil
	m.loading = true
	return m, tea.Batch(m.spinner.Tick, m.resolveCmd())
}

func (m *Model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	if m.loading {
		return fmt.Sprintf("%s %s\n", m.spinner.View(), mutedStyle.Render("Resolving readers and signatures..."))
	}
	if m.current == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(warningStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("space: toggle  enter: confirm  esc: cancel"))
	b.WriteString("\n")
	return b.String()
}

// Result returns the last resolution once the picker has finished.
func (m *Model) Result() (editgatesdk.Resolution, error) {
	switch {
	case m.err != nil:
		return editgatesdk.Resolution{}, m.err
	case m.canceled:
		return editgatesdk.Resolution{}, ErrCanceled
	case !m.done:
		return editgatesdk.Resolution{}, errors.New("picker exited before the edit was ready")
	}
	return m.res, nil
}

// Picked returns the values chosen for each field, keyed by field name.
func (m *Model) Picked() map[string][]string { return m.picked }

// Run starts the picker on the terminal and blocks until it exits.
func Run(ctx context.Context, resolve ResolveFunc, opts ...tea.ProgramOption) (editgatesdk.Resolution, error) {
	model := New(ctx, resolve)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return editgatesdk.Resolution{}, err
	}
	m, ok := final.(*Model)
	if !ok {
		return editgatesdk.Resolution{}, fmt.Errorf("unexpected model type: %T", final)
	}
	return m.Result()
}
