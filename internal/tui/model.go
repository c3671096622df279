package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"board-sync/internal/board"
	"board-sync/internal/domain"
)

// Board is what the terminal view drives.
type Board interface {
	View() board.View
	Load(ctx context.Context) error
	Move(ctx context.Context, taskID string, to domain.Status, index int) error
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Delete(ctx context.Context, taskID string) error
	Subscribe() *board.Subscription
	Unsubscribe(s *board.Subscription)
}

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	NextCol   key.Binding
	PrevCol   key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	RaiseTask key.Binding
	LowerTask key.Binding
	Delete    key.Binding
	Reload    key.Binding
	New       key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextCol:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next column")),
		PrevCol:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev column")),
		MoveLeft:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "move left")),
		MoveRight: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "move right")),
		RaiseTask: key.NewBinding(key.WithKeys("shift+up", "K"), key.WithHelp("shift+↑", "raise")),
		LowerTask: key.NewBinding(key.WithKeys("shift+down", "J"), key.WithHelp("shift+↓", "lower")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.MoveLeft, k.MoveRight, k.RaiseTask, k.LowerTask, k.New, k.Delete, k.Reload, k.Quit}
}

// changedMsg is sent when the board signals a change.
type changedMsg struct{}

// doneMsg reports the outcome of an operation started from a key press.
type doneMsg struct {
	op  string
	err error
}

// Model is the bubbletea model of the kanban board.
type Model struct {
	board Board
	sub   *board.Subscription
	keys  keyMap

	view     board.View
	col      int
	row      int
	selected string
	status   string
	failed   bool
	width    int

	adding bool
	ti     textinput.Model
}

// New builds a model for b and subscribes to its changes.
func New(b Board) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "New task title..."
	ti.CharLimit = 200
	m := Model{board: b, sub: b.Subscribe(), keys: defaultKeys(), ti: ti, width: 100}
	m.refresh()
	return m
}

// Close releases the change subscription.
func (m Model) Close() {
	m.board.Unsubscribe(m.sub)
}

func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.sub.C
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case changedMsg:
		m.refresh()
		return m, m.waitForChange()
	case doneMsg:
		m.refresh()
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
			m.failed = true
		} else {
			m.status = msg.op + " done"
			m.failed = false
		}
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		title := strings.TrimSpace(m.ti.Value())
		if title == "" {
			m.status = "Task title is required"
			m.failed = true
			return m, nil
		}
		m.adding = false
		m.ti.SetValue("")
		m.ti.Blur()
		status := domain.Statuses[m.col]
		return m, m.run("create", func(ctx context.Context) error {
			_, err := m.board.Create(ctx, domain.TaskInput{Title: title, Status: status})
			return err
		})
	case "esc":
		m.adding = false
		m.ti.SetValue("")
		m.ti.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.selectRow(m.row - 1)
	case key.Matches(msg, m.keys.Down):
		m.selectRow(m.row + 1)
	case key.Matches(msg, m.keys.NextCol):
		m.selectCol(m.col + 1)
	case key.Matches(msg, m.keys.PrevCol):
		m.selectCol(m.col - 1)
	case key.Matches(msg, m.keys.MoveLeft):
		return m, m.moveAcross(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m, m.moveAcross(1)
	case key.Matches(msg, m.keys.RaiseTask):
		return m, m.reorder(-1)
	case key.Matches(msg, m.keys.LowerTask):
		return m, m.reorder(1)
	case key.Matches(msg, m.keys.Delete):
		id := m.selected
		if id == "" {
			return m, nil
		}
		return m, m.run("delete", func(ctx context.Context) error { return m.board.Delete(ctx, id) })
	case key.Matches(msg, m.keys.Reload):
		return m, m.run("reload", m.board.Load)
	case key.Matches(msg, m.keys.New):
		m.adding = true
		m.ti.Focus()
	}
	return m, nil
}

// moveAcross sends the selected task to the end of the neighbouring column.
func (m *Model) moveAcross(dir int) tea.Cmd {
	id := m.selected
	target := m.col + dir
	if id == "" || target < 0 || target >= len(domain.Statuses) {
		return nil
	}
	to := domain.Statuses[target]
	index := len(m.view.Column(to).Tasks)
	m.col = target
	return m.run("move", func(ctx context.Context) error { return m.board.Move(ctx, id, to, index) })
}

// reorder shifts the selected task within its column.
func (m *Model) reorder(dir int) tea.Cmd {
	id := m.selected
	if id == "" {
		return nil
	}
	status := domain.Statuses[m.col]
	index := m.row + dir
	if index < 0 || index >= len(m.view.Column(status).Tasks) {
		return nil
	}
	if err := m.board.Move(context.Background(), id, status, index); err != nil {
		m.status = fmt.Sprintf("reorder failed: %v", err)
		m.failed = true
		return nil
	}
	m.refresh()
	return nil
}

// refresh takes a new snapshot and keeps the selection on the same task.
func (m *Model) refresh() {
	m.view = m.board.View()
	if m.selected != "" {
		if _, status, idx, ok := m.view.Find(m.selected); ok {
			for i, s := range domain.Statuses {
				if s == status {
					m.col = i
				}
			}
			m.row = idx
			return
		}
	}
	m.selectRow(m.row)
}

func (m *Model) selectCol(col int) {
	if col < 0 || col >= len(domain.Statuses) {
		return
	}
	m.col = col
	m.selectRow(m.row)
}

func (m *Model) selectRow(row int) {
	tasks := m.view.Column(domain.Statuses[m.col]).Tasks
	if len(tasks) == 0 {
		m.row = 0
		m.selected = ""
		return
	}
	if row < 0 {
		row = 0
	}
	if row >= len(tasks) {
		row = len(tasks) - 1
	}
	m.row = row
	m.selected = tasks[row].ID
}

func (m Model) View() string {
	v := m.view
	switch v.Phase {
	case board.PhaseIdle, board.PhaseLoading:
		return mutedStyle.Render("Loading board...")
	case board.PhaseFailed:
		return errorStyle.Render("✖ could not load the board: "+v.LoadError) + "\n" + helpStyle.Render("r reload • q quit")
	}

	name := v.ProjectID
	if v.Project != nil {
		name = v.Project.Name
	}
	all := v.Tasks()
	stats := domain.CountTasks(all)
	header := fmt.Sprintf("%s   %s", titleStyle.Render(name), progressBar(stats.Done, stats.Total, 20))

	colWidth := (m.width - 6) / len(domain.Statuses)
	if colWidth < 20 {
		colWidth = 20
	}
	cols := make([]string, 0, len(v.Columns))
	for i, col := range v.Columns {
		lines := []string{statusStyle(col.Status).Render(fmt.Sprintf("%s (%d)", col.Label, len(col.Tasks)))}
		if len(col.Tasks) == 0 {
			lines = append(lines, mutedStyle.Render("No tasks in this column"))
		}
		for _, card := range col.Tasks {
			line := card.Title
			if card.State != (board.Stable{}).Name() {
				line += " " + pendingStyle.Render("…")
			}
			if card.ID == m.selected && i == m.col {
				line = selectedStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			lines = append(lines, line)
		}
		style := columnStyle
		if i == m.col {
			style = activeColumnStyle
		}
		cols = append(cols, style.Width(colWidth).Render(strings.Join(lines, "\n")))
	}

	out := header + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	if len(v.Creating) > 0 {
		out += "\n" + pendingStyle.Render(fmt.Sprintf("creating %d task(s)...", len(v.Creating)))
	}
	if m.adding {
		out += "\n" + m.ti.View()
	}
	if m.status != "" {
		style := successStyle
		if m.failed {
			style = errorStyle
		}
		out += "\n" + style.Render(m.status)
	}
	help := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	return out + "\n" + helpStyle.Render(strings.Join(help, " • "))
}

// Run starts the terminal board and blocks until the user quits.
func Run(b Board) error {
	m := New(b)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
