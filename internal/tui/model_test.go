package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"

	"board-sync/internal/board"
	"board-sync/internal/domain"
)

type fakeGateway struct {
	tasks   []domain.Task
	updates int
}

func (f *fakeGateway) GetProject(context.Context, string) (domain.Project, error) {
	return domain.Project{ID: "p1", Name: "Sprint 12"}, nil
}

func (f *fakeGateway) ListTasks(context.Context, string) ([]domain.Task, error) {
	return f.tasks, nil
}

func (f *fakeGateway) CreateTask(_ context.Context, projectID string, in domain.TaskInput) (domain.Task, error) {
	return domain.Task{ID: "created", Title: in.Title, Status: in.Status, ProjectID: projectID}, nil
}

func (f *fakeGateway) UpdateTask(_ context.Context, projectID, taskID string, in domain.TaskInput) (domain.Task, error) {
	f.updates++
	return domain.Task{ID: taskID, Title: in.Title, Status: in.Status, ProjectID: projectID}, nil
}

func (f *fakeGateway) DeleteTask(context.Context, string, string) error { return nil }

func newModel(t *testing.T, gw *fakeGateway) (Model, *board.Board) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	b := board.New("p1", gw, board.Options{Logger: logger})
	t.Cleanup(b.Close)
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return New(b), b
}

// press feeds a key to the model and runs the resulting command, if any,
// feeding its message back in.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	m = next.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMoveRightSendsTaskToNextColumn(t *testing.T) {
	gw := &fakeGateway{tasks: []domain.Task{
		{ID: "a", Title: "Alpha", Status: domain.StatusTodo, ProjectID: "p1"},
		{ID: "b", Title: "Beta", Status: domain.StatusInProgress, ProjectID: "p1"},
	}}
	m, b := newModel(t, gw)
	if m.selected != "a" {
		t.Fatalf("expected first task selected, got %q", m.selected)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if ids := b.View().IDs(domain.StatusInProgress); len(ids) != 2 || ids[1] != "a" {
		t.Fatalf("expected a at the end of in-progress, got %v", ids)
	}
	if m.col != 1 || m.selected != "a" || m.row != 1 {
		t.Fatalf("selection should follow the task, got col=%d row=%d id=%q", m.col, m.row, m.selected)
	}
	if gw.updates != 1 || m.failed {
		t.Fatalf("expected one update and no failure, got %d %q", gw.updates, m.status)
	}
}

func TestReorderStaysLocal(t *testing.T) {
	gw := &fakeGateway{tasks: []domain.Task{
		{ID: "a", Title: "Alpha", Status: domain.StatusTodo, ProjectID: "p1"},
		{ID: "b", Title: "Beta", Status: domain.StatusTodo, ProjectID: "p1"},
	}}
	m, b := newModel(t, gw)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftDown})
	if ids := b.View().IDs(domain.StatusTodo); ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("expected reordered column, got %v", ids)
	}
	if m.row != 1 || gw.updates != 0 {
		t.Fatalf("expected local reorder, got row=%d updates=%d", m.row, gw.updates)
	}
}

func TestCreateAndDeleteFromKeys(t *testing.T) {
	m, b := newModel(t, &fakeGateway{})
	m = press(t, m, runes("n"))
	if !m.adding {
		t.Fatal("expected add mode")
	}
	m.ti.SetValue("Write release notes")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if ids := b.View().IDs(domain.StatusTodo); len(ids) != 1 || ids[0] != "created" {
		t.Fatalf("expected created task, got %v", ids)
	}
	if !strings.Contains(m.View(), "Write release notes") {
		t.Fatal("expected task title in the rendered board")
	}

	m = press(t, m, runes("d"))
	if got := len(b.View().Tasks()); got != 0 {
		t.Fatalf("expected empty board after delete, got %d", got)
	}
	if m.status != "delete done" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestViewShowsLoadFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := board.New("p1", &failingGateway{}, board.Options{Logger: logger})
	defer b.Close()
	_ = b.Load(context.Background())
	m := New(b)
	if !strings.Contains(m.View(), "could not load the board") {
		t.Fatalf("expected load error, got %q", m.View())
	}
}

type failingGateway struct{ fakeGateway }

func (failingGateway) ListTasks(context.Context, string) ([]domain.Task, error) {
	return nil, context.DeadlineExceeded
}
