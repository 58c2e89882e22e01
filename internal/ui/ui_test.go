package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

type fakeStream struct {
	mu     sync.Mutex
	states []models.TaskState
	end    error
	closed bool
}

func (s *fakeStream) Next() (models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.TaskState{}, errors.New("use of closed connection")
	}
	if len(s.states) == 0 {
		if s.end != nil {
			return models.TaskState{}, s.end
		}
		return models.TaskState{}, io.EOF
	}
	next := s.states[0]
	s.states = s.states[1:]
	return next, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSource struct {
	tasks   []models.TaskState
	listErr error
	streams map[string]*fakeStream
}

func (f *fakeSource) List(context.Context) ([]models.TaskState, error) {
	return f.tasks, f.listErr
}

func (f *fakeSource) Watch(_ context.Context, taskID string) (StateStream, error) {
	s, ok := f.streams[taskID]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return s, nil
}

func completedRun(taskID string) []models.TaskState {
	done := models.NewTaskState(taskID, models.StatusCompleted, 100, "All account ticket tasks finished")
	done.Result = &models.TaskResult{Results: []models.AccountOutcome{
		{AccountID: "acc1", Success: true},
		{AccountID: "acc2", Error: "sold out"},
	}}
	return []models.TaskState{
		models.NewTaskState(taskID, models.StatusStarted, 0, "Ticket task started"),
		models.NewTaskState(taskID, models.StatusProcessing, 30, "[1/2] Processing account acc1"),
		done,
	}
}

// run feeds cmd's messages back into m until no command is left.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		if i > 50 {
			t.Fatal("too many update cycles")
		}
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func TestWatchModel(t *testing.T) {
	t.Run("FollowsTaskToResult", func(t *testing.T) {
		source := &fakeSource{streams: map[string]*fakeStream{"task_1": {states: completedRun("task_1")}}}
		m := NewWatchModel(context.Background(), source, "task_1")

		run(t, m, m.Init())

		if m.view != ResultView {
			t.Fatalf("view = %v, want ResultView", m.view)
		}
		if m.State().Status != models.StatusCompleted {
			t.Errorf("status = %s, want completed", m.State().Status)
		}
		if m.Err() != nil {
			t.Errorf("unexpected error: %v", m.Err())
		}

		view := m.View()
		for _, want := range []string{"Task Complete", "1/2 succeeded", "acc2 - sold out"} {
			if !strings.Contains(view, want) {
				t.Errorf("view missing %q:\n%s", want, view)
			}
		}
	})

	t.Run("RendersProgress", func(t *testing.T) {
		states := completedRun("task_1")[:2]
		source := &fakeSource{streams: map[string]*fakeStream{"task_1": {states: states}}}
		m := NewWatchModel(context.Background(), source, "task_1")

		_, cmd := m.Update(m.Init()())
		_, cmd = m.Update(cmd())
		m.Update(cmd())

		if m.view != WatchView {
			t.Fatalf("view = %v, want WatchView", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "30%") || !strings.Contains(view, "Processing account acc1") {
			t.Errorf("watch view:\n%s", view)
		}
	})

	t.Run("UnknownTask", func(t *testing.T) {
		m := NewWatchModel(context.Background(), &fakeSource{}, "task_missing")
		run(t, m, m.Init())

		if !errors.Is(m.Err(), shared.ErrTaskNotFound) {
			t.Errorf("err = %v, want ErrTaskNotFound", m.Err())
		}
		if !strings.Contains(m.View(), "Error") {
			t.Errorf("view should show the error:\n%s", m.View())
		}
	})

	t.Run("StreamErrorBeforeTerminal", func(t *testing.T) {
		stream := &fakeStream{states: completedRun("task_1")[:1], end: errors.New("connection reset")}
		m := NewWatchModel(context.Background(), &fakeSource{streams: map[string]*fakeStream{"task_1": stream}}, "task_1")
		run(t, m, m.Init())

		if m.Err() == nil || !strings.Contains(m.Err().Error(), "connection reset") {
			t.Errorf("err = %v, want connection reset", m.Err())
		}
		if !stream.closed {
			t.Error("stream should be closed")
		}
	})

	t.Run("QuitClosesStream", func(t *testing.T) {
		stream := &fakeStream{states: completedRun("task_1")}
		m := NewWatchModel(context.Background(), &fakeSource{streams: map[string]*fakeStream{"task_1": stream}}, "task_1")
		m.Update(m.Init()())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
		if !stream.closed {
			t.Error("stream should be closed on quit")
		}
	})
}

func TestListModel(t *testing.T) {
	t.Run("ShowsTasks", func(t *testing.T) {
		source := &fakeSource{tasks: []models.TaskState{
			models.NewTaskState("task_a", models.StatusProcessing, 40, "working"),
			models.NewTaskState("task_b", models.StatusCompleted, 100, "done"),
		}}
		m := NewModel(context.Background(), source)
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		run(t, m, m.Init())

		if got := len(m.taskList.Items()); got != 2 {
			t.Fatalf("items = %d, want 2", got)
		}
		if !strings.Contains(m.View(), "task_a") {
			t.Errorf("list view missing task_a:\n%s", m.View())
		}
	})

	t.Run("EnterWatchesSelected", func(t *testing.T) {
		source := &fakeSource{
			tasks:   []models.TaskState{models.NewTaskState("task_1", models.StatusProcessing, 30, "")},
			streams: map[string]*fakeStream{"task_1": {states: completedRun("task_1")}},
		}
		m := NewModel(context.Background(), source)
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		run(t, m, m.Init())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(t, m, cmd)

		if m.view != ResultView || m.taskID != "task_1" {
			t.Fatalf("view = %v task = %q", m.view, m.taskID)
		}

		_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		run(t, m, cmd)
		if m.view != TaskListView {
			t.Errorf("esc should return to the list, view = %v", m.view)
		}
	})

	t.Run("ListError", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeSource{listErr: shared.ErrServiceUnavailable})
		run(t, m, m.Init())

		if !errors.Is(m.Err(), shared.ErrServiceUnavailable) {
			t.Errorf("err = %v", m.Err())
		}
	})
}

func TestStaleStreamMessagesIgnored(t *testing.T) {
	m := NewWatchModel(context.Background(), &fakeSource{}, "task_1")
	current := &fakeStream{}
	m.stream = current

	stale := &fakeStream{}
	m.Update(stateUpdateMsg(stale, models.NewTaskState("task_1", models.StatusCompleted, 100, "")))
	m.Update(streamEndedMsg(stale, errors.New("closed")))

	if m.view != WatchView || m.Err() != nil || m.stream != current {
		t.Errorf("stale messages changed the model: view=%v err=%v", m.view, m.Err())
	}
}

func TestTaskItem(t *testing.T) {
	item := taskItem{state: models.NewTaskState("task_1", models.StatusProcessing, 60, "[2/3] Processing account acc2")}
	if item.Title() != "task_1" || item.FilterValue() != "task_1" {
		t.Errorf("title = %q", item.Title())
	}
	if got := item.Description(); got != "processing • 60% • [2/3] Processing account acc2" {
		t.Errorf("description = %q", got)
	}
}
