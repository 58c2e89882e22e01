package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/services"
)

// historySize is how many recent transitions the watch view shows.
const historySize = 6

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	WatchView
	ResultView
)

// StateStream yields the transitions of one task. Next returns [io.EOF] once the stream ended normally.
type StateStream interface {
	Next() (models.TaskState, error)
	Close() error
}

// TaskSource lists tasks and opens transition streams.
type TaskSource interface {
	List(ctx context.Context) ([]models.TaskState, error)
	Watch(ctx context.Context, taskID string) (StateStream, error)
}

type clientSource struct {
	client *services.TaskClient
}

// NewClientSource adapts a [services.TaskClient] to [TaskSource].
func NewClientSource(c *services.TaskClient) TaskSource {
	return clientSource{client: c}
}

func (s clientSource) List(ctx context.Context) ([]models.TaskState, error) {
	return s.client.List(ctx)
}

func (s clientSource) Watch(ctx context.Context, taskID string) (StateStream, error) {
	w, err := s.client.Watch(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	source   TaskSource
	width    int
	height   int
	taskList list.Model
	listed   bool
	taskID   string
	stream   StateStream
	state    models.TaskState
	history  []models.TaskState
	bar      progress.Model
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a monitor that starts on the task list.
func NewModel(ctx context.Context, source TaskSource) *Model {
	return &Model{
		ctx:      ctx,
		view:     TaskListView,
		source:   source,
		taskList: newTaskList(nil),
		listed:   true,
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// NewWatchModel creates a monitor that follows taskID directly and quits from the result view.
func NewWatchModel(ctx context.Context, source TaskSource, taskID string) *Model {
	m := NewModel(ctx, source)
	m.listed = false
	m.view = WatchView
	m.taskID = taskID
	return m
}

// Init fetches the task list or opens the watched task's stream.
func (m *Model) Init() tea.Cmd {
	if m.listed {
		return m.fetchTasks()
	}
	return m.startWatch(m.taskID)
}

// State returns the last transition received.
func (m *Model) State() models.TaskState {
	return m.state
}

// Err returns the error that stopped the monitor, if any.
func (m *Model) Err() error {
	return m.err
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(max(0, msg.Width-4), max(0, msg.Height-8))
		m.bar.Width = max(10, min(80, msg.Width-8))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleListKeys(msg)
		case WatchView, ResultView:
			return m.handleWatchKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTasksFetched:
		data := msg.data.(tasksFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(data.tasks))
		for i, s := range data.tasks {
			items[i] = taskItem{state: s}
		}
		m.taskList = newTaskList(items)
		m.taskList.SetSize(max(0, m.width-4), max(0, m.height-8))
		return m, nil

	case MsgWatchStarted:
		data := msg.data.(watchStarted)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.closeStream()
		m.err = nil
		m.taskID = data.taskID
		m.stream = data.stream
		m.state = models.TaskState{TaskID: data.taskID}
		m.history = nil
		m.view = WatchView
		return m, m.waitForState()

	case MsgStateUpdate:
		data := msg.data.(stateUpdate)
		if data.stream != m.stream {
			return m, nil
		}
		m.state = data.state
		m.history = append(m.history, data.state)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		if data.state.Status.IsTerminal() {
			m.view = ResultView
		}
		return m, m.waitForState()

	case MsgStreamEnded:
		data := msg.data.(streamEnded)
		if data.stream != m.stream {
			return m, nil
		}
		m.closeStream()
		if data.err != nil && !m.state.Status.IsTerminal() {
			m.err = data.err
		}
		if m.state.Status.IsTerminal() {
			m.view = ResultView
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.help.ShortHelpView(m.errorKeys())
	}

	switch m.view {
	case TaskListView:
		return m.renderList()
	case WatchView:
		return m.renderWatch()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchTasks()
	case key.Matches(msg, m.keys.enter):
		if selected, ok := m.taskList.SelectedItem().(taskItem); ok {
			return m, m.startWatch(selected.state.TaskID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleWatchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.closeStream()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back) && m.listed:
		m.closeStream()
		m.view = TaskListView
		m.err = nil
		return m, m.fetchTasks()
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != TaskListView {
		return m, nil
	}
	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func newTaskList(items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Tasks"
	return l
}

func (m *Model) closeStream() {
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
}

func (m *Model) fetchTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.source.List(m.ctx)
		return tasksFetchedMsg(tasks, err)
	}
}

func (m *Model) startWatch(taskID string) tea.Cmd {
	return func() tea.Msg {
		stream, err := m.source.Watch(m.ctx, taskID)
		return watchStartedMsg(taskID, stream, err)
	}
}

// waitForState reads one transition from the current stream.
func (m *Model) waitForState() tea.Cmd {
	stream := m.stream
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		state, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return streamEndedMsg(stream, err)
		}
		return stateUpdateMsg(stream, state)
	}
}

func (m *Model) errorKeys() []key.Binding {
	if m.listed && m.view != TaskListView {
		return []key.Binding{m.keys.back, m.keys.quit}
	}
	return []key.Binding{m.keys.refresh, m.keys.quit}
}

func (m *Model) renderList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.taskList.View(), helpView)
}

func (m *Model) renderWatch() string {
	title := styles.title.Render("Task " + m.taskID)

	status := "connecting..."
	if m.state.Status != "" {
		status = styles.Status(m.state.Status).Render(string(m.state.Status))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s  %d%%\n%s\n", title, status, m.state.Progress, m.bar.ViewAs(float64(m.state.Progress)/100))
	if m.state.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", m.state.Message)
	}
	if len(m.history) > 1 {
		b.WriteString("\n")
		for _, s := range m.history[:len(m.history)-1] {
			b.WriteString(styles.help.Render(fmt.Sprintf("  %3d%% %s", s.Progress, s.Message)) + "\n")
		}
	}

	keys := []key.Binding{m.keys.quit}
	if m.listed {
		keys = []key.Binding{m.keys.back, m.keys.quit}
	}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(keys))
}

func (m *Model) renderResult() string {
	var title string
	if m.state.Status == models.StatusCompleted {
		title = styles.ok.Render("✓ Task Complete")
	} else {
		title = styles.err.Render("✗ Task Failed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nTask: %s\n%s\n", title, m.state.TaskID, m.state.Message)

	if r := m.state.Result; r != nil {
		fmt.Fprintf(&b, "\nAccounts: %d/%d succeeded\n", r.Succeeded(), len(r.Results))
		for _, o := range r.Results {
			if o.Success {
				b.WriteString(styles.ok.Render("  • "+o.AccountID) + "\n")
			} else {
				b.WriteString(styles.warn.Render(fmt.Sprintf("  • %s - %s", o.AccountID, o.Error)) + "\n")
			}
		}
	}

	keys := []key.Binding{m.keys.quit}
	if m.listed {
		keys = []key.Binding{m.keys.back, m.keys.quit}
	}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(keys))
}
