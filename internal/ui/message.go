package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tixd/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTasksFetched MsgKind = iota
	MsgWatchStarted
	MsgStateUpdate
	MsgStreamEnded
)

type tasksFetched struct {
	tasks []models.TaskState
	err   error
}

type watchStarted struct {
	taskID string
	stream StateStream
	err    error
}

type stateUpdate struct {
	stream StateStream
	state  models.TaskState
}

type streamEnded struct {
	stream StateStream
	err    error
}

// tasksFetchedMsg is the constructor for [MsgTasksFetched]
func tasksFetchedMsg(tasks []models.TaskState, err error) Msg {
	return Msg{kind: MsgTasksFetched, data: tasksFetched{tasks, err}}
}

// watchStartedMsg is the constructor for [MsgWatchStarted]
func watchStartedMsg(taskID string, stream StateStream, err error) Msg {
	return Msg{kind: MsgWatchStarted, data: watchStarted{taskID, stream, err}}
}

// stateUpdateMsg is the constructor for [MsgStateUpdate]
func stateUpdateMsg(stream StateStream, state models.TaskState) Msg {
	return Msg{kind: MsgStateUpdate, data: stateUpdate{stream, state}}
}

// streamEndedMsg is the constructor for [MsgStreamEnded]. err is nil when the stream ended normally.
func streamEndedMsg(stream StateStream, err error) Msg {
	return Msg{kind: MsgStreamEnded, data: streamEnded{stream, err}}
}
