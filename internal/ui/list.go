package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tixd/internal/models"
)

var _ list.Item = taskItem{}

// taskItem wraps [models.TaskState] to implement [list.Item].
type taskItem struct {
	state models.TaskState
}

func (i taskItem) FilterValue() string { return i.state.TaskID }
func (i taskItem) Title() string       { return i.state.TaskID }
func (i taskItem) Description() string {
	desc := fmt.Sprintf("%s • %d%%", i.state.Status, i.state.Progress)
	if i.state.Message != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.state.Message)
	}
	return desc
}
