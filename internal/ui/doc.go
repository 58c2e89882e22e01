// Package ui implements an interactive task monitor using bubbletea's Elm architecture.
//
// The monitor has three views:
//  1. [TaskListView] : Browse the tasks a server holds
//  2. [WatchView] : Follow one task's transitions with a progress bar and recent messages
//  3. [ResultView] : Display per-account outcomes once the task is finished
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Transitions are read from a [StateStream] one at a time by a command, so the UI never blocks on the network.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
