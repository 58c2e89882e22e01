package tasks

import (
	"fmt"

	"github.com/desertthunder/tixd/internal/models"
)

const (
	progressProxy     = 10
	progressScheduled = 20
	progressFirstRun  = 30
	progressAccounts  = 50
	progressPerStep   = 10
)

// accountProgress is the progress after processed accounts have finished, capped at 100.
func accountProgress(processed int) int {
	return min(100, progressAccounts+processed*progressPerStep)
}

func pendingState(taskID string) models.TaskState {
	return models.NewTaskState(taskID, models.StatusPending, 0, "Task created, waiting to execute")
}

func startedState(taskID string) models.TaskState {
	return models.NewTaskState(taskID, models.StatusStarted, 0, "Ticket task started")
}

func proxyState(taskID string, proxy *models.Proxy) models.TaskState {
	return models.NewTaskState(taskID, models.StatusProcessing, progressProxy,
		fmt.Sprintf("Using proxy %s", proxy.Address()))
}

func scheduledState(taskID string, settings models.TicketSettings) models.TaskState {
	buyTime := settings.AutoBuyTime
	if buyTime == "" {
		buyTime = "none"
	}
	return models.NewTaskState(taskID, models.StatusProcessing, progressScheduled,
		fmt.Sprintf("Scheduled ticket task, retry interval: %ds, auto buy time: %s", settings.EffectiveRetryInterval(), buyTime))
}

func accountStartState(taskID string, account models.Account, step, total, progress int) models.TaskState {
	return models.NewTaskState(taskID, models.StatusProcessing, progress,
		fmt.Sprintf("[%d/%d] Processing account %s", step, total, account.DisplayID()))
}

func accountSucceededState(taskID string, account models.Account, step, total int) models.TaskState {
	return models.NewTaskState(taskID, models.StatusProcessing, accountProgress(step),
		fmt.Sprintf("[%d/%d] Account %s ticket task succeeded", step, total, account.DisplayID()))
}

func accountFailedState(taskID string, account models.Account, step, total int, err error) models.TaskState {
	return models.NewTaskState(taskID, models.StatusProcessing, accountProgress(step),
		fmt.Sprintf("[%d/%d] Account %s ticket task failed: %v", step, total, account.DisplayID(), err))
}

func completedState(taskID string, result *models.TaskResult) models.TaskState {
	state := models.NewTaskState(taskID, models.StatusCompleted, 100, "All account ticket tasks finished")
	state.Result = result
	return state
}

func failedState(taskID string, err error) models.TaskState {
	return models.NewTaskState(taskID, models.StatusFailed, 0, fmt.Sprintf("Task execution failed: %v", err))
}
