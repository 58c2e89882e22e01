// Package services implements the HTTP clients tixd talks to.
//
// # Automation
//
// [AutomationService] implements tasks.Automation by posting each account and its ticket settings to the external
// purchase automation service. The same service solves captchas, which the server proxies unchanged.
// [SimulatedAutomation] stands in for it in demos and local runs.
//
// # Task API
//
// [TaskClient] drives a running tixd server: submit jobs, read task state, and follow a task's transitions over the
// websocket endpoint with [Watcher].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrAPIRequest] : transport failure or non-2xx response
//   - [shared.ErrTaskNotFound] : the server does not know the task
//   - [shared.ErrInvalidJob] : the server rejected the job
package services
