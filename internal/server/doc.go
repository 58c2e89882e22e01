// Package server exposes the task orchestrator over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally, so routes are "METHOD /path" patterns and
// path wildcards are read with [http.Request.PathValue].
//
// # Endpoints
//
//	GET  /                              service banner
//	GET  /healthz                       liveness plus task and subscriber counts
//	POST /api/ticket/task               submit a job, 202 with the new task ID
//	GET  /api/ticket/task/{id}          latest state of a task
//	GET  /api/ticket/tasks              every known task
//	GET  /api/ticket/task/{id}/stream   server-sent events for one task
//	GET  /ws/task/{id}                  websocket frames for one task
//	GET  /ws/tasks                      websocket frames for every task
//	GET  /api/config                    configuration with credentials removed
//	POST /api/captcha/solve             proxied to the automation service
//
// Errors are JSON objects with a single "detail" field.
//
// # Streams
//
// Each stream connection holds one hub subscription. The first frame is the task's state at subscribe time, so a
// client connecting late still sees where the task stands. Per-task streams end after the terminal frame; an unknown
// task ID is rejected with 404 (SSE) or close code 1008 (websocket). A websocket whose subscription was dropped for
// falling behind is closed with 1013 so the client can reconnect; 1001 means the server is shutting down.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
