// Package models defines domain entities and persistence interfaces for the tixd ticket task service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs exchanged with API clients and workers
//   - [Job] : A ticket task request (accounts, settings, optional proxy)
//   - [Account] : One account the automation routine purchases for
//   - [TicketSettings] : Ticket/session identifiers plus free-form automation fields
//   - [TaskState] : A single status transition of a task
//   - [TaskResult] : Per-account outcomes attached to a completed task
//
// 2. Persistent Entities: Database-backed models mirroring in-memory state
//   - [TaskRecord] : Durable copy of a task and its latest status
//   - [UserAccount] : Accounts referenced by task records
//
// Persistent entities implement the Model interface providing ID generation, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
