// Package repositories implements durable storage for ticket tasks and the accounts they run for.
//
// Key Implementations:
//   - [AccountRepository] : user_accounts rows with find-or-create by external account ID
//   - [TaskRepository] : ticket_tasks rows plus the task_logs transition history
//   - [TaskStore] : adapts both repositories to tasks.Persistence over SQLite
//   - [PostgresStore] : the same contract over a pgx connection pool
//
// Sequence numbers provide stable, human-readable ordering (e.g., task #42) independent of UUIDs and creation
// timestamps. The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence
// tables.
package repositories
