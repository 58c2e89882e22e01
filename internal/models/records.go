package models

import (
	"errors"
	"fmt"
	"time"
)

// UserAccount is a persisted purchasing account that ticket task rows refer to.
type UserAccount struct {
	id        string
	sequence  int
	accountID string
	username  string
	password  string
	platform  string
	active    bool
	createdAt time.Time
	updatedAt time.Time
}

// NewUserAccount creates an active [UserAccount] from a job account.
func NewUserAccount(sequence int, a Account) *UserAccount {
	now := time.Now()
	platform := a.Platform
	if platform == "" {
		platform = "damai"
	}
	return &UserAccount{
		sequence:  sequence,
		accountID: a.ID,
		username:  a.Username,
		password:  a.Password,
		platform:  platform,
		active:    true,
		createdAt: now,
		updatedAt: now,
	}
}

func (u *UserAccount) ID() string           { return u.id }
func (u *UserAccount) Sequence() int        { return u.sequence }
func (u *UserAccount) AccountID() string    { return u.accountID }
func (u *UserAccount) Username() string     { return u.username }
func (u *UserAccount) Password() string     { return u.password }
func (u *UserAccount) Platform() string     { return u.platform }
func (u *UserAccount) Active() bool         { return u.active }
func (u *UserAccount) CreatedAt() time.Time { return u.createdAt }
func (u *UserAccount) UpdatedAt() time.Time { return u.updatedAt }

func (u *UserAccount) SetID(id string)          { u.id = id }
func (u *UserAccount) SetSequence(seq int)      { u.sequence = seq }
func (u *UserAccount) SetActive(active bool)    { u.active = active }
func (u *UserAccount) SetCreatedAt(t time.Time) { u.createdAt = t }
func (u *UserAccount) SetUpdatedAt(t time.Time) { u.updatedAt = t }

// SetCredentials replaces the stored login pair.
func (u *UserAccount) SetCredentials(user, pass string) {
	u.username = user
	u.password = pass
}

// Validate checks that the account carries an external identifier.
func (u *UserAccount) Validate() error {
	if u.accountID == "" {
		return errors.New("account_id is required")
	}
	return nil
}

// TaskRecord is the durable mirror of a task's latest state together with the job that started it.
type TaskRecord struct {
	id        string
	sequence  int
	taskID    string
	accountID string
	settings  TicketSettings
	job       Job
	status    Status
	progress  int
	message   string
	result    *TaskResult
	createdAt time.Time
	updatedAt time.Time
}

// NewTaskRecord creates a pending [TaskRecord] for job.
func NewTaskRecord(sequence int, taskID string, job Job) *TaskRecord {
	now := time.Now()
	return &TaskRecord{
		sequence:  sequence,
		taskID:    taskID,
		settings:  job.Settings,
		job:       job,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *TaskRecord) ID() string               { return r.id }
func (r *TaskRecord) Sequence() int            { return r.sequence }
func (r *TaskRecord) TaskID() string           { return r.taskID }
func (r *TaskRecord) AccountID() string        { return r.accountID }
func (r *TaskRecord) Settings() TicketSettings { return r.settings }
func (r *TaskRecord) Job() Job                 { return r.job }
func (r *TaskRecord) Status() Status           { return r.status }
func (r *TaskRecord) Progress() int            { return r.progress }
func (r *TaskRecord) Message() string          { return r.message }
func (r *TaskRecord) Result() *TaskResult      { return r.result }
func (r *TaskRecord) CreatedAt() time.Time     { return r.createdAt }
func (r *TaskRecord) UpdatedAt() time.Time     { return r.updatedAt }

func (r *TaskRecord) SetID(id string)          { r.id = id }
func (r *TaskRecord) SetSequence(seq int)      { r.sequence = seq }
func (r *TaskRecord) SetAccountID(id string)   { r.accountID = id }
func (r *TaskRecord) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *TaskRecord) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// ApplyState copies the mutable fields of s onto the record.
func (r *TaskRecord) ApplyState(s TaskState) {
	r.status = s.Status
	r.progress = s.Progress
	r.message = s.Message
	r.result = s.Result
	if !s.UpdatedAt.IsZero() {
		r.updatedAt = s.UpdatedAt
	}
}

// State returns the record as a [TaskState].
func (r *TaskRecord) State() TaskState {
	return TaskState{
		TaskID:    r.taskID,
		Status:    r.status,
		Progress:  r.progress,
		Message:   r.message,
		Result:    r.result,
		UpdatedAt: r.updatedAt,
	}
}

// Validate checks the identifier and the status/progress pair.
func (r *TaskRecord) Validate() error {
	if r.taskID == "" {
		return errors.New("task_id is required")
	}
	if !r.status.Valid() {
		return fmt.Errorf("unknown status %q", r.status)
	}
	if r.progress < 0 || r.progress > 100 {
		return fmt.Errorf("progress %d out of range", r.progress)
	}
	return nil
}
