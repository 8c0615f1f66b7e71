package models

import "time"

// Task is a to-do item under a client, a company, or both.
// A task is complete when CompletedTime is set.
type Task struct {
	ID            string     `json:"id" db:"id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	DueDate       *time.Time `json:"dueDate" db:"due_date"`
	CompletedTime *time.Time `json:"completedTime" db:"completed_time"`
	DateAdded     time.Time  `json:"dateAdded" db:"date_added"`
	ClientID      *string    `json:"clientId" db:"client_id"`
	CompanyID     *string    `json:"companyId" db:"company_id"`
}

// Complete reports whether the task has been completed
func (t Task) Complete() bool {
	return t.CompletedTime != nil
}

// ClientContext is the client detail attached to tasks and meetings when
// building the daily plan prompt.
type ClientContext struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	CompanyName *string `json:"companyName,omitempty"`
}

// TaskContext is a task plus the client it belongs to, if any
type TaskContext struct {
	Task
	Client *ClientContext `json:"client"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description" validate:"required"`
	DueDate     *time.Time `json:"dueDate"`
	CompanyID   *string    `json:"companyId"`
	ClientID    *string    `json:"clientId"`
}

type UpdateTaskRequest struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description" validate:"required"`
	DueDate     *time.Time `json:"dueDate"`
	CompanyID   *string    `json:"companyId"`
	ClientID    *string    `json:"clientId"`
}

// TaskCompletion is one entry of task.updateCompletion(s)
type TaskCompletion struct {
	ID       string `json:"id" validate:"required"`
	Complete bool   `json:"complete"`
}

// CompletionResult reports how many rows one completion update touched
type CompletionResult struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}
