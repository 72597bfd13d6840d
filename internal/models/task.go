package models

import (
	"github.com/go-playground/validator/v10"
)

// TaskDeadline is the contextual fact the scoring policy needs about a task.
// Deadline is unix microseconds; a submission at exactly the deadline is
// still on time.
type TaskDeadline struct {
	TaskID     string `db:"task_id" json:"task_id" validate:"required"`
	Department string `db:"department" json:"department" validate:"required"`
	Title      string `db:"title" json:"title"`
	Deadline   int64  `db:"deadline" json:"deadline" validate:"required"`
}

func (t *TaskDeadline) Validate() error {
	validate := validator.New()
	return validate.Struct(t)
}
