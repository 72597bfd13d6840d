package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Submission is a student's answer to a task. It is scored once, at creation
// time, regardless of the later review outcome. A resubmission overwrites the
// payload and goes back to pending but never produces a second scoring event.
type Submission struct {
	ID            string `db:"id" json:"id"`
	TaskID        string `db:"task_id" json:"task_id" validate:"required"`
	UserID        string `db:"user_id" json:"user_id" validate:"required"`
	Department    string `db:"department" json:"department" validate:"required"`
	Status        string `db:"status" json:"status"`
	Content       string `db:"content" json:"content"`
	SubmittedAt   int64  `db:"submitted_at" json:"submitted_at"`
	ReviewedAt    int64  `db:"reviewed_at" json:"reviewed_at"`
	ReviewComment string `db:"review_comment" json:"review_comment"`
}

func (s *Submission) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// CanReview reports whether a reviewer action is allowed from the current
// status. Only pending submissions accept a verdict.
func (s *Submission) CanReview() bool {
	return s.Status == SubmissionPending
}

// CanResubmit reports whether the submitter may replace the payload. Only
// already-reviewed submissions can go back to pending.
func (s *Submission) CanResubmit() bool {
	return s.Status == SubmissionApproved || s.Status == SubmissionRejected
}

func ValidReviewStatus(status string) error {
	if status != SubmissionApproved && status != SubmissionRejected {
		return fmt.Errorf("invalid review status: %q", status)
	}
	return nil
}
