package models

import (
	"github.com/go-playground/validator/v10"
)

// Student is the roster row the ledger reads department and section from.
// User management itself lives in a collaborator service; this is the
// read-mostly projection the sweep and the ledger need.
type Student struct {
	UserID     string `db:"user_id" json:"user_id" validate:"required"`
	Name       string `db:"name" json:"name"`
	Department string `db:"department" json:"department" validate:"required"`
	Section    string `db:"section" json:"section"`
}

func (s *Student) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}
