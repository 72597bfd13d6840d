package models

import "time"

type ChatDepartmentMapping struct {
	Department      string    `json:"department"`
	Name            string    `json:"name"`
	Comment         string    `json:"comment"`
	AssociationTime time.Time `json:"association_time"`
	RegisteredBy    int64     `json:"registered_by"`
}
