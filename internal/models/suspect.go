package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SuspectTags are the labels a generated suspect may carry.
var SuspectTags = []string{"repeat offender", "gang affiliation", "petty theft"}

// Suspect is a synthetic person generated alongside a record batch. Tags is
// a JSON object {"tags": [...]}.
type Suspect struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	DateOfBirth time.Time      `gorm:"column:date_of_birth;type:date;not null" json:"date_of_birth"`
	Tags        datatypes.JSON `gorm:"column:tags;type:jsonb;not null" json:"tags"`
	BatchID     uuid.UUID      `gorm:"column:batch_id;type:uuid" json:"batch_id"`
}

func (Suspect) TableName() string { return "suspects" }
