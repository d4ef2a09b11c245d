package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/crime-analytics/internal/geo"
)

// CrimeRecord is a single synthetic incident. Records are written in bulk and
// never updated.
type CrimeRecord struct {
	ID          uuid.UUID    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DistrictID  string       `gorm:"column:district_id;not null;index" json:"district_id"`
	CrimeType   string       `gorm:"column:crime_type;not null" json:"crime_type"`
	Description string       `gorm:"column:description" json:"description"`
	OccurredAt  time.Time    `gorm:"column:occurred_at;not null" json:"occurred_at"`
	Location    geo.Location `gorm:"column:location;type:geometry(Point,4326)" json:"-"`
	BatchID     uuid.UUID    `gorm:"column:batch_id;type:uuid" json:"batch_id"`
}

func (CrimeRecord) TableName() string { return "crime_records" }
