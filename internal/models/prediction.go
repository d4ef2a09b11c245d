package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	BlockHours     = 4
	BlocksPerDay   = 24 / BlockHours
	BucketsPerWeek = 7 * BlocksPerDay
)

// TimeBucket is an ISO weekday (1 = Monday .. 7 = Sunday) and the starting
// hour of a 4-hour block (0, 4, .., 20).
type TimeBucket struct {
	Weekday    int `gorm:"column:weekday;primaryKey" json:"weekday"`
	BlockStart int `gorm:"column:block_start;primaryKey" json:"block_start"`
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func BucketFor(t time.Time) TimeBucket {
	t = t.UTC()
	return TimeBucket{Weekday: ISOWeekday(t), BlockStart: t.Hour() / BlockHours * BlockHours}
}

func BucketForHour(weekday, hour int) TimeBucket {
	return TimeBucket{Weekday: weekday, BlockStart: hour / BlockHours * BlockHours}
}

// AllBuckets returns the 42 buckets of a week ordered by weekday then block.
func AllBuckets() []TimeBucket {
	out := make([]TimeBucket, 0, BucketsPerWeek)
	for wd := 1; wd <= 7; wd++ {
		for h := 0; h < 24; h += BlockHours {
			out = append(out, TimeBucket{Weekday: wd, BlockStart: h})
		}
	}
	return out
}

func (b TimeBucket) Valid() bool {
	return b.Weekday >= 1 && b.Weekday <= 7 && b.BlockStart >= 0 && b.BlockStart < 24 && b.BlockStart%BlockHours == 0
}

// Index is the bucket's position in AllBuckets.
func (b TimeBucket) Index() int { return (b.Weekday-1)*BlocksPerDay + b.BlockStart/BlockHours }

func (b TimeBucket) Less(o TimeBucket) bool {
	if b.Weekday != o.Weekday {
		return b.Weekday < o.Weekday
	}
	return b.BlockStart < o.BlockStart
}

func (b TimeBucket) String() string {
	return fmt.Sprintf("%s %02d:00-%02d:00", isoDayNames[b.Weekday%8], b.BlockStart, b.BlockStart+BlockHours)
}

var isoDayNames = [8]string{"?", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Prediction is the crime likelihood for one district and bucket under one
// model version.
type Prediction struct {
	DistrictID   string     `gorm:"column:district_id;primaryKey" json:"district_id"`
	Bucket       TimeBucket `gorm:"embedded" json:"bucket"`
	ModelVersion int64      `gorm:"column:model_version;primaryKey" json:"model_version"`
	Score        float64    `gorm:"column:score;not null" json:"score"`
	TopCrimeType string     `gorm:"column:top_crime_type" json:"top_crime_type,omitempty"`
	Defaulted    bool       `gorm:"column:defaulted;not null" json:"defaulted"`
}

func (Prediction) TableName() string { return "predictions" }

// ModelRun records one training run. Its version tags every prediction the run
// wrote.
type ModelRun struct {
	Version            int64          `gorm:"column:version;primaryKey;autoIncrement:false" json:"version"`
	TrainedAt          time.Time      `gorm:"column:trained_at;not null" json:"trained_at"`
	Records            int            `gorm:"column:records" json:"records"`
	Districts          int            `gorm:"column:districts" json:"districts"`
	DefaultedDistricts int            `gorm:"column:defaulted_districts" json:"defaulted_districts"`
	HoldoutAccuracy    float64        `gorm:"column:holdout_accuracy" json:"holdout_accuracy"`
	Coefficients       datatypes.JSON `gorm:"column:coefficients;type:jsonb" json:"coefficients,omitempty"`
}

func (ModelRun) TableName() string { return "model_runs" }
