// Package store defines the repository interfaces the jobs and the dashboard
// depend on, and their gorm/PostGIS implementation.
package store

import (
	"context"
	"time"

	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

// DistrictStore persists district boundaries.
type DistrictStore interface {
	// UpsertDistricts writes all districts in one transaction; an existing id
	// is overwritten.
	UpsertDistricts(ctx context.Context, districts []models.District) error
	// ListDistricts returns districts with geometry ordered by id. An empty
	// ids slice means every district.
	ListDistricts(ctx context.Context, ids []string) ([]models.District, error)
	// DistrictIDs returns every district id in ascending order.
	DistrictIDs(ctx context.Context) ([]string, error)
}

// RecordStore persists crime records and the suspects generated with them.
// Inserts are additive.
type RecordStore interface {
	InsertRecords(ctx context.Context, records []models.CrimeRecord, batchSize int) error
	InsertSuspects(ctx context.Context, suspects []models.Suspect, batchSize int) error
	// RecordFacts returns the training view of records with occurred_at in
	// [from, to), ordered by district then time.
	RecordFacts(ctx context.Context, from, to time.Time) ([]RecordFact, error)
}

// PredictionStore persists model runs and their predictions.
type PredictionStore interface {
	// LatestModelVersion is 0 when no model has been trained.
	LatestModelVersion(ctx context.Context) (int64, error)
	// SaveModelRun stores run and upserts preds in one transaction. The run's
	// version must be greater than every stored version.
	SaveModelRun(ctx context.Context, run models.ModelRun, preds []models.Prediction) error
	GetModelRun(ctx context.Context, version int64) (*models.ModelRun, error)
	ListPredictions(ctx context.Context, q PredictionQuery) ([]models.Prediction, error)
}

// AggregateStore answers the dashboard's read-only queries.
type AggregateStore interface {
	// DistrictCounts returns districts with at least one matching record,
	// ordered by count descending then id. limit <= 0 returns all.
	DistrictCounts(ctx context.Context, f Filter, limit int) ([]DistrictCount, error)
	TypeCounts(ctx context.Context, f Filter) ([]TypeCount, error)
	// HourlyCounts returns only hours that have records, ascending.
	HourlyCounts(ctx context.Context, f Filter) ([]HourCount, error)
	CrimeTypes(ctx context.Context) ([]string, error)
}

// Filter narrows aggregate queries. Zero values mean unrestricted; To is
// exclusive.
type Filter struct {
	Region      models.Region
	Types       []string
	DistrictIDs []string
	From        time.Time
	To          time.Time
}

func (f Filter) regionSet() bool { return f.Region != "" && f.Region != models.RegionAll }

// Matches applies the filter to one record whose district is in region.
func (f Filter) Matches(region models.Region, r RecordFact) bool {
	if f.regionSet() && region != f.Region {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, r.CrimeType) {
		return false
	}
	if len(f.DistrictIDs) > 0 && !contains(f.DistrictIDs, r.DistrictID) {
		return false
	}
	if !f.From.IsZero() && r.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

type PredictionQuery struct {
	Version     int64
	DistrictIDs []string
	Weekday     int // 0 = any
	BlockStart  int // -1 = any
}

func (q PredictionQuery) Matches(p models.Prediction) bool {
	if p.ModelVersion != q.Version {
		return false
	}
	if len(q.DistrictIDs) > 0 && !contains(q.DistrictIDs, p.DistrictID) {
		return false
	}
	if q.Weekday != 0 && p.Bucket.Weekday != q.Weekday {
		return false
	}
	if q.BlockStart >= 0 && p.Bucket.BlockStart != q.BlockStart {
		return false
	}
	return true
}

// RecordFact is the subset of a record the trainer and aggregates need.
type RecordFact struct {
	DistrictID string    `gorm:"column:district_id"`
	CrimeType  string    `gorm:"column:crime_type"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

type DistrictCount struct {
	DistrictID string        `gorm:"column:district_id"`
	Name       string        `gorm:"column:name"`
	Region     models.Region `gorm:"column:region"`
	Count      int64         `gorm:"column:crime_count"`
	Geometry   geo.Boundary  `gorm:"column:geom"`
}

type TypeCount struct {
	CrimeType string `gorm:"column:crime_type" json:"crime_type"`
	Count     int64  `gorm:"column:crime_count" json:"count"`
}

type HourCount struct {
	Hour  int   `gorm:"column:hour" json:"hour"`
	Count int64 `gorm:"column:crime_count" json:"count"`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
