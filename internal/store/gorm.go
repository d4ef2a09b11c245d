package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

// Geometry columns are read back as WKT; geo.Boundary and geo.Location scan it.
const districtColumns = "id, name, region, kind, ST_AsText(geom) AS geom, loaded_at"

// Gorm implements every repository interface over one PostGIS database.
type Gorm struct {
	db *gorm.DB
}

var (
	_ DistrictStore   = (*Gorm)(nil)
	_ RecordStore     = (*Gorm)(nil)
	_ PredictionStore = (*Gorm)(nil)
	_ AggregateStore  = (*Gorm)(nil)
)

func NewGorm(gdb *gorm.DB) *Gorm { return &Gorm{db: gdb} }

func (s *Gorm) UpsertDistricts(ctx context.Context, districts []models.District) error {
	if len(districts) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.AdvisoryLock(tx, db.LockDistrictImport); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "region", "kind", "geom", "loaded_at"}),
		}).CreateInBatches(&districts, 200).Error; err != nil {
			return fmt.Errorf("upsert districts: %w", err)
		}
		return nil
	})
}

func (s *Gorm) ListDistricts(ctx context.Context, ids []string) ([]models.District, error) {
	var out []models.District
	q := s.db.WithContext(ctx).Model(&models.District{}).Select(districtColumns).Order("id")
	if len(ids) > 0 {
		q = q.Where("id = ANY(?)", pq.Array(ids))
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	return out, nil
}

func (s *Gorm) DistrictIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.District{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list district ids: %w", err)
	}
	return ids, nil
}

func (s *Gorm) InsertRecords(ctx context.Context, records []models.CrimeRecord, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.AdvisoryLock(tx, db.LockSeedCrimes); err != nil {
			return err
		}
		if err := tx.CreateInBatches(&records, batchSize).Error; err != nil {
			return fmt.Errorf("insert crime records: %w", err)
		}
		return nil
	})
}

func (s *Gorm) InsertSuspects(ctx context.Context, suspects []models.Suspect, batchSize int) error {
	if len(suspects) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.AdvisoryLock(tx, db.LockSeedCrimes); err != nil {
			return err
		}
		if err := tx.CreateInBatches(&suspects, batchSize).Error; err != nil {
			return fmt.Errorf("insert suspects: %w", err)
		}
		return nil
	})
}

func (s *Gorm) RecordFacts(ctx context.Context, from, to time.Time) ([]RecordFact, error) {
	var out []RecordFact
	err := s.db.WithContext(ctx).Model(&models.CrimeRecord{}).
		Select("district_id, crime_type, occurred_at").
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Order("district_id, occurred_at").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("read record facts: %w", err)
	}
	return out, nil
}

func (s *Gorm) LatestModelVersion(ctx context.Context) (int64, error) {
	return latestVersion(s.db.WithContext(ctx))
}

func latestVersion(tx *gorm.DB) (int64, error) {
	var v int64
	if err := tx.Raw("SELECT COALESCE(MAX(version), 0) FROM model_runs").Scan(&v).Error; err != nil {
		return 0, fmt.Errorf("latest model version: %w", err)
	}
	return v, nil
}

func (s *Gorm) SaveModelRun(ctx context.Context, run models.ModelRun, preds []models.Prediction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.AdvisoryLock(tx, db.LockTrain); err != nil {
			return err
		}
		latest, err := latestVersion(tx)
		if err != nil {
			return err
		}
		if run.Version <= latest {
			return fmt.Errorf("model version %d is not newer than stored version %d", run.Version, latest)
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("insert model run: %w", err)
		}
		if len(preds) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "district_id"}, {Name: "weekday"}, {Name: "block_start"}, {Name: "model_version"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"score", "top_crime_type", "defaulted"}),
		}).CreateInBatches(&preds, 1000).Error; err != nil {
			return fmt.Errorf("upsert predictions: %w", err)
		}
		return nil
	})
}

func (s *Gorm) GetModelRun(ctx context.Context, version int64) (*models.ModelRun, error) {
	var run models.ModelRun
	err := s.db.WithContext(ctx).Where("version = ?", version).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model run %d: %w", version, err)
	}
	return &run, nil
}

func (s *Gorm) ListPredictions(ctx context.Context, q PredictionQuery) ([]models.Prediction, error) {
	var out []models.Prediction
	tx := s.db.WithContext(ctx).Where("model_version = ?", q.Version)
	if len(q.DistrictIDs) > 0 {
		tx = tx.Where("district_id = ANY(?)", pq.Array(q.DistrictIDs))
	}
	if q.Weekday != 0 {
		tx = tx.Where("weekday = ?", q.Weekday)
	}
	if q.BlockStart >= 0 {
		tx = tx.Where("block_start = ?", q.BlockStart)
	}
	if err := tx.Order("district_id, weekday, block_start").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return out, nil
}

func (s *Gorm) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Table("crime_records AS r").Joins("JOIN districts d ON d.id = r.district_id")
	if f.regionSet() {
		q = q.Where("d.region = ?", f.Region)
	}
	if len(f.Types) > 0 {
		q = q.Where("r.crime_type = ANY(?)", pq.Array(f.Types))
	}
	if len(f.DistrictIDs) > 0 {
		q = q.Where("r.district_id = ANY(?)", pq.Array(f.DistrictIDs))
	}
	if !f.From.IsZero() {
		q = q.Where("r.occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("r.occurred_at < ?", f.To)
	}
	return q
}

func (s *Gorm) DistrictCounts(ctx context.Context, f Filter, limit int) ([]DistrictCount, error) {
	var out []DistrictCount
	q := s.filtered(ctx, f).
		Select("d.id AS district_id, d.name, d.region, ST_AsText(d.geom) AS geom, COUNT(*) AS crime_count").
		Group("d.id").
		Order("crime_count DESC, d.id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("district counts: %w", err)
	}
	return out, nil
}

func (s *Gorm) TypeCounts(ctx context.Context, f Filter) ([]TypeCount, error) {
	var out []TypeCount
	err := s.filtered(ctx, f).
		Select("r.crime_type, COUNT(*) AS crime_count").
		Group("r.crime_type").
		Order("crime_count DESC, r.crime_type").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("type counts: %w", err)
	}
	return out, nil
}

func (s *Gorm) HourlyCounts(ctx context.Context, f Filter) ([]HourCount, error) {
	var out []HourCount
	err := s.filtered(ctx, f).
		Select("EXTRACT(HOUR FROM r.occurred_at AT TIME ZONE 'UTC')::int AS hour, COUNT(*) AS crime_count").
		Group("hour").
		Order("hour").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	return out, nil
}

func (s *Gorm) CrimeTypes(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.CrimeRecord{}).
		Distinct("crime_type").
		Order("crime_type").
		Pluck("crime_type", &out).Error
	if err != nil {
		return nil, fmt.Errorf("crime types: %w", err)
	}
	return out, nil
}
