// Package crimegen generates synthetic crime records inside district
// boundaries.
package crimegen

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

const jobName = "seed-crimes"

type Config struct {
	// Count is spread uniformly at random across the districts. PerDistrict,
	// when set, gives every district exactly that many instead.
	Count       int
	PerDistrict int
	// Suspects is the number of people generated with the batch.
	Suspects int
	// DistrictIDs restricts generation; empty means every district.
	DistrictIDs []string
	From        time.Time
	To          time.Time
	MaxAttempts int
	Workers     int
	BatchSize   int
	// Seed 0 picks a time-based seed, reported in Result.
	Seed    int64
	Catalog *catalog.Catalog
	DryRun  bool
	Now     func() time.Time
}

type Result struct {
	BatchID    uuid.UUID
	Seed       int64
	Records    int
	Suspects   int
	Districts  int
	Skipped    []string
	Attempts   int64
	Rejections int64
}

// Run generates records for the selected districts plus cfg.Suspects
// suspects, inserting each set in one transaction. Districts whose geometry
// cannot be sampled are logged and skipped; only store and cancellation
// errors are returned.
func Run(ctx context.Context, cfg Config, districts store.DistrictStore, records store.RecordStore, log *zap.Logger) (*Result, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Catalog == nil {
		c, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = c
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = geo.DefaultMaxAttempts
	}
	if cfg.Count < 0 || cfg.PerDistrict < 0 || cfg.Suspects < 0 {
		return nil, fmt.Errorf("%w: record counts must not be negative", apperrors.ErrInvalidInput)
	}
	started := cfg.Now()
	if cfg.Seed == 0 {
		cfg.Seed = started.UnixNano()
	}

	hours, err := NewHourRange(cfg.From, cfg.To)
	if err != nil {
		return nil, err
	}

	ds, err := districts.ListDistricts(ctx, cfg.DistrictIDs)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, apperrors.ErrNoDistricts
	}
	if len(cfg.DistrictIDs) > 0 && len(ds) < len(cfg.DistrictIDs) {
		log.Warn("Some requested districts do not exist",
			zap.Int("requested", len(cfg.DistrictIDs)), zap.Int("found", len(ds)))
	}

	res := &Result{
		BatchID: BatchID(cfg.Seed, started.UnixNano()),
		Seed:    cfg.Seed,
	}
	log.Info("Generating crime records",
		zap.String("batch_id", res.BatchID.String()),
		zap.Int64("seed", cfg.Seed),
		zap.Int("districts", len(ds)),
		zap.Time("from", hours.First),
		zap.Int("hours", hours.Hours))

	counts := allocate(len(ds), cfg.Count, cfg.PerDistrict, cfg.Seed)

	// Every selected district is checked, including those drawn zero records,
	// so the skip report covers all of them.
	batches := make([]districtBatch, len(ds))
	for i, d := range ds {
		if err := geo.Validate(d.Geometry.MultiPolygon); err != nil {
			batches[i].err = apperrors.NewGenerationError(d.ID, 0, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range ds {
		if counts[i] == 0 || batches[i].err != nil {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batches[i] = generateDistrict(ds[i], counts[i], res.BatchID, hours, cfg.Catalog,
				districtSeed(cfg.Seed, ds[i].ID), cfg.MaxAttempts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.CrimeRecord
	for i, b := range batches {
		res.Attempts += b.attempts
		res.Rejections += b.rejections
		if b.err != nil {
			log.Warn("Skipping district", zap.String("district_id", ds[i].ID), zap.Error(b.err))
			res.Skipped = append(res.Skipped, ds[i].ID)
			continue
		}
		if len(b.records) > 0 {
			res.Districts++
			all = append(all, b.records...)
		}
	}
	res.Records = len(all)

	suspects, err := generateSuspects(cfg.Suspects, res.BatchID, districtSeed(cfg.Seed, "suspects"), started)
	if err != nil {
		return nil, err
	}
	res.Suspects = len(suspects)

	metrics.SamplingAttemptsTotal.Add(float64(res.Attempts))
	metrics.SamplingRejectionsTotal.Add(float64(res.Rejections))
	metrics.DistrictsSkippedTotal.WithLabelValues(jobName).Add(float64(len(res.Skipped)))

	if cfg.DryRun {
		log.Info("Dry run: no records written", zap.Int("records", res.Records), zap.Int("suspects", res.Suspects))
		return res, nil
	}
	if err := records.InsertSuspects(ctx, suspects, cfg.BatchSize); err != nil {
		return nil, err
	}
	metrics.SuspectsGeneratedTotal.Add(float64(res.Suspects))
	if err := records.InsertRecords(ctx, all, cfg.BatchSize); err != nil {
		return nil, err
	}
	metrics.RecordsGeneratedTotal.Add(float64(res.Records))

	log.Info("Crime records inserted",
		zap.Int("records", res.Records),
		zap.Int("suspects", res.Suspects),
		zap.Int("districts", res.Districts),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int64("rejections", res.Rejections))
	return res, nil
}

// allocate assigns per-district record counts. With perDistrict set every
// district gets that many; otherwise each of total records picks a district
// uniformly at random.
func allocate(n, total, perDistrict int, seed int64) []int {
	counts := make([]int, n)
	if perDistrict > 0 {
		for i := range counts {
			counts[i] = perDistrict
		}
		return counts
	}
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < total; i++ {
		counts[r.Intn(n)]++
	}
	return counts
}
