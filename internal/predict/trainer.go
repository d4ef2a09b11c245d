// Package predict fits the crime likelihood model and writes per-bucket
// predictions for every district.
package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

const jobName = "train-predictions"

type Config struct {
	MinRecords   int
	LookbackDays int
	ScoreMin     float64
	ScoreMax     float64
	NeutralScore float64
	Epochs       int
	LearningRate float64
	Holdout      float64
	Seed         int64
	DryRun       bool
	Now          func() time.Time
}

type Result struct {
	Version     int64
	Records     int
	Districts   int
	Defaulted   int
	Predictions int
	Fitted      bool
	Accuracy    float64
}

// Run trains on the lookback window and stores one prediction per district
// and bucket under a new model version. Districts with too few records get
// the neutral score; that is logged, never returned.
func Run(ctx context.Context, cfg Config, districts store.DistrictStore, records store.RecordStore, predictions store.PredictionStore, log *zap.Logger) (*Result, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ScoreMin >= cfg.ScoreMax {
		return nil, fmt.Errorf("%w: score bounds [%v, %v]", apperrors.ErrInvalidInput, cfg.ScoreMin, cfg.ScoreMax)
	}
	if cfg.NeutralScore < cfg.ScoreMin || cfg.NeutralScore > cfg.ScoreMax {
		return nil, fmt.Errorf("%w: neutral score %v outside [%v, %v]", apperrors.ErrInvalidInput, cfg.NeutralScore, cfg.ScoreMin, cfg.ScoreMax)
	}
	if cfg.LookbackDays <= 0 {
		return nil, fmt.Errorf("%w: lookback days must be positive", apperrors.ErrInvalidInput)
	}

	ids, err := districts.DistrictIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.ErrNoDistricts
	}

	to := cfg.Now().UTC()
	from := to.AddDate(0, 0, -cfg.LookbackDays)
	facts, err := records.RecordFacts(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := Aggregate(facts, ids, to, cfg.LookbackDays)

	var eligible []*DistrictStats
	defaulted := map[string]bool{}
	for _, s := range stats {
		if s.Records < cfg.MinRecords {
			terr := &apperrors.TrainingError{DistrictID: s.DistrictID, Records: s.Records, Required: cfg.MinRecords}
			log.Warn("Assigning neutral score", zap.Error(terr))
			defaulted[s.DistrictID] = true
			continue
		}
		eligible = append(eligible, s)
	}

	res := &Result{Records: len(facts), Districts: len(stats), Defaulted: len(defaulted)}

	var model *Model
	if len(eligible) > 0 {
		model, res.Accuracy = fit(eligible, cfg)
		res.Fitted = true
		log.Info("Model fitted",
			zap.Int("districts", len(eligible)),
			zap.Float64("holdout_accuracy", res.Accuracy))
	} else {
		log.Warn("No district has enough records; every district gets the neutral score",
			zap.Int("min_records", cfg.MinRecords))
	}

	latest, err := predictions.LatestModelVersion(ctx)
	if err != nil {
		return nil, err
	}
	res.Version = latest + 1

	preds := buildPredictions(stats, defaulted, model, res.Version, cfg)
	res.Predictions = len(preds)

	coeffs, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode coefficients: %w", err)
	}
	run := models.ModelRun{
		Version:            res.Version,
		TrainedAt:          to,
		Records:            res.Records,
		Districts:          res.Districts,
		DefaultedDistricts: res.Defaulted,
		HoldoutAccuracy:    res.Accuracy,
		Coefficients:       datatypes.JSON(coeffs),
	}

	metrics.DistrictsSkippedTotal.WithLabelValues(jobName).Add(float64(res.Defaulted))
	if cfg.DryRun {
		log.Info("Dry run: no predictions written", zap.Int("predictions", res.Predictions))
		return res, nil
	}
	if err := predictions.SaveModelRun(ctx, run, preds); err != nil {
		return nil, err
	}
	metrics.PredictionsWrittenTotal.Add(float64(res.Predictions))
	metrics.ModelVersion.Set(float64(res.Version))
	metrics.HoldoutAccuracy.Set(res.Accuracy)

	log.Info("Predictions stored",
		zap.Int64("model_version", res.Version),
		zap.Int("predictions", res.Predictions),
		zap.Int("defaulted_districts", res.Defaulted))
	return res, nil
}

// fit builds the dense grid for eligible districts, holds out a stratified
// share for scoring and fits on the rest.
func fit(eligible []*DistrictStats, cfg Config) (*Model, float64) {
	names := make([]string, len(eligible))
	var samples []Sample
	for i, s := range eligible {
		names[i] = s.DistrictID
		for wd := 0; wd < 7; wd++ {
			for h := 0; h < 24; h++ {
				samples = append(samples, Sample{
					District: i,
					Weekday:  wd,
					Hour:     h,
					Trend:    s.Trend,
					Label:    s.Hourly[wd][h] > 0,
				})
			}
		}
	}

	train, test := StratifiedSplit(samples, cfg.Holdout, cfg.Seed)
	model := Fit(names, train, FitOptions{Epochs: cfg.Epochs, LearningRate: cfg.LearningRate, L2: 1e-4})
	if len(test) == 0 {
		return model, model.Accuracy(train)
	}
	return model, model.Accuracy(test)
}

// buildPredictions emits every bucket for every district, ordered by district
// then bucket. Hourly probabilities are averaged into their 4-hour bucket.
func buildPredictions(stats []*DistrictStats, defaulted map[string]bool, model *Model, version int64, cfg Config) []models.Prediction {
	index := map[string]int{}
	if model != nil {
		for i, id := range model.Districts {
			index[id] = i
		}
	}

	buckets := models.AllBuckets()
	out := make([]models.Prediction, 0, len(stats)*len(buckets))
	for _, s := range stats {
		di, fitted := index[s.DistrictID]
		for _, b := range buckets {
			p := models.Prediction{
				DistrictID:   s.DistrictID,
				Bucket:       b,
				ModelVersion: version,
				TopCrimeType: s.TopType(b),
			}
			if defaulted[s.DistrictID] || !fitted {
				p.Score = cfg.NeutralScore
				p.Defaulted = true
			} else {
				sum := 0.0
				for h := b.BlockStart; h < b.BlockStart+models.BlockHours; h++ {
					sum += model.Prob(Sample{District: di, Weekday: b.Weekday - 1, Hour: h, Trend: s.Trend})
				}
				p.Score = Clamp(sum/models.BlockHours, cfg.ScoreMin, cfg.ScoreMax, cfg.NeutralScore)
			}
			out = append(out, p)
		}
	}
	return out
}

// Clamp bounds v to [lo, hi]; NaN becomes neutral.
func Clamp(v, lo, hi, neutral float64) float64 {
	switch {
	case math.IsNaN(v):
		return neutral
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
