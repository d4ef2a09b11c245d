// Package memstore is an in-memory implementation of the store interfaces for
// tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

type predictionKey struct {
	district string
	bucket   models.TimeBucket
	version  int64
}

// Store is safe for concurrent use. Setting Err makes every call fail with it.
type Store struct {
	mu          sync.RWMutex
	districts   map[string]models.District
	records     []models.CrimeRecord
	suspects    []models.Suspect
	runs        map[int64]models.ModelRun
	predictions map[predictionKey]models.Prediction

	Err error
}

var (
	_ store.DistrictStore   = (*Store)(nil)
	_ store.RecordStore     = (*Store)(nil)
	_ store.PredictionStore = (*Store)(nil)
	_ store.AggregateStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		districts:   map[string]models.District{},
		runs:        map[int64]models.ModelRun{},
		predictions: map[predictionKey]models.Prediction{},
	}
}

func (s *Store) UpsertDistricts(_ context.Context, districts []models.District) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, d := range districts {
		s.districts[d.ID] = d
	}
	return nil
}

func (s *Store) ListDistricts(_ context.Context, ids []string) ([]models.District, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.District
	if len(ids) == 0 {
		for _, d := range s.districts {
			out = append(out, d)
		}
	} else {
		for _, id := range ids {
			if d, ok := s.districts[id]; ok {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DistrictIDs(ctx context.Context) ([]string, error) {
	ds, err := s.ListDistricts(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids, nil
}

// InsertRecords rejects records whose district is unknown, mirroring the
// foreign key.
func (s *Store) InsertRecords(_ context.Context, records []models.CrimeRecord, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, r := range records {
		if _, ok := s.districts[r.DistrictID]; !ok {
			return fmt.Errorf("insert crime records: unknown district %q", r.DistrictID)
		}
	}
	s.records = append(s.records, records...)
	return nil
}

// Records returns a copy of every stored record.
func (s *Store) Records() []models.CrimeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CrimeRecord(nil), s.records...)
}

func (s *Store) InsertSuspects(_ context.Context, suspects []models.Suspect, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.suspects = append(s.suspects, suspects...)
	return nil
}

// Suspects returns a copy of every stored suspect.
func (s *Store) Suspects() []models.Suspect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Suspect(nil), s.suspects...)
}

func (s *Store) RecordFacts(_ context.Context, from, to time.Time) ([]store.RecordFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []store.RecordFact
	for _, r := range s.records {
		if r.OccurredAt.Before(from) || !r.OccurredAt.Before(to) {
			continue
		}
		out = append(out, fact(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistrictID != out[j].DistrictID {
			return out[i].DistrictID < out[j].DistrictID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (s *Store) LatestModelVersion(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.latest(), nil
}

func (s *Store) latest() int64 {
	var v int64
	for version := range s.runs {
		if version > v {
			v = version
		}
	}
	return v
}

func (s *Store) SaveModelRun(_ context.Context, run models.ModelRun, preds []models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if latest := s.latest(); run.Version <= latest {
		return fmt.Errorf("model version %d is not newer than stored version %d", run.Version, latest)
	}
	s.runs[run.Version] = run
	for _, p := range preds {
		s.predictions[predictionKey{p.DistrictID, p.Bucket, p.ModelVersion}] = p
	}
	return nil
}

func (s *Store) GetModelRun(_ context.Context, version int64) (*models.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	run, ok := s.runs[version]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &run, nil
}

func (s *Store) ListPredictions(_ context.Context, q store.PredictionQuery) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Prediction
	for _, p := range s.predictions {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistrictID != out[j].DistrictID {
			return out[i].DistrictID < out[j].DistrictID
		}
		return out[i].Bucket.Less(out[j].Bucket)
	})
	return out, nil
}

func (s *Store) DistrictCounts(_ context.Context, f store.Filter, limit int) ([]store.DistrictCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	counts := map[string]int64{}
	s.each(f, func(r models.CrimeRecord) { counts[r.DistrictID]++ })

	out := make([]store.DistrictCount, 0, len(counts))
	for id, n := range counts {
		d := s.districts[id]
		out = append(out, store.DistrictCount{DistrictID: id, Name: d.Name, Region: d.Region, Count: n, Geometry: d.Geometry})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DistrictID < out[j].DistrictID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TypeCounts(_ context.Context, f store.Filter) ([]store.TypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	counts := map[string]int64{}
	s.each(f, func(r models.CrimeRecord) { counts[r.CrimeType]++ })

	out := make([]store.TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, store.TypeCount{CrimeType: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].CrimeType < out[j].CrimeType
	})
	return out, nil
}

func (s *Store) HourlyCounts(_ context.Context, f store.Filter) ([]store.HourCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var hours [24]int64
	s.each(f, func(r models.CrimeRecord) { hours[r.OccurredAt.UTC().Hour()]++ })

	var out []store.HourCount
	for h, n := range hours {
		if n > 0 {
			out = append(out, store.HourCount{Hour: h, Count: n})
		}
	}
	return out, nil
}

func (s *Store) CrimeTypes(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	seen := map[string]struct{}{}
	for _, r := range s.records {
		seen[r.CrimeType] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// each calls fn for every record matching f. Callers hold the read lock.
func (s *Store) each(f store.Filter, fn func(models.CrimeRecord)) {
	for _, r := range s.records {
		d, ok := s.districts[r.DistrictID]
		if !ok {
			continue
		}
		if f.Matches(d.Region, fact(r)) {
			fn(r)
		}
	}
}

func fact(r models.CrimeRecord) store.RecordFact {
	return store.RecordFact{DistrictID: r.DistrictID, CrimeType: r.CrimeType, OccurredAt: r.OccurredAt}
}
