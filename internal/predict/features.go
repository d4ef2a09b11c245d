package predict

import (
	"sort"
	"time"

	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

// RecentDays is the trailing window compared against the lookback average.
const RecentDays = 30

// DistrictStats is the aggregate feature vector for one district.
type DistrictStats struct {
	DistrictID string
	Records    int
	// Hourly counts indexed by ISO weekday-1 and hour.
	Hourly [7][24]int
	// BucketTypes counts crime types per bucket index (models.TimeBucket.Index).
	BucketTypes [models.BucketsPerWeek]map[string]int
	TypeCounts  map[string]int
	Recent      int
	// Trend is the recent daily rate over the window daily rate; 1 means flat
	// and districts without records get 1.
	Trend float64
}

// TypeShare is each crime type's share of the district's records.
func (s *DistrictStats) TypeShare() map[string]float64 {
	out := make(map[string]float64, len(s.TypeCounts))
	if s.Records == 0 {
		return out
	}
	for t, n := range s.TypeCounts {
		out[t] = float64(n) / float64(s.Records)
	}
	return out
}

// TopType returns the most frequent type in bucket, ties broken by name. It is
// empty when the bucket has no records.
func (s *DistrictStats) TopType(b models.TimeBucket) string {
	counts := s.BucketTypes[b.Index()]
	best, bestN := "", 0
	for t, n := range counts {
		if n > bestN || (n == bestN && t < best) {
			best, bestN = t, n
		}
	}
	return best
}

// Aggregate groups facts inside [windowEnd-windowDays, windowEnd) by district.
// Every id in ids gets an entry, including districts with no records; facts
// for other districts are ignored. The result is ordered by district id.
func Aggregate(facts []store.RecordFact, ids []string, windowEnd time.Time, windowDays int) []*DistrictStats {
	byID := make(map[string]*DistrictStats, len(ids))
	out := make([]*DistrictStats, 0, len(ids))
	for _, id := range ids {
		s := &DistrictStats{DistrictID: id, TypeCounts: map[string]int{}}
		byID[id] = s
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistrictID < out[j].DistrictID })

	recentDays := RecentDays
	if windowDays < recentDays {
		recentDays = windowDays
	}
	recentFrom := windowEnd.AddDate(0, 0, -recentDays)

	for _, f := range facts {
		s, ok := byID[f.DistrictID]
		if !ok {
			continue
		}
		t := f.OccurredAt.UTC()
		wd := models.ISOWeekday(t)
		s.Records++
		s.Hourly[wd-1][t.Hour()]++
		s.TypeCounts[f.CrimeType]++

		idx := models.BucketFor(t).Index()
		if s.BucketTypes[idx] == nil {
			s.BucketTypes[idx] = map[string]int{}
		}
		s.BucketTypes[idx][f.CrimeType]++

		if !t.Before(recentFrom) {
			s.Recent++
		}
	}

	for _, s := range out {
		s.Trend = 1
		if s.Records > 0 && recentDays > 0 && windowDays > 0 {
			recentRate := float64(s.Recent) / float64(recentDays)
			windowRate := float64(s.Records) / float64(windowDays)
			s.Trend = recentRate / windowRate
		}
	}
	return out
}
