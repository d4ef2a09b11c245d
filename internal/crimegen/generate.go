package crimegen

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

// HourRange is the set of whole UTC hours in [From, To).
type HourRange struct {
	First time.Time
	Hours int
}

func NewHourRange(from, to time.Time) (HourRange, error) {
	from, to = from.UTC(), to.UTC()
	first := from.Truncate(time.Hour)
	if first.Before(from) {
		first = first.Add(time.Hour)
	}
	if !first.Before(to) {
		return HourRange{}, fmt.Errorf("%w: no whole hour between %s and %s", apperrors.ErrInvalidInput, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	last := to.Add(-time.Nanosecond).Truncate(time.Hour)
	return HourRange{First: first, Hours: int(last.Sub(first)/time.Hour) + 1}, nil
}

// Contains reports whether t is one of the range's hours.
func (h HourRange) Contains(t time.Time) bool {
	if t.Before(h.First) || !t.Equal(t.Truncate(time.Hour)) {
		return false
	}
	return t.Sub(h.First) < time.Duration(h.Hours)*time.Hour
}

// districtBatch is one worker's output.
type districtBatch struct {
	records    []models.CrimeRecord
	attempts   int64
	rejections int64
	err        error
}

// districtSeed derives the seed of one district's random source from the run
// seed.
func districtSeed(seed int64, districtID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(districtID))
	s := seed ^ int64(h.Sum64()&0x7fffffffffffffff)
	if s == 0 {
		s = 1
	}
	return s
}

// generateDistrict produces n records inside d. Any sampling failure discards
// the district's partial output and is reported as a GenerationError.
func generateDistrict(d models.District, n int, batch uuid.UUID, hours HourRange, cat *catalog.Catalog, seed int64, maxAttempts int) districtBatch {
	var out districtBatch

	sampler, err := geo.NewSampler(d.Geometry, maxAttempts)
	if err != nil {
		out.err = apperrors.NewGenerationError(d.ID, 0, err)
		return out
	}

	pattern := cat.Pattern(d.Kind)
	if len(pattern) == 0 {
		out.err = apperrors.NewGenerationError(d.ID, 0, fmt.Errorf("no crime pattern for kind %q", d.Kind))
		return out
	}
	options := make([]any, len(pattern))
	weights := make([]float32, len(pattern))
	for i, w := range pattern {
		options[i] = w.Type
		weights[i] = float32(w.Weight)
	}

	faker := gofakeit.New(seed)
	out.records = make([]models.CrimeRecord, 0, n)
	for i := 0; i < n; i++ {
		p, attempts, err := sampler.Sample(faker.Float64Range)
		out.attempts += int64(attempts)
		if err != nil {
			out.records = nil
			out.err = apperrors.NewGenerationError(d.ID, attempts, err)
			return out
		}
		out.rejections += int64(attempts - 1)

		choice, err := faker.Weighted(options, weights)
		if err != nil {
			out.records = nil
			out.err = apperrors.NewGenerationError(d.ID, 0, err)
			return out
		}
		crimeType, ok := choice.(string)
		if !ok {
			out.records = nil
			out.err = apperrors.NewGenerationError(d.ID, 0, errors.New("weighted choice returned a non-string"))
			return out
		}

		occurred := hours.First.Add(time.Duration(faker.Number(0, hours.Hours-1)) * time.Hour)

		out.records = append(out.records, models.CrimeRecord{
			ID:          RecordID(batch, d.ID, i),
			DistrictID:  d.ID,
			CrimeType:   crimeType,
			Description: fmt.Sprintf("Case of %s. %s", crimeType, faker.Sentence(6)),
			OccurredAt:  occurred,
			Location:    geo.Location{Point: p},
			BatchID:     batch,
		})
	}
	return out
}
