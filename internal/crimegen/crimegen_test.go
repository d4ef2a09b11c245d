package crimegen

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store/memstore"
)

var (
	rangeFrom = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
)

func squareDistrict(id string, minLon, minLat float64, kind string) models.District {
	b := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{minLon + 1, minLat + 1}}
	return models.District{ID: id, Name: id, Region: models.RegionNorth, Kind: kind, Geometry: geo.NewBoundary(orb.MultiPolygon{b.ToPolygon()})}
}

// fiveSquares lays out five adjacent unit squares A..E along a row.
func fiveSquares(t *testing.T) (*memstore.Store, []models.District) {
	t.Helper()
	ds := []models.District{
		squareDistrict("A", 77, 28, "Urban"),
		squareDistrict("B", 78, 28, "Suburban"),
		squareDistrict("C", 79, 28, "Rural"),
		squareDistrict("D", 80, 28, "Industrial"),
		squareDistrict("E", 81, 28, "Urban"),
	}
	st := memstore.New()
	require.NoError(t, st.UpsertDistricts(context.Background(), ds))
	return st, ds
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return Config{
		From:        rangeFrom,
		To:          rangeTo,
		MaxAttempts: 1000,
		Workers:     3,
		BatchSize:   50,
		Seed:        42,
		Catalog:     cat,
		Now:         func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestRecordsTargetingOneDistrictStayInside(t *testing.T) {
	st, ds := fiveSquares(t)
	cfg := baseConfig(t)
	cfg.Count = 100
	cfg.DistrictIDs = []string{"A"}

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Records)
	assert.Empty(t, res.Skipped)

	records := st.Records()
	require.Len(t, records, 100)
	for _, r := range records {
		assert.Equal(t, "A", r.DistrictID)
		assert.True(t, ds[0].Geometry.Contains(r.Location.Point), "point %v outside A", r.Location.Point)
		for _, other := range ds[1:] {
			// Shared edges are measure zero; a uniform draw never lands on one.
			assert.False(t, other.Geometry.Contains(r.Location.Point), "point %v inside %s", r.Location.Point, other.ID)
		}
	}
}

func TestGeneratedValuesStayInDomain(t *testing.T) {
	st, ds := fiveSquares(t)
	cfg := baseConfig(t)
	cfg.PerDistrict = 40

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Records)
	assert.Equal(t, 5, res.Districts)

	byID := map[string]models.District{}
	for _, d := range ds {
		byID[d.ID] = d
	}
	hours, err := NewHourRange(rangeFrom, rangeTo)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range st.Records() {
		d := byID[r.DistrictID]
		assert.True(t, d.Geometry.Contains(r.Location.Point))

		allowed := map[string]bool{}
		for _, w := range cfg.Catalog.Pattern(d.Kind) {
			allowed[w.Type] = true
		}
		assert.True(t, allowed[r.CrimeType], "%s not in %s pattern", r.CrimeType, d.Kind)
		assert.Contains(t, r.Description, "Case of "+r.CrimeType)

		assert.True(t, hours.Contains(r.OccurredAt), "%s outside range", r.OccurredAt)
		assert.Equal(t, time.UTC, r.OccurredAt.Location())
		assert.Equal(t, res.BatchID, r.BatchID)

		assert.False(t, seen[r.ID.String()], "duplicate id")
		seen[r.ID.String()] = true
	}
}

func TestDegenerateDistrictIsSkipped(t *testing.T) {
	st, _ := fiveSquares(t)
	flat := models.District{ID: "F", Name: "Flat", Region: models.RegionNorth, Kind: "Urban",
		Geometry: geo.NewBoundary(orb.MultiPolygon{{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}})}
	require.NoError(t, st.UpsertDistricts(context.Background(), []models.District{flat}))

	cfg := baseConfig(t)
	cfg.PerDistrict = 5

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"F"}, res.Skipped)
	assert.Equal(t, 25, res.Records)
	for _, r := range st.Records() {
		assert.NotEqual(t, "F", r.DistrictID)
	}
}

func TestGenerateDistrictReportsGenerationError(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	hours, err := NewHourRange(rangeFrom, rangeTo)
	require.NoError(t, err)

	empty := models.District{ID: "X", Kind: "Urban"}
	out := generateDistrict(empty, 3, Namespace, hours, cat, 1, 10)

	var genErr *apperrors.GenerationError
	require.ErrorAs(t, out.err, &genErr)
	assert.Equal(t, "X", genErr.DistrictID)
	assert.Empty(t, out.records)
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	run := func() []models.CrimeRecord {
		st, _ := fiveSquares(t)
		cfg := baseConfig(t)
		cfg.Count = 60
		_, err := Run(context.Background(), cfg, st, st, zap.NewNop())
		require.NoError(t, err)
		return st.Records()
	}
	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Location, second[i].Location)
		assert.Equal(t, first[i].CrimeType, second[i].CrimeType)
		assert.Equal(t, first[i].OccurredAt, second[i].OccurredAt)
	}
}

func TestRunIsAdditive(t *testing.T) {
	st, _ := fiveSquares(t)
	cfg := baseConfig(t)
	cfg.PerDistrict = 2

	_, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	cfg.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	_, err = Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, st.Records(), 20)
}

func TestRunDryRunAndNoDistricts(t *testing.T) {
	st, _ := fiveSquares(t)
	cfg := baseConfig(t)
	cfg.PerDistrict = 3
	cfg.Suspects = 4
	cfg.DryRun = true

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 15, res.Records)
	assert.Equal(t, 4, res.Suspects)
	assert.Empty(t, st.Records())
	assert.Empty(t, st.Suspects())

	_, err = Run(context.Background(), baseConfig(t), memstore.New(), memstore.New(), zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrNoDistricts)
}

func TestNewHourRange(t *testing.T) {
	h, err := NewHourRange(time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), h.First)
	assert.Equal(t, 2, h.Hours)
	assert.True(t, h.Contains(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)))
	assert.False(t, h.Contains(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)))

	_, err = NewHourRange(time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 45, 0, 0, time.UTC))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAllocate(t *testing.T) {
	counts := allocate(4, 1000, 0, 7)
	total := 0
	for _, c := range counts {
		total += c
		assert.Greater(t, c, 150)
	}
	assert.Equal(t, 1000, total)
	assert.Equal(t, []int{3, 3}, allocate(2, 1000, 3, 7))
}

func TestDegenerateDistrictWithNoRecordsIsReported(t *testing.T) {
	st, _ := fiveSquares(t)
	flat := models.District{ID: "F", Name: "Flat", Region: models.RegionNorth, Kind: "Urban",
		Geometry: geo.NewBoundary(orb.MultiPolygon{{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}})}
	require.NoError(t, st.UpsertDistricts(context.Background(), []models.District{flat}))

	cfg := baseConfig(t)
	cfg.Count = 0

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"F"}, res.Skipped)
	assert.Zero(t, res.Records)
}

func TestSuspectsAreGenerated(t *testing.T) {
	st, _ := fiveSquares(t)
	cfg := baseConfig(t)
	cfg.PerDistrict = 1
	cfg.Suspects = 50

	res, err := Run(context.Background(), cfg, st, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 50, res.Suspects)

	now := cfg.Now()
	oldest, youngest := now.AddDate(-70, 0, 0), now.AddDate(-18, 0, 0)
	allowed := map[string]bool{}
	for _, tag := range models.SuspectTags {
		allowed[tag] = true
	}
	seen := map[string]bool{}
	suspects := st.Suspects()
	require.Len(t, suspects, 50)
	for _, s := range suspects {
		assert.NotEmpty(t, s.Name)
		assert.Equal(t, res.BatchID, s.BatchID)
		assert.False(t, s.DateOfBirth.Before(oldest), "born %s", s.DateOfBirth)
		assert.False(t, s.DateOfBirth.After(youngest), "born %s", s.DateOfBirth)
		assert.Equal(t, s.DateOfBirth, s.DateOfBirth.Truncate(24*time.Hour))

		var body struct {
			Tags []string `json:"tags"`
		}
		require.NoError(t, json.Unmarshal(s.Tags, &body))
		require.NotEmpty(t, body.Tags)
		assert.LessOrEqual(t, len(body.Tags), 2)
		distinct := map[string]bool{}
		for _, tag := range body.Tags {
			assert.True(t, allowed[tag], "unexpected tag %q", tag)
			assert.False(t, distinct[tag], "repeated tag %q", tag)
			distinct[tag] = true
		}

		assert.False(t, seen[s.ID.String()], "duplicate id")
		seen[s.ID.String()] = true
	}
}

func TestSuspectsAreDeterministicForSeed(t *testing.T) {
	batch := BatchID(42, 1)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := generateSuspects(10, batch, 7, at)
	require.NoError(t, err)
	second, err := generateSuspects(10, batch, 7, at)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
