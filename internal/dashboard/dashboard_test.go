package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
	"github.com/EmpoweredVote/crime-analytics/internal/store/memstore"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return b, ok
}

func (c *mapCache) Set(_ context.Context, key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = body
}

func district(id, name string, region models.Region, minLon, minLat float64) models.District {
	b := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{minLon + 1, minLat + 1}}
	return models.District{ID: id, Name: name, Region: region, Kind: "Urban", Geometry: geo.NewBoundary(orb.MultiPolygon{b.ToPolygon()})}
}

// seeded holds two northern districts and one eastern one; nothing in the
// south.
func seeded(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.UpsertDistricts(ctx, []models.District{
		district("N1", "Delhi, Delhi", models.RegionNorth, 77, 28),
		district("N2", "Gurgaon, Haryana", models.RegionNorth, 76, 28),
		district("E1", "Kolkata, West Bengal", models.RegionEast, 88, 22),
	}))

	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	var recs []models.CrimeRecord
	add := func(id, typ string, hour int) {
		recs = append(recs, models.CrimeRecord{ID: uuid.New(), DistrictID: id, CrimeType: typ, OccurredAt: base.Add(time.Duration(hour) * time.Hour)})
	}
	add("N1", "Theft", 9)
	add("N1", "Theft", 9)
	add("N1", "Fraud", 21)
	add("N2", "Theft", 9)
	add("E1", "Theft", 13)
	add("E1", "Assault", 13)
	add("E1", "Robbery", 30) // next day, 06:00
	require.NoError(t, st.InsertRecords(ctx, recs, 10))
	return st
}

func newServer(t *testing.T, st *memstore.Store, cache Cache) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	h := NewHandler(st, st, cat, cache, nil, zap.NewNop())
	return SetupRoutes(h, config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}}, zap.NewNop())
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type envelopeOf[T any] struct {
	Data        T      `json:"data"`
	Placeholder string `json:"placeholder"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelopeOf[T] {
	t.Helper()
	var out envelopeOf[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChoropleth(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	rec := get(t, srv, "/api/choropleth?region=North")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Header().Get("X-Data-Status"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "N1", fc.Features[0].Properties["district_id"])
	assert.Equal(t, "Delhi, Delhi", fc.Features[0].Properties["district"])
	assert.Equal(t, 3.0, fc.Features[0].Properties["crime_count"])
	assert.Equal(t, "MultiPolygon", fc.Features[0].Geometry.GeoJSONType())
}

func TestSouthWithNoDistrictsIsEmptyNotError(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	rec := get(t, srv, "/api/choropleth?region=South")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "empty", rec.Header().Get("X-Data-Status"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Empty(t, body["features"])
	assert.Equal(t, MsgNoData, body["placeholder"])

	for _, path := range []string{"/api/hotspots", "/api/breakdown/types", "/api/breakdown/hourly"} {
		rec := get(t, srv, path+"?region=South")
		require.Equal(t, http.StatusOK, rec.Code, path)
		env := decode[[]any](t, rec)
		assert.Empty(t, env.Data, path)
		assert.Equal(t, MsgNoData, env.Placeholder, path)
	}
}

func TestHotspotsRankAndLimit(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	env := decode[[]hotspot](t, get(t, srv, "/api/hotspots"))
	require.Len(t, env.Data, 3)
	// E1 and N1 both have 3; the tie goes to the lower id.
	assert.Equal(t, "E1", env.Data[0].DistrictID)
	assert.Equal(t, "N1", env.Data[1].DistrictID)
	assert.Equal(t, 3, env.Data[2].Rank)

	env = decode[[]hotspot](t, get(t, srv, "/api/hotspots?limit=1&types=Theft"))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "N1", env.Data[0].DistrictID)
	assert.Equal(t, int64(2), env.Data[0].CrimeCount)

	rec := get(t, srv, "/api/hotspots?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBreakdowns(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	types := decode[[]store.TypeCount](t, get(t, srv, "/api/breakdown/types?region=All"))
	require.NotEmpty(t, types.Data)
	assert.Equal(t, store.TypeCount{CrimeType: "Theft", Count: 4}, types.Data[0])

	hourly := decode[[]store.HourCount](t, get(t, srv, "/api/breakdown/hourly?to=2024-03-04"))
	require.Len(t, hourly.Data, 24)
	assert.Equal(t, int64(3), hourly.Data[9].Count)
	assert.Equal(t, int64(2), hourly.Data[13].Count)
	assert.Equal(t, int64(0), hourly.Data[6].Count) // the 06:00 record is on 2024-03-05
}

func TestBadFilters(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/choropleth?region=Atlantis").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/choropleth?from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/choropleth?from=2024-03-05&to=2024-03-01").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/predictions?weekday=9").Code)
}

func TestStoreFailureRendersPlaceholder(t *testing.T) {
	st := seeded(t)
	st.Err = errors.New("connection reset")
	srv := newServer(t, st, nil)

	rec := get(t, srv, "/api/hotspots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unavailable", rec.Header().Get("X-Data-Status"))
	env := decode[[]any](t, rec)
	assert.Equal(t, MsgUnavailable, env.Placeholder)

	rec = get(t, srv, "/api/choropleth")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgUnavailable)
}

func TestCrimeTypesAndRegions(t *testing.T) {
	srv := newServer(t, seeded(t), nil)

	types := decode[[]string](t, get(t, srv, "/api/crime-types"))
	assert.Equal(t, []string{"Assault", "Fraud", "Robbery", "Theft"}, types.Data)

	regions := decode[[]regionInfo](t, get(t, srv, "/api/regions"))
	require.Len(t, regions.Data, 6)
	assert.Equal(t, models.RegionAll, regions.Data[0].Name)
	assert.Equal(t, geo.Envelope{68, 8, 92, 37}, regions.Data[0].Envelope)

	empty := newServer(t, memstore.New(), nil)
	rec := get(t, empty, "/api/crime-types")
	assert.Equal(t, MsgNoCrimeTypes, decode[[]string](t, rec).Placeholder)
}

func TestPredictions(t *testing.T) {
	st := seeded(t)
	srv := newServer(t, st, nil)

	env := decode[[]any](t, get(t, srv, "/api/predictions"))
	assert.Equal(t, MsgNoPredictions, env.Placeholder)

	ctx := context.Background()
	mk := func(v int64, score float64) []models.Prediction {
		var out []models.Prediction
		for _, id := range []string{"E1", "N1"} {
			for _, b := range models.AllBuckets() {
				out = append(out, models.Prediction{DistrictID: id, Bucket: b, ModelVersion: v, Score: score})
			}
		}
		return out
	}
	require.NoError(t, st.SaveModelRun(ctx, models.ModelRun{Version: 1, HoldoutAccuracy: 0.7}, mk(1, 0.1)))
	require.NoError(t, st.SaveModelRun(ctx, models.ModelRun{Version: 2, HoldoutAccuracy: 0.8}, mk(2, 0.9)))

	latest := decode[predictionPayload](t, get(t, srv, "/api/predictions?district=N1&weekday=2&block=9"))
	assert.Equal(t, int64(2), latest.Data.Model.Version)
	require.Len(t, latest.Data.Predictions, 1)
	assert.Equal(t, models.TimeBucket{Weekday: 2, BlockStart: 8}, latest.Data.Predictions[0].Bucket)
	assert.Equal(t, 0.9, latest.Data.Predictions[0].Score)

	v1 := decode[predictionPayload](t, get(t, srv, "/api/predictions?version=1&district=E1"))
	assert.Len(t, v1.Data.Predictions, models.BucketsPerWeek)
	assert.Equal(t, 0.1, v1.Data.Predictions[0].Score)

	missing := decode[[]any](t, get(t, srv, "/api/predictions?version=9"))
	assert.Equal(t, MsgNoPredictions, missing.Placeholder)
}

func TestResponsesAreCached(t *testing.T) {
	st := seeded(t)
	cache := &mapCache{data: map[string][]byte{}}
	srv := newServer(t, st, cache)

	first := get(t, srv, "/api/breakdown/types?types=Theft,Fraud")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	// Same filter in a different order hits the same entry, even once the
	// store is failing.
	st.Err = errors.New("down")
	second := get(t, srv, "/api/breakdown/types?types=Fraud,Theft")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestParseFilterDateOnlyTo(t *testing.T) {
	f, err := ParseFilter(url.Values{"to": {"2024-03-04"}, "types": {"Theft, Theft ,Fraud"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), f.To)
	assert.Equal(t, []string{"Theft", "Fraud"}, f.Types)
	assert.Equal(t, models.RegionAll, f.Region)
}

func TestHealthz(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	st := memstore.New()

	ok := NewHandler(st, st, cat, nil, func(context.Context) error { return nil }, zap.NewNop())
	rec := httptest.NewRecorder()
	ok.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHandler(st, st, cat, nil, func(context.Context) error { return errors.New("no db") }, zap.NewNop())
	rec = httptest.NewRecorder()
	down.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
