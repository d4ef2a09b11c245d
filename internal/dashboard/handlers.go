// Package dashboard serves the read-only crime analytics API: regions, crime
// types, choropleth GeoJSON, hotspots, breakdowns and predictions.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

const (
	MsgNoData        = "No crime data for the selected filters."
	MsgUnavailable   = "Crime data is temporarily unavailable."
	MsgNoPredictions = "No predictions available yet. Run the trainer first."
	MsgNoCrimeTypes  = "No crime types recorded yet."
)

// X-Data-Status values.
const (
	statusOK          = "ok"
	statusEmpty       = "empty"
	statusUnavailable = "unavailable"
)

type Handler struct {
	agg   store.AggregateStore
	preds store.PredictionStore
	cat   *catalog.Catalog
	cache Cache
	ping  func(context.Context) error
	log   *zap.Logger
}

// NewHandler wires the stores. cache may be nil; ping, when set, backs
// /healthz.
func NewHandler(agg store.AggregateStore, preds store.PredictionStore, cat *catalog.Catalog, cache Cache, ping func(context.Context) error, log *zap.Logger) *Handler {
	if cache == nil {
		cache = NoCache{}
	}
	return &Handler{agg: agg, preds: preds, cat: cat, cache: cache, ping: ping, log: log}
}

// envelope wraps every non-GeoJSON payload. Placeholder is set when Data is
// empty because nothing matched or the store failed.
type envelope struct {
	Data        any    `json:"data"`
	Placeholder string `json:"placeholder,omitempty"`
}

func emptyEnvelope(msg string) any { return envelope{Data: []any{}, Placeholder: msg} }

// loader produces a payload, or a non-empty placeholder message when there is
// nothing to show.
type loader func(ctx context.Context) (payload any, emptyMsg string, err error)

// serve answers from cache when possible, otherwise runs load. Empty results
// and store failures both become placeholder bodies with status 200.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, key string, load loader, placeholder func(string) any) {
	ctx := r.Context()
	if body, ok := h.cache.Get(ctx, key); ok {
		writeRaw(w, statusOK, "HIT", body)
		return
	}

	payload, emptyMsg, err := load(ctx)
	switch {
	case err != nil:
		h.log.Error("Dashboard query failed", zap.String("path", r.URL.Path), zap.Error(err))
		metrics.PlaceholdersTotal.WithLabelValues("error").Inc()
		writeJSON(w, statusUnavailable, placeholder(MsgUnavailable))
	case emptyMsg != "":
		metrics.PlaceholdersTotal.WithLabelValues("empty").Inc()
		writeJSON(w, statusEmpty, placeholder(emptyMsg))
	default:
		body, err := json.Marshal(payload)
		if err != nil {
			h.log.Error("Failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, statusUnavailable, placeholder(MsgUnavailable))
			return
		}
		h.cache.Set(ctx, key, body)
		writeRaw(w, statusOK, "MISS", body)
	}
}

func writeJSON(w http.ResponseWriter, status string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, "", body)
}

func writeRaw(w http.ResponseWriter, status, cache string, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Data-Status", status)
	if cache != "" {
		w.Header().Set("X-Cache", cache)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type regionInfo struct {
	Name     models.Region `json:"name"`
	Envelope geo.Envelope  `json:"envelope"`
}

// Regions lists the region filter values with their map envelopes. All spans
// every configured envelope.
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	var all geo.Envelope
	first := true
	var out []regionInfo
	for _, region := range models.Regions() {
		if region == models.RegionAll {
			continue
		}
		env, ok := h.cat.Envelope(region)
		if !ok {
			out = append(out, regionInfo{Name: region})
			continue
		}
		out = append(out, regionInfo{Name: region, Envelope: env})
		if first {
			all, first = env, false
			continue
		}
		all = geo.Envelope{min(all[0], env[0]), min(all[1], env[1]), max(all[2], env[2]), max(all[3], env[3])}
	}
	out = append([]regionInfo{{Name: models.RegionAll, Envelope: all}}, out...)
	writeJSON(w, statusOK, envelope{Data: out})
}

func (h *Handler) CrimeTypes(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "crime-types", func(ctx context.Context) (any, string, error) {
		types, err := h.agg.CrimeTypes(ctx)
		if err != nil {
			return nil, "", err
		}
		if len(types) == 0 {
			return nil, MsgNoCrimeTypes, nil
		}
		return envelope{Data: types}, "", nil
	}, emptyEnvelope)
}

// Choropleth returns one GeoJSON feature per district with matching records.
func (h *Handler) Choropleth(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.serve(w, r, cacheKey("choropleth", f), func(ctx context.Context) (any, string, error) {
		counts, err := h.agg.DistrictCounts(ctx, f, 0)
		if err != nil {
			return nil, "", err
		}
		if len(counts) == 0 {
			return nil, MsgNoData, nil
		}
		fc := geojson.NewFeatureCollection()
		for _, c := range counts {
			feat := geojson.NewFeature(c.Geometry.MultiPolygon)
			feat.ID = c.DistrictID
			feat.Properties = geojson.Properties{
				"district_id": c.DistrictID,
				"district":    c.Name,
				"region":      string(c.Region),
				"crime_count": c.Count,
			}
			fc.Append(feat)
		}
		return fc, "", nil
	}, func(msg string) any {
		fc := geojson.NewFeatureCollection()
		fc.ExtraMembers = geojson.Properties{"placeholder": msg}
		return fc
	})
}

type hotspot struct {
	Rank       int           `json:"rank"`
	DistrictID string        `json:"district_id"`
	District   string        `json:"district"`
	Region     models.Region `json:"region"`
	CrimeCount int64         `json:"crime_count"`
}

// Hotspots ranks districts by matching record count, ties by district id.
func (h *Handler) Hotspots(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.serve(w, r, cacheKey("hotspots", f, strconv.Itoa(limit)), func(ctx context.Context) (any, string, error) {
		counts, err := h.agg.DistrictCounts(ctx, f, limit)
		if err != nil {
			return nil, "", err
		}
		if len(counts) == 0 {
			return nil, MsgNoData, nil
		}
		out := make([]hotspot, len(counts))
		for i, c := range counts {
			out[i] = hotspot{Rank: i + 1, DistrictID: c.DistrictID, District: c.Name, Region: c.Region, CrimeCount: c.Count}
		}
		return envelope{Data: out}, "", nil
	}, emptyEnvelope)
}

func (h *Handler) TypeBreakdown(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.serve(w, r, cacheKey("breakdown-types", f), func(ctx context.Context) (any, string, error) {
		counts, err := h.agg.TypeCounts(ctx, f)
		if err != nil {
			return nil, "", err
		}
		if len(counts) == 0 {
			return nil, MsgNoData, nil
		}
		return envelope{Data: counts}, "", nil
	}, emptyEnvelope)
}

// HourlyBreakdown always returns 24 hours, zero-filled.
func (h *Handler) HourlyBreakdown(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.serve(w, r, cacheKey("breakdown-hourly", f), func(ctx context.Context) (any, string, error) {
		counts, err := h.agg.HourlyCounts(ctx, f)
		if err != nil {
			return nil, "", err
		}
		if len(counts) == 0 {
			return nil, MsgNoData, nil
		}
		out := make([]store.HourCount, 24)
		for i := range out {
			out[i].Hour = i
		}
		for _, c := range counts {
			if c.Hour >= 0 && c.Hour < 24 {
				out[c.Hour].Count = c.Count
			}
		}
		return envelope{Data: out}, "", nil
	}, emptyEnvelope)
}

type modelInfo struct {
	Version            int64     `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	HoldoutAccuracy    float64   `json:"holdout_accuracy"`
	DefaultedDistricts int       `json:"defaulted_districts"`
}

type predictionPayload struct {
	Model       modelInfo           `json:"model"`
	Predictions []models.Prediction `json:"predictions"`
}

// Predictions returns the latest model's predictions unless version is given.
func (h *Handler) Predictions(w http.ResponseWriter, r *http.Request) {
	q, err := ParsePredictionQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := "predictions|" + r.URL.Query().Encode()
	h.serve(w, r, key, func(ctx context.Context) (any, string, error) {
		if q.Version == 0 {
			latest, err := h.preds.LatestModelVersion(ctx)
			if err != nil {
				return nil, "", err
			}
			if latest == 0 {
				return nil, MsgNoPredictions, nil
			}
			q.Version = latest
		}
		run, err := h.preds.GetModelRun(ctx, q.Version)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, MsgNoPredictions, nil
		}
		if err != nil {
			return nil, "", err
		}
		preds, err := h.preds.ListPredictions(ctx, q)
		if err != nil {
			return nil, "", err
		}
		if len(preds) == 0 {
			return nil, MsgNoPredictions, nil
		}
		return envelope{Data: predictionPayload{
			Model: modelInfo{
				Version:            run.Version,
				TrainedAt:          run.TrainedAt,
				HoldoutAccuracy:    run.HoldoutAccuracy,
				DefaultedDistricts: run.DefaultedDistricts,
			},
			Predictions: preds,
		}}, "", nil
	}, emptyEnvelope)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.log.Warn("Health check failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
