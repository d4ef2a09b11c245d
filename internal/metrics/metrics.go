package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

var (
	DistrictsLoadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_districts_loaded_total",
		Help: "Total districts upserted by the boundary loader",
	})
	RecordsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_records_generated_total",
		Help: "Total synthetic crime records inserted",
	})
	SuspectsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_suspects_generated_total",
		Help: "Total synthetic suspects inserted",
	})
	SamplingAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_sampling_attempts_total",
		Help: "Candidate points drawn by the rejection sampler",
	})
	SamplingRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_sampling_rejections_total",
		Help: "Candidate points rejected for falling outside their district",
	})
	DistrictsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crime_districts_skipped_total",
		Help: "Districts skipped by a batch job, by job",
	}, []string{"job"})
	PredictionsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_predictions_written_total",
		Help: "Total prediction rows upserted",
	})
	ModelVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crime_model_version",
		Help: "Version of the most recently trained model",
	})
	HoldoutAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crime_model_holdout_accuracy",
		Help: "Holdout accuracy of the most recently trained model",
	})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crime_dashboard_request_duration_ms",
		Help:    "Dashboard request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	}, []string{"route", "status"})
	PlaceholdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crime_dashboard_placeholders_total",
		Help: "Dashboard responses served as placeholders, by reason",
	}, []string{"reason"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_dashboard_cache_hits_total",
		Help: "Total redis cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_dashboard_cache_misses_total",
		Help: "Total redis cache misses",
	})
)

func init() {
	prometheus.MustRegister(DistrictsLoadedTotal)
	prometheus.MustRegister(RecordsGeneratedTotal)
	prometheus.MustRegister(SuspectsGeneratedTotal)
	prometheus.MustRegister(SamplingAttemptsTotal)
	prometheus.MustRegister(SamplingRejectionsTotal)
	prometheus.MustRegister(DistrictsSkippedTotal)
	prometheus.MustRegister(PredictionsWrittenTotal)
	prometheus.MustRegister(ModelVersion)
	prometheus.MustRegister(HoldoutAccuracy)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(PlaceholdersTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }

// Push sends the default registry to a Pushgateway under job. An empty url is
// a no-op. Failures are logged, not returned.
func Push(ctx context.Context, url, job string, log *zap.Logger) {
	if url == "" {
		return
	}
	err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx)
	if err != nil {
		log.Warn("Failed to push metrics", zap.String("job", job), zap.Error(fmt.Errorf("pushgateway: %w", err)))
		return
	}
	log.Info("Pushed metrics", zap.String("job", job))
}
