// Package districtimport loads district boundaries from ESRI shapefiles into
// the district store.
package districtimport

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

type Config struct {
	// Path is a .shp file or a directory of them.
	Path    string
	Fields  Fields
	Catalog *catalog.Catalog
	// DryRun parses and reports without writing.
	DryRun bool
	Now    func() time.Time
}

type Result struct {
	Features  int
	Districts int
	Dissolved int
	ByRegion  map[models.Region]int
	Written   bool
}

// Run reads every shapefile under cfg.Path and upserts the districts in one
// transaction. Any DataError aborts the load before anything is written.
func Run(ctx context.Context, cfg Config, districts store.DistrictStore, log *zap.Logger) (*Result, error) {
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

	paths, err := ShapefilePaths(cfg.Path)
	if err != nil {
		return nil, err
	}

	var features []Feature
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fs, err := ReadShapefile(p, cfg.Fields)
		if err != nil {
			return nil, err
		}
		log.Info("Read shapefile", zap.String("path", p), zap.Int("features", len(fs)))
		features = append(features, fs...)
	}

	built, dissolved, err := BuildDistricts(features, cfg.Catalog, cfg.Now())
	if err != nil {
		return nil, err
	}

	res := &Result{
		Features:  len(features),
		Districts: len(built),
		Dissolved: dissolved,
		ByRegion:  map[models.Region]int{},
	}
	for _, d := range built {
		res.ByRegion[d.Region]++
	}
	logSummary(log, res)

	if cfg.DryRun {
		log.Info("Dry run: no districts written")
		return res, nil
	}

	if err := districts.UpsertDistricts(ctx, built); err != nil {
		return nil, err
	}
	res.Written = true
	metrics.DistrictsLoadedTotal.Add(float64(len(built)))
	log.Info("Districts upserted", zap.Int("districts", len(built)))
	return res, nil
}

func logSummary(log *zap.Logger, res *Result) {
	regions := make([]string, 0, len(res.ByRegion))
	for r := range res.ByRegion {
		regions = append(regions, string(r))
	}
	sort.Strings(regions)

	fields := []zap.Field{
		zap.Int("features", res.Features),
		zap.Int("districts", res.Districts),
		zap.Int("dissolved", res.Dissolved),
	}
	for _, r := range regions {
		fields = append(fields, zap.Int("region_"+r, res.ByRegion[models.Region(r)]))
	}
	log.Info("Parsed boundaries", fields...)
}
