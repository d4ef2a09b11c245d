// Package geo holds the district geometry types, their PostGIS column
// mapping, validity checks and the rejection sampler used by the generator.
package geo

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SRID is WGS84; every geometry column is stored in it.
const SRID = 4326

// Boundary is a district outline stored as geometry(MultiPolygon,4326).
// Writes go through ST_GeomFromText and are unioned, so parts sharing an edge
// are merged into one valid polygon; reads expect ST_AsText output.
type Boundary struct {
	orb.MultiPolygon
}

func NewBoundary(mp orb.MultiPolygon) Boundary { return Boundary{MultiPolygon: mp} }

func (b Boundary) WKT() string { return wkt.MarshalString(b.MultiPolygon) }

// Centroid is the area-weighted centre of the outline.
func (b Boundary) Centroid() orb.Point {
	c, _ := planar.CentroidArea(b.MultiPolygon)
	return c
}

func (b Boundary) Contains(p orb.Point) bool {
	if !b.Bound().Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(b.MultiPolygon, p)
}

func (b Boundary) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	return clause.Expr{
		SQL:  "ST_Multi(ST_CollectionExtract(ST_UnaryUnion(ST_MakeValid(ST_GeomFromText(?, ?))), 3))",
		Vars: []interface{}{b.WKT(), SRID},
	}
}

func (b *Boundary) Scan(value interface{}) error {
	s, err := scanText(value)
	if err != nil || s == "" {
		return err
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return fmt.Errorf("decode boundary: %w", err)
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		b.MultiPolygon = v
	case orb.Polygon:
		b.MultiPolygon = orb.MultiPolygon{v}
	default:
		return fmt.Errorf("decode boundary: unexpected %s", g.GeoJSONType())
	}
	return nil
}

// Location is a record's point, stored as geometry(Point,4326).
type Location struct {
	orb.Point
}

func NewLocation(lon, lat float64) Location { return Location{Point: orb.Point{lon, lat}} }

func (l Location) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	return clause.Expr{
		SQL:  "ST_SetSRID(ST_MakePoint(?, ?), ?)",
		Vars: []interface{}{l.Lon(), l.Lat(), SRID},
	}
}

func (l *Location) Scan(value interface{}) error {
	s, err := scanText(value)
	if err != nil || s == "" {
		return err
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	p, ok := g.(orb.Point)
	if !ok {
		return fmt.Errorf("decode location: unexpected %s", g.GeoJSONType())
	}
	l.Point = p
	return nil
}

func scanText(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported geometry value %T", value)
	}
}
