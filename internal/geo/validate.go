package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrDegenerateGeometry = errors.New("degenerate geometry")

// Validate checks that mp is a usable outline: at least one polygon, every
// ring closed with four or more points, and each outer ring enclosing area.
func Validate(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: no polygons", ErrDegenerateGeometry)
	}
	for i, poly := range mp {
		if len(poly) == 0 {
			return fmt.Errorf("%w: polygon %d has no rings", ErrDegenerateGeometry, i)
		}
		for j, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("%w: polygon %d ring %d has %d points, need at least 4", ErrDegenerateGeometry, i, j, len(ring))
			}
			if !ring.Closed() {
				return fmt.Errorf("%w: polygon %d ring %d is not closed", ErrDegenerateGeometry, i, j)
			}
		}
		if math.Abs(planar.Area(poly[0])) == 0 {
			return fmt.Errorf("%w: polygon %d has zero area", ErrDegenerateGeometry, i)
		}
	}
	return nil
}

// Envelope is a lon/lat box: min lon, min lat, max lon, max lat.
type Envelope [4]float64

func (e Envelope) Valid() bool { return e[0] < e[2] && e[1] < e[3] }

func (e Envelope) Contains(p orb.Point) bool {
	return p.Lon() >= e[0] && p.Lon() <= e[2] && p.Lat() >= e[1] && p.Lat() <= e[3]
}

func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}
}
