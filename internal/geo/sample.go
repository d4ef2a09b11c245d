package geo

import (
	"errors"

	"github.com/paulmach/orb"
)

// DefaultMaxAttempts bounds the rejection loop when the caller passes zero.
const DefaultMaxAttempts = 1000

var ErrSamplingExhausted = errors.New("sampling budget exhausted")

// Float64Range draws a value uniformly from [min, max).
type Float64Range func(min, max float64) float64

// SamplePoint draws candidates uniformly inside bound until contains accepts
// one, giving up after maxAttempts. It returns the point and the number of
// candidates drawn.
func SamplePoint(bound orb.Bound, contains func(orb.Point) bool, draw Float64Range, maxAttempts int) (orb.Point, int, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if !(bound.Min.X() < bound.Max.X() && bound.Min.Y() < bound.Max.Y()) {
		return orb.Point{}, 0, ErrDegenerateGeometry
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		p := orb.Point{
			draw(bound.Min.X(), bound.Max.X()),
			draw(bound.Min.Y(), bound.Max.Y()),
		}
		if contains(p) {
			return p, attempt, nil
		}
	}
	return orb.Point{}, maxAttempts, ErrSamplingExhausted
}

// Sampler draws points inside one validated boundary.
type Sampler struct {
	boundary    Boundary
	bound       orb.Bound
	maxAttempts int
}

func NewSampler(b Boundary, maxAttempts int) (*Sampler, error) {
	if err := Validate(b.MultiPolygon); err != nil {
		return nil, err
	}
	return &Sampler{boundary: b, bound: b.Bound(), maxAttempts: maxAttempts}, nil
}

func (s *Sampler) Sample(draw Float64Range) (orb.Point, int, error) {
	return SamplePoint(s.bound, s.boundary.Contains, draw, s.maxAttempts)
}
