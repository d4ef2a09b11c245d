// Package catalog loads the region mapping and per-kind crime patterns shared
// by the boundary loader, the generator and the dashboard.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/paulmach/orb"

	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

// FallbackKind is used when neither the district nor default_kind names a
// pattern that exists.
const FallbackKind = "Urban"

//go:embed default_catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	DefaultKind string                `yaml:"default_kind"`
	Regions     []RegionRule          `yaml:"regions"`
	Kinds       map[string]string     `yaml:"kinds"`
	Patterns    map[string][]Weighted `yaml:"patterns"`
}

// RegionRule assigns a region to listed districts and to any district whose
// centroid falls inside Envelope.
type RegionRule struct {
	Region    models.Region `yaml:"region"`
	Envelope  geo.Envelope  `yaml:"envelope"`
	Districts []string      `yaml:"districts"`
}

type Weighted struct {
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Patterns) == 0 {
		return fmt.Errorf("catalog: no crime patterns")
	}
	for kind, pattern := range c.Patterns {
		if len(pattern) == 0 {
			return fmt.Errorf("catalog: pattern %q is empty", kind)
		}
		for _, w := range pattern {
			if strings.TrimSpace(w.Type) == "" {
				return fmt.Errorf("catalog: pattern %q has an unnamed crime type", kind)
			}
			if w.Weight <= 0 {
				return fmt.Errorf("catalog: pattern %q weight for %q must be positive", kind, w.Type)
			}
		}
	}
	if _, ok := c.Patterns[c.DefaultKind]; c.DefaultKind != "" && !ok {
		return fmt.Errorf("catalog: default_kind %q has no pattern", c.DefaultKind)
	}
	for i, r := range c.Regions {
		switch r.Region {
		case models.RegionNorth, models.RegionSouth, models.RegionEast, models.RegionWest, models.RegionCentral:
		default:
			return fmt.Errorf("catalog: regions[%d] has invalid region %q", i, r.Region)
		}
		if r.Envelope != (geo.Envelope{}) && !r.Envelope.Valid() {
			return fmt.Errorf("catalog: regions[%d] envelope %v is inverted", i, r.Envelope)
		}
	}
	return nil
}

// ClassifyRegion resolves a district's region: explicit id, then name, then
// the first envelope containing centroid.
func (c *Catalog) ClassifyRegion(id, name string, centroid orb.Point) models.Region {
	for _, r := range c.Regions {
		for _, d := range r.Districts {
			if d == id {
				return r.Region
			}
		}
	}
	for _, r := range c.Regions {
		for _, d := range r.Districts {
			if nameMatches(d, name) {
				return r.Region
			}
		}
	}
	for _, r := range c.Regions {
		if r.Envelope.Valid() && r.Envelope.Contains(centroid) {
			return r.Region
		}
	}
	return models.RegionUnclassified
}

// Envelope returns the first envelope configured for region.
func (c *Catalog) Envelope(region models.Region) (geo.Envelope, bool) {
	for _, r := range c.Regions {
		if r.Region == region && r.Envelope.Valid() {
			return r.Envelope, true
		}
	}
	return geo.Envelope{}, false
}

// KindFor looks the district up by id, then by name.
func (c *Catalog) KindFor(id, name string) string {
	if k, ok := c.Kinds[id]; ok {
		return k
	}
	for key, k := range c.Kinds {
		if nameMatches(key, name) {
			return k
		}
	}
	return c.defaultKind()
}

// Pattern returns the weighted crime types for kind, falling back to the
// default kind and then to Urban.
func (c *Catalog) Pattern(kind string) []Weighted {
	if p, ok := c.Patterns[kind]; ok {
		return p
	}
	if p, ok := c.Patterns[c.defaultKind()]; ok {
		return p
	}
	return c.Patterns[FallbackKind]
}

// CrimeTypes lists every crime type named by any pattern, sorted.
func (c *Catalog) CrimeTypes() []string {
	seen := map[string]struct{}{}
	for _, pattern := range c.Patterns {
		for _, w := range pattern {
			seen[w.Type] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) defaultKind() string {
	if c.DefaultKind != "" {
		return c.DefaultKind
	}
	return FallbackKind
}

// nameMatches compares case-insensitively against the full name and the part
// before the first comma ("Chennai" matches "Chennai, Tamil Nadu").
func nameMatches(key, name string) bool {
	if key == "" || name == "" {
		return false
	}
	if strings.EqualFold(key, name) {
		return true
	}
	short, _, _ := strings.Cut(name, ",")
	return strings.EqualFold(key, strings.TrimSpace(short))
}
