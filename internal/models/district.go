package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/crime-analytics/internal/geo"
)

// Region groups districts on the dashboard. All is a filter value only and is
// never stored on a district.
type Region string

const (
	RegionAll          Region = "All"
	RegionNorth        Region = "North"
	RegionSouth        Region = "South"
	RegionEast         Region = "East"
	RegionWest         Region = "West"
	RegionCentral      Region = "Central"
	RegionUnclassified Region = "Unclassified"
)

// Regions lists the filter values offered by the dashboard, in display order.
func Regions() []Region {
	return []Region{RegionAll, RegionNorth, RegionSouth, RegionEast, RegionWest, RegionCentral}
}

// ParseRegion matches s case-insensitively. An empty string means All.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "All India") {
		return RegionAll, nil
	}
	for _, r := range append(Regions(), RegionUnclassified) {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// District is one administrative boundary loaded from a shapefile.
type District struct {
	ID       string       `gorm:"column:id;primaryKey" json:"id"`
	Name     string       `gorm:"column:name;not null" json:"name"`
	Region   Region       `gorm:"column:region;not null" json:"region"`
	Kind     string       `gorm:"column:kind;not null" json:"kind"`
	Geometry geo.Boundary `gorm:"column:geom;type:geometry(MultiPolygon,4326)" json:"-"`
	LoadedAt time.Time    `gorm:"column:loaded_at" json:"loaded_at"`
}

func (District) TableName() string { return "districts" }
