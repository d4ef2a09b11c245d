package districtimport

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/geo"
	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

// NormalizeName composes to NFC, collapses whitespace and capitalises each
// word without lowering the rest ("NCT of delhi" becomes "NCT Of Delhi").
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Title(language.English, cases.NoLower).String(s)
}

// DisplayName is "District, State" when a distinct parent name exists.
func DisplayName(name, parent string) string {
	name = NormalizeName(name)
	parent = NormalizeName(parent)
	if parent == "" || strings.EqualFold(parent, name) {
		return name
	}
	return name + ", " + parent
}

// BuildDistricts turns features into districts: duplicate ids are dissolved
// into one multipolygon, names normalised, region and kind resolved from the
// catalog, and geometry validated. The result is ordered by id. It returns
// the number of features that were dissolved into an earlier one.
func BuildDistricts(features []Feature, cat *catalog.Catalog, loadedAt time.Time) ([]models.District, int, error) {
	byID := map[string]*models.District{}
	sources := map[string]string{}
	dissolved := 0

	for _, f := range features {
		if d, ok := byID[f.ID]; ok {
			d.Geometry.MultiPolygon = append(d.Geometry.MultiPolygon, f.Geometry...)
			dissolved++
			continue
		}
		mp := append(orb.MultiPolygon(nil), f.Geometry...)
		byID[f.ID] = &models.District{
			ID:       f.ID,
			Name:     DisplayName(f.Name, f.Parent),
			Geometry: geo.NewBoundary(mp),
			LoadedAt: loadedAt.UTC(),
		}
		sources[f.ID] = fmt.Sprintf("%s#%d", f.Source, f.Row)
	}

	out := make([]models.District, 0, len(byID))
	for id, d := range byID {
		if err := geo.Validate(d.Geometry.MultiPolygon); err != nil {
			return nil, 0, apperrors.NewDataError(sources[id], "invalid geometry for "+id, err)
		}
		d.Region = cat.ClassifyRegion(d.ID, d.Name, d.Geometry.Centroid())
		d.Kind = cat.KindFor(d.ID, d.Name)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, dissolved, nil
}
