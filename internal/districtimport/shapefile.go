package districtimport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
)

// Fields names the attribute columns read from the .dbf.
type Fields struct {
	ID     string
	Name   string
	Parent string // optional
}

// Feature is one shapefile row before it becomes a District.
type Feature struct {
	Source   string
	Row      int
	ID       string
	Name     string
	Parent   string
	Geometry orb.MultiPolygon
}

// ShapefilePaths expands path into the .shp files to read: the file itself,
// or every .shp directly inside a directory, sorted.
func ShapefilePaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, "unreadable source", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, "unreadable source", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			out = append(out, filepath.Join(path, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, apperrors.NewDataError(path, "no .shp files found", nil)
	}
	sort.Strings(out)
	return out, nil
}

// ReadShapefile reads every polygon feature in the .shp at path along with
// its .dbf attributes. Any feature missing its id or name, or carrying a
// non-polygon shape, fails the whole read.
func ReadShapefile(path string, fields Fields) ([]Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, "unreadable source", err)
	}
	defer r.Close()

	col := map[string]int{}
	for i, f := range r.Fields() {
		col[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	idCol, ok := col[strings.ToUpper(fields.ID)]
	if !ok {
		return nil, apperrors.NewDataError(path, fmt.Sprintf("missing identifier attribute %q", fields.ID), nil)
	}
	nameCol, ok := col[strings.ToUpper(fields.Name)]
	if !ok {
		return nil, apperrors.NewDataError(path, fmt.Sprintf("missing name attribute %q", fields.Name), nil)
	}
	parentCol, hasParent := col[strings.ToUpper(fields.Parent)]
	if fields.Parent == "" {
		hasParent = false
	}

	var out []Feature
	for r.Next() {
		n, shape := r.Shape()

		f := Feature{
			Source: path,
			Row:    n,
			ID:     attr(r.ReadAttribute(n, idCol)),
			Name:   attr(r.ReadAttribute(n, nameCol)),
		}
		if hasParent {
			f.Parent = attr(r.ReadAttribute(n, parentCol))
		}
		if f.ID == "" {
			return nil, apperrors.NewDataError(path, fmt.Sprintf("feature %d has an empty %s", n, fields.ID), nil)
		}
		if f.Name == "" {
			return nil, apperrors.NewDataError(path, fmt.Sprintf("feature %s has an empty %s", f.ID, fields.Name), nil)
		}

		mp, err := toMultiPolygon(shape)
		if err != nil {
			return nil, apperrors.NewDataError(path, fmt.Sprintf("feature %s", f.ID), err)
		}
		f.Geometry = mp
		out = append(out, f)
	}
	if err := r.Err(); err != nil {
		return nil, apperrors.NewDataError(path, "read shapes", err)
	}
	return out, nil
}

func attr(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func toMultiPolygon(shape shp.Shape) (orb.MultiPolygon, error) {
	switch s := shape.(type) {
	case *shp.Polygon:
		return assemble(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return assemble(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return assemble(s.Parts, s.Points), nil
	case *shp.Null:
		return nil, fmt.Errorf("null shape")
	default:
		return nil, fmt.Errorf("unsupported shape %T, want polygon", shape)
	}
}

// assemble splits shapefile parts into rings. Clockwise rings are outer
// boundaries; counter-clockwise rings are holes of the outer ring that
// contains them.
func assemble(parts []int32, points []shp.Point) orb.MultiPolygon {
	var mp orb.MultiPolygon
	var holes []orb.Ring

	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start >= end || end > len(points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if ring.Orientation() == orb.CCW {
			holes = append(holes, ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	for _, h := range holes {
		placed := false
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			// Writers that ignore winding order produce lone CCW outers.
			mp = append(mp, orb.Polygon{h})
		}
	}
	return mp
}
