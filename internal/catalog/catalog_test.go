package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "Urban", c.DefaultKind)
	assert.Len(t, c.Patterns, 4)
	assert.Contains(t, c.CrimeTypes(), "Cybercrime")
	assert.Contains(t, c.CrimeTypes(), "Smuggling")

	sum := 0.0
	for _, w := range c.Pattern("Urban") {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifyRegionByEnvelope(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name     string
		centroid orb.Point
		want     models.Region
	}{
		{"Delhi", orb.Point{77.2, 28.6}, models.RegionNorth},
		{"Chennai", orb.Point{80.27, 13.08}, models.RegionSouth},
		{"Mumbai", orb.Point{72.88, 19.07}, models.RegionWest},
		{"Kolkata", orb.Point{88.36, 22.57}, models.RegionEast},
		{"Bhopal", orb.Point{77.41, 23.26}, models.RegionCentral},
		{"Port Blair", orb.Point{92.73, 11.62}, models.RegionUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClassifyRegion("", tt.name, tt.centroid))
		})
	}
}

func TestClassifyRegionExplicitMapping(t *testing.T) {
	c, err := Parse([]byte(`
default_kind: Rural
regions:
  - region: South
    envelope: [74, 8, 82, 18]
    districts: [IND.1.1_1, Goa]
  - region: North
    envelope: [72, 28, 85, 37]
kinds:
  IND.1.1_1: Industrial
patterns:
  Rural:
    - {type: Theft, weight: 1}
  Industrial:
    - {type: Smuggling, weight: 1}
`))
	require.NoError(t, err)

	// Explicit id wins over an envelope that would say North.
	assert.Equal(t, models.RegionSouth, c.ClassifyRegion("IND.1.1_1", "x", orb.Point{77, 30}))
	assert.Equal(t, models.RegionSouth, c.ClassifyRegion("IND.9.9_1", "Goa, Goa", orb.Point{77, 30}))
	assert.Equal(t, models.RegionNorth, c.ClassifyRegion("IND.9.9_2", "Other", orb.Point{77, 30}))

	assert.Equal(t, "Industrial", c.KindFor("IND.1.1_1", ""))
	assert.Equal(t, "Rural", c.KindFor("IND.2.2_1", "Elsewhere"))
	assert.Equal(t, "Smuggling", c.Pattern("Industrial")[0].Type)
	assert.Equal(t, "Theft", c.Pattern("Unknown")[0].Type)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`patterns: {}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
patterns:
  Urban:
    - {type: Theft, weight: 0}
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
regions:
  - region: Atlantis
patterns:
  Urban:
    - {type: Theft, weight: 1}
`))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patterns:
  Urban:
    - {type: Theft, weight: 1}
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Theft"}, c.CrimeTypes())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
