package regions

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// alpineGrid builds a 2-D grid spanning 6-10°E / 45.5-47.5°N, well inside
// the built-in "all" domain.
func alpineGrid(t *testing.T, ny, nx int) domain.Grid {
	t.Helper()
	lat := sparse.ZerosDense(ny, nx)
	lon := sparse.ZerosDense(ny, nx)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			lat.Set(45.5+2.0*float64(iy)/float64(ny), iy, ix)
			lon.Set(6.0+4.0*float64(ix)/float64(nx), iy, ix)
		}
	}
	g, err := domain.NewGrid2D(lat, lon)
	require.NoError(t, err)
	return g
}

func TestDefault(t *testing.T) {
	rs := Default()
	assert.Equal(t, []string{AllRegion}, rs.Names())
	require.Len(t, rs.Polygons(AllRegion), 1)
}

func TestMasks_AllRegionCoversDomain(t *testing.T) {
	rs := Default()
	masks, err := rs.Masks(alpineGrid(t, 10, 10))
	require.NoError(t, err)
	require.Len(t, masks, 1)

	assert.Equal(t, AllRegion, masks[0].Region)
	for i, in := range masks[0].Inside {
		assert.True(t, in, "point %d should be inside the default domain", i)
	}
}

func TestMasks_LeftHalfPolygon(t *testing.T) {
	// Polygon covering only the left half of the grid: lon < 8°E, which is
	// the first five of ten columns.
	left := geom.Polygon{{
		{X: 5.9, Y: 45.4},
		{X: 7.9, Y: 45.4},
		{X: 7.9, Y: 47.6},
		{X: 5.9, Y: 47.6},
		{X: 5.9, Y: 45.4},
	}}
	rs := &RegionSet{
		names:    []string{AllRegion, "left"},
		polygons: map[string][]geom.Polygon{AllRegion: {allPolygon()}, "left": {left}},
	}

	grid := alpineGrid(t, 10, 10)
	masks, err := rs.Masks(grid)
	require.NoError(t, err)
	require.Len(t, masks, 2)
	require.Equal(t, "left", masks[1].Region)

	count := 0
	for iy := 0; iy < 10; iy++ {
		for ix := 0; ix < 10; ix++ {
			in := masks[1].Inside[iy*10+ix]
			if ix < 5 {
				assert.True(t, in, "point (%d,%d) should be inside", iy, ix)
				count++
			} else {
				assert.False(t, in, "point (%d,%d) should be outside", iy, ix)
			}
		}
	}
	assert.Equal(t, 50, count)
}

func TestMask_Apply(t *testing.T) {
	data := sparse.ZerosDense(2, 1, 2)
	for i := range data.Elements {
		data.Elements[i] = float64(i + 1)
	}
	f := domain.Field{Dims: []string{domain.DimTime, domain.DimY, domain.DimX}, Data: data}

	m := Mask{Region: "half", Inside: []bool{true, false}}
	masked := m.Apply(f)

	// The second spatial point is NaN at every time step; the input is
	// untouched.
	assert.Equal(t, 1.0, masked.Data.Get(0, 0, 0))
	assert.True(t, math.IsNaN(masked.Data.Get(0, 0, 1)))
	assert.Equal(t, 3.0, masked.Data.Get(1, 0, 0))
	assert.True(t, math.IsNaN(masked.Data.Get(1, 0, 1)))
	assert.Equal(t, 2.0, f.Data.Get(0, 0, 1))
}

func TestLoad_MissingShapefile(t *testing.T) {
	_, err := Load([]string{"/nonexistent/region.shp"}, DefaultSourceProj4)
	var notFound *domain.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestLoad_NoPathsFallsBackToDefault(t *testing.T) {
	rs, err := Load(nil, DefaultSourceProj4)
	require.NoError(t, err)
	assert.Equal(t, []string{AllRegion}, rs.Names())
}
