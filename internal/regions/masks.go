package regions

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// Mask is a boolean spatial selector for one region, flattened over the
// grid's spatial points. Masks are independent of parameter and time.
type Mask struct {
	Region string
	Inside []bool
}

// Apply returns a copy of f with every point outside the mask set to NaN.
// The mask length must equal the product of the field's trailing spatial
// dims; shapes are preserved.
func (m Mask) Apply(f domain.Field) domain.Field {
	masked := sparse.ZerosDense(f.Data.Shape...)
	spatial := len(m.Inside)
	for i, v := range f.Data.Elements {
		if m.Inside[i%spatial] {
			masked.Elements[i] = v
		} else {
			masked.Elements[i] = math.NaN()
		}
	}
	return domain.Field{Dims: f.Dims, Data: masked}
}

// regionPolygon wraps a polygon for r-tree indexing.
type regionPolygon struct {
	geom.Polygon
}

// Masks computes one boolean mask per region against the grid's
// latitude/longitude coordinates, in the set's iteration order. A point
// belongs to a region when it falls inside any of the region's polygons
// (union semantics); polygon boundaries count as inside.
func (rs *RegionSet) Masks(grid domain.Grid) ([]Mask, error) {
	n := grid.Size()
	if len(grid.Lat.Elements) != n || len(grid.Lon.Elements) != n {
		return nil, fmt.Errorf("coordinate arrays do not match grid size %d", n)
	}

	masks := make([]Mask, 0, len(rs.names))
	for _, name := range rs.names {
		index := rtree.NewTree(25, 50)
		for _, p := range rs.polygons[name] {
			index.Insert(regionPolygon{p})
		}

		inside := make([]bool, n)
		for i := 0; i < n; i++ {
			pt := geom.Point{X: grid.Lon.Elements[i], Y: grid.Lat.Elements[i]}
			for _, c := range index.SearchIntersect(pt.Bounds()) {
				if pt.Within(c.(regionPolygon).Polygon) != geom.Outside {
					inside[i] = true
					break
				}
			}
		}
		masks = append(masks, Mask{Region: name, Inside: inside})
	}
	return masks, nil
}
