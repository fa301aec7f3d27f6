// Package regions builds named spatial region masks from polygon sources.
//
// Region polygons typically arrive as shapefiles in the Swiss LV95 projected
// system (EPSG:2056) and are reprojected to geographic longitude/latitude
// before any containment test; the source CRS is always explicit, never
// assumed. A built-in "all" region covering the operational domain is always
// present so that verification has at least one mask even without
// user-supplied shapefiles.
package regions

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// AllRegion is the name of the built-in whole-domain region.
const AllRegion = "all"

// DefaultSourceProj4 is the proj4 definition of EPSG:2056 (CH1903+/LV95),
// the projected system the operational region shapefiles are delivered in.
const DefaultSourceProj4 = "+proj=somerc +lat_0=46.95240555555556 " +
	"+lon_0=7.439583333333333 +k_0=1 +x_0=2600000 +y_0=1200000 " +
	"+ellps=bessel +towgs84=674.374,15.056,405.346,0,0,0,0 +units=m +no_defs"

// geographicProj4 is the lon/lat target system for all containment tests.
const geographicProj4 = "+proj=longlat +datum=WGS84 +no_defs"

// allPolygon is the rectangle spanning the evaluation domain,
// 1.5–16°E / 43–49.5°N, in lon/lat.
func allPolygon() geom.Polygon {
	return geom.Polygon{{
		{X: 1.5, Y: 43},
		{X: 16, Y: 43},
		{X: 16, Y: 49.5},
		{X: 1.5, Y: 49.5},
		{X: 1.5, Y: 43},
	}}
}

// RegionSet is an ordered mapping from region name to polygons in geographic
// lon/lat coordinates. Built once per verification run; immutable afterward.
type RegionSet struct {
	names    []string
	polygons map[string][]geom.Polygon
}

// Default returns a RegionSet containing only the built-in "all" region.
func Default() *RegionSet {
	return &RegionSet{
		names:    []string{AllRegion},
		polygons: map[string][]geom.Polygon{AllRegion: {allPolygon()}},
	}
}

// ForTesting builds a RegionSet of axis-aligned lon/lat rectangles, each
// given as [minLon, minLat, maxLon, maxLat], keyed by region name and added
// in sorted-name order after the built-in "all" region. Tests use this to
// avoid shapefile fixtures.
func ForTesting(rects map[string][]float64) *RegionSet {
	rs := Default()
	names := make([]string, 0, len(rects))
	for name := range rects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := rects[name]
		rs.names = append(rs.names, name)
		rs.polygons[name] = []geom.Polygon{{{
			{X: r[0], Y: r[1]},
			{X: r[2], Y: r[1]},
			{X: r[2], Y: r[3]},
			{X: r[0], Y: r[3]},
			{X: r[0], Y: r[1]},
		}}}
	}
	return rs
}

// Load builds a RegionSet from shapefile paths whose geometries are in the
// srcProj4 coordinate system (pass DefaultSourceProj4 for the operational
// shapefiles). Region names are the path stems; a later source with the same
// stem replaces the earlier one's polygons while keeping its position. The
// "all" region is always present and always first. A path that cannot be
// opened is a DataNotFoundError.
func Load(paths []string, srcProj4 string) (*RegionSet, error) {
	rs := Default()
	if len(paths) == 0 {
		return rs, nil
	}

	src, err := proj.Parse(srcProj4)
	if err != nil {
		return nil, fmt.Errorf("parse source projection: %w", err)
	}
	dst, err := proj.Parse(geographicProj4)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	transform, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("build reprojection: %w", err)
	}

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		polys, err := loadShapefile(path, transform)
		if err != nil {
			return nil, err
		}
		if _, ok := rs.polygons[name]; !ok {
			rs.names = append(rs.names, name)
		}
		rs.polygons[name] = polys
	}
	return rs, nil
}

// Names returns region names in iteration order ("all" first, then sources
// in the order given to Load).
func (rs *RegionSet) Names() []string {
	out := make([]string, len(rs.names))
	copy(out, rs.names)
	return out
}

// Polygons returns the polygons of a region.
func (rs *RegionSet) Polygons(name string) []geom.Polygon {
	return rs.polygons[name]
}

// loadShapefile decodes all polygon records of a shapefile and reprojects
// their vertices to lon/lat.
func loadShapefile(path string, transform proj.Transformer) ([]geom.Polygon, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	defer d.Close()

	var polys []geom.Polygon
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		switch t := g.(type) {
		case geom.Polygon:
			p, err := reproject(t, transform)
			if err != nil {
				return nil, fmt.Errorf("reproject %s: %w", path, err)
			}
			polys = append(polys, p)
		case geom.MultiPolygon:
			for _, sub := range t {
				p, err := reproject(sub, transform)
				if err != nil {
					return nil, fmt.Errorf("reproject %s: %w", path, err)
				}
				polys = append(polys, p)
			}
		}
	}
	if err := d.Error(); err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	if len(polys) == 0 {
		return nil, &domain.DataNotFoundError{Path: path, Err: fmt.Errorf("no polygon records")}
	}
	return polys, nil
}

func reproject(p geom.Polygon, transform proj.Transformer) (geom.Polygon, error) {
	out := make(geom.Polygon, len(p))
	for i, ring := range p {
		out[i] = make([]geom.Point, len(ring))
		for j, pt := range ring {
			x, y, err := transform(pt.X, pt.Y)
			if err != nil {
				return nil, err
			}
			out[i][j] = geom.Point{X: x, Y: y}
		}
	}
	return out, nil
}
