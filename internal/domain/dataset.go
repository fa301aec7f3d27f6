package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"
)

// Canonical dimension names shared across the verification pipeline.
const (
	DimTime     = "time"
	DimLeadTime = "lead_time"
	DimRefTime  = "ref_time"
	DimY        = "y"
	DimX        = "x"
	DimValues   = "values"
)

// Field is one data variable: a dense array tagged with ordered dimension
// names matching its shape.
type Field struct {
	Dims []string
	Data *sparse.DenseArray
}

// NaNField returns a field of the given dims and shape filled with NaN.
func NaNField(dims []string, shape ...int) Field {
	arr := sparse.ZerosDense(shape...)
	for i := range arr.Elements {
		arr.Elements[i] = math.NaN()
	}
	return Field{Dims: dims, Data: arr}
}

// Grid describes the spatial layout of a dataset: either a structured (y, x)
// grid with 2-D coordinate arrays or a flat point layout with 1-D coordinates.
type Grid struct {
	Dims  []string
	Shape []int
	Lat   *sparse.DenseArray
	Lon   *sparse.DenseArray
}

// NewGrid2D builds a structured grid from 2-D latitude/longitude arrays of
// identical [ny, nx] shape.
func NewGrid2D(lat, lon *sparse.DenseArray) (Grid, error) {
	if len(lat.Shape) != 2 || len(lon.Shape) != 2 {
		return Grid{}, fmt.Errorf("gridded layout needs 2-D coordinates, got lat %v lon %v", lat.Shape, lon.Shape)
	}
	if lat.Shape[0] != lon.Shape[0] || lat.Shape[1] != lon.Shape[1] {
		return Grid{}, fmt.Errorf("latitude shape %v does not match longitude shape %v", lat.Shape, lon.Shape)
	}
	return Grid{
		Dims:  []string{DimY, DimX},
		Shape: []int{lat.Shape[0], lat.Shape[1]},
		Lat:   lat,
		Lon:   lon,
	}, nil
}

// NewGridPoints builds an unstructured point layout from 1-D
// latitude/longitude arrays of identical length.
func NewGridPoints(lat, lon *sparse.DenseArray) (Grid, error) {
	if len(lat.Shape) != 1 || len(lon.Shape) != 1 {
		return Grid{}, fmt.Errorf("point layout needs 1-D coordinates, got lat %v lon %v", lat.Shape, lon.Shape)
	}
	if lat.Shape[0] != lon.Shape[0] {
		return Grid{}, fmt.Errorf("latitude length %d does not match longitude length %d", lat.Shape[0], lon.Shape[0])
	}
	return Grid{
		Dims:  []string{DimValues},
		Shape: []int{lat.Shape[0]},
		Lat:   lat,
		Lon:   lon,
	}, nil
}

// Size returns the number of spatial points.
func (g Grid) Size() int {
	n := 1
	for _, s := range g.Shape {
		n *= s
	}
	return n
}

// Gridded reports whether the layout is a structured (y, x) grid.
func (g Grid) Gridded() bool { return len(g.Shape) == 2 }

// SameShape reports whether two grids have identical spatial extents.
func (g Grid) SameShape(other Grid) bool {
	if len(g.Shape) != len(other.Shape) {
		return false
	}
	for i := range g.Shape {
		if g.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Dataset is the GriddedOrPointDataset abstraction consumed by the
// verification core. See the package documentation for invariants.
type Dataset struct {
	// RefTime is the forecast initialization time; zero for truth datasets.
	RefTime time.Time
	// Time holds the valid time for each index of the time axis.
	Time []time.Time
	// LeadTimes is parallel to Time for forecast datasets, nil otherwise.
	LeadTimes []time.Duration
	// Grid is the spatial layout shared by all variables.
	Grid Grid

	vars       map[string]Field
	order      []string
	precipDone bool
}

// NewDataset creates an empty dataset over the given grid and valid times.
func NewDataset(grid Grid, times []time.Time) *Dataset {
	return &Dataset{
		Time: times,
		Grid: grid,
		vars: make(map[string]Field),
	}
}

// NewForecastDataset creates an empty forecast dataset. Valid times are
// derived as refTime + lead for each lead time.
func NewForecastDataset(grid Grid, refTime time.Time, leads []time.Duration) *Dataset {
	times := make([]time.Time, len(leads))
	for i, l := range leads {
		times[i] = refTime.Add(l)
	}
	ds := NewDataset(grid, times)
	ds.RefTime = refTime
	ds.LeadTimes = leads
	return ds
}

// AddVar registers a variable. The array must be shaped
// [len(Time), spatial...]; anything else is rejected so that malformed
// adapter output fails at the boundary. Re-adding a name replaces the
// previous array but keeps its position.
func (ds *Dataset) AddVar(name string, data *sparse.DenseArray) error {
	want := append([]int{len(ds.Time)}, ds.Grid.Shape...)
	if len(data.Shape) != len(want) {
		return fmt.Errorf("variable %s: expected %d dims %v, got %v", name, len(want), want, data.Shape)
	}
	for i := range want {
		if data.Shape[i] != want[i] {
			return fmt.Errorf("variable %s: expected shape %v, got %v", name, want, data.Shape)
		}
	}
	if _, ok := ds.vars[name]; !ok {
		ds.order = append(ds.order, name)
	}
	ds.vars[name] = Field{
		Dims: append([]string{DimTime}, ds.Grid.Dims...),
		Data: data,
	}
	return nil
}

// Var returns the named variable.
func (ds *Dataset) Var(name string) (Field, bool) {
	f, ok := ds.vars[name]
	return f, ok
}

// Params returns variable names in insertion order.
func (ds *Dataset) Params() []string {
	out := make([]string, len(ds.order))
	copy(out, ds.order)
	return out
}

// Validate checks the coordinate invariants: non-empty time axis, lead times
// parallel to the time axis and consistent with RefTime, and coordinate
// arrays matching the grid shape.
func (ds *Dataset) Validate() error {
	if len(ds.Time) == 0 {
		return fmt.Errorf("dataset has an empty time axis")
	}
	if ds.LeadTimes != nil {
		if len(ds.LeadTimes) != len(ds.Time) {
			return fmt.Errorf("lead_time length %d does not match time length %d", len(ds.LeadTimes), len(ds.Time))
		}
		if ds.RefTime.IsZero() {
			return fmt.Errorf("lead times present but ref_time is unset")
		}
		for i, l := range ds.LeadTimes {
			if !ds.RefTime.Add(l).Equal(ds.Time[i]) {
				return fmt.Errorf("time[%d]=%s is not ref_time+lead_time (%s+%s)",
					i, ds.Time[i], ds.RefTime, l)
			}
		}
	}
	if ds.Grid.Lat == nil || ds.Grid.Lon == nil {
		return fmt.Errorf("dataset grid is missing latitude/longitude coordinates")
	}
	return nil
}

// selectTimeIndices returns a copy restricted to the given time-axis indices,
// in the given order. Variable arrays are copied row by row.
func (ds *Dataset) selectTimeIndices(idx []int) *Dataset {
	out := NewDataset(ds.Grid, make([]time.Time, len(idx)))
	out.RefTime = ds.RefTime
	out.precipDone = ds.precipDone
	if ds.LeadTimes != nil {
		out.LeadTimes = make([]time.Duration, len(idx))
	}
	for j, i := range idx {
		out.Time[j] = ds.Time[i]
		if ds.LeadTimes != nil {
			out.LeadTimes[j] = ds.LeadTimes[i]
		}
	}
	spatial := ds.Grid.Size()
	for _, name := range ds.order {
		src := ds.vars[name].Data
		dst := sparse.ZerosDense(append([]int{len(idx)}, ds.Grid.Shape...)...)
		for j, i := range idx {
			copy(dst.Elements[j*spatial:(j+1)*spatial], src.Elements[i*spatial:(i+1)*spatial])
		}
		// AddVar cannot fail here: shapes are constructed to match.
		_ = out.AddVar(name, dst)
	}
	return out
}

// SelectTimes restricts the dataset to the requested valid times. Requested
// times missing from the dataset are returned in the second value for the
// caller to log; if none of the requested times are present an
// AlignmentError is returned.
func (ds *Dataset) SelectTimes(times []time.Time) (*Dataset, []time.Time, error) {
	index := make(map[int64]int, len(ds.Time))
	for i, t := range ds.Time {
		index[t.UnixNano()] = i
	}
	var idx []int
	var missing []time.Time
	for _, t := range times {
		if i, ok := index[t.UnixNano()]; ok {
			idx = append(idx, i)
		} else {
			missing = append(missing, t)
		}
	}
	if len(idx) == 0 {
		return nil, missing, &AlignmentError{Msg: "none of the requested valid times are present in the dataset"}
	}
	return ds.selectTimeIndices(idx), missing, nil
}
