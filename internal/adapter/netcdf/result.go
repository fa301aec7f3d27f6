package netcdf

import (
	"fmt"
	"strings"
	"time"

	nc "github.com/fhs/go-netcdf/netcdf"

	"github.com/couchcryptid/forecast-verif/internal/aggregate"
	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

// Axis name lists are stored as comma-joined global attributes; NetCDF has
// no native string-array type in the classic model.
const nameSep = ","

// WriteResult persists one verification result. Layout: dimensions
// {ref_time, region, source, lead_time}, coordinate variables "ref_time"
// (seconds since epoch) and "lead_time" (hours), every metric variable
// shaped over all four dimensions, and axis names plus the variable list in
// global attributes.
func WriteResult(path string, r *verif.Result) error {
	ds, err := nc.CreateFile(path, nc.CLOBBER)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	dims, err := addDims(ds,
		dimSpec{domain.DimRefTime, len(r.RefTimes)},
		dimSpec{"region", len(r.Regions)},
		dimSpec{"source", len(r.Sources)},
		dimSpec{domain.DimLeadTime, len(r.LeadTimes)},
	)
	if err != nil {
		return err
	}

	refSecs := make([]float64, len(r.RefTimes))
	for i, t := range r.RefTimes {
		refSecs[i] = float64(t.Unix())
	}
	if err := writeCoord(ds, domain.DimRefTime, dims[0], refSecs); err != nil {
		return err
	}
	if err := writeCoord(ds, domain.DimLeadTime, dims[3], leadHours(r.LeadTimes)); err != nil {
		return err
	}

	names := r.VarNames()
	for _, name := range names {
		arr, _ := r.Var(name)
		v, err := ds.AddVar(name, nc.DOUBLE, dims)
		if err != nil {
			return fmt.Errorf("add variable %s: %w", name, err)
		}
		if err := v.WriteFloat64s(arr.Elements); err != nil {
			return fmt.Errorf("write variable %s: %w", name, err)
		}
	}

	if err := writeGlobalStrings(ds, map[string]string{
		"regions":   strings.Join(r.Regions, nameSep),
		"sources":   strings.Join(r.Sources, nameSep),
		"variables": strings.Join(names, nameSep),
	}); err != nil {
		return err
	}
	return writeGlobalFloat(ds, "created_at", float64(r.CreatedAt.Unix()))
}

// ReadResult loads a result written by WriteResult.
func ReadResult(path string) (*verif.Result, error) {
	ds, err := nc.OpenFile(path, nc.NOWRITE)
	if err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	defer func() { _ = ds.Close() }()

	refSecs, err := readCoordFloats(ds, domain.DimRefTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	hours, err := readCoordFloats(ds, domain.DimLeadTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	refTimes := make([]time.Time, len(refSecs))
	for i, s := range refSecs {
		refTimes[i] = time.Unix(int64(s), 0).UTC()
	}
	leads := make([]time.Duration, len(hours))
	for i, h := range hours {
		leads[i] = time.Duration(h * secondsPerHour * float64(time.Second))
	}

	regions, err := readGlobalString(ds, "regions")
	if err != nil {
		return nil, fmt.Errorf("%s: missing regions attribute: %w", path, err)
	}
	sources, err := readGlobalString(ds, "sources")
	if err != nil {
		return nil, fmt.Errorf("%s: missing sources attribute: %w", path, err)
	}
	variables, err := readGlobalString(ds, "variables")
	if err != nil {
		return nil, fmt.Errorf("%s: missing variables attribute: %w", path, err)
	}

	r := verif.NewResult(refTimes, leads, strings.Split(regions, nameSep), strings.Split(sources, nameSep))
	if secs, err := readGlobalFloat(ds, "created_at"); err == nil {
		r.CreatedAt = time.Unix(int64(secs), 0).UTC()
	}
	for _, name := range strings.Split(variables, nameSep) {
		v, err := ds.Var(name)
		if err != nil {
			return nil, fmt.Errorf("%s: listed variable %s not in file: %w", path, name, err)
		}
		data, _, err := readFloats(v)
		if err != nil {
			return nil, fmt.Errorf("%s: variable %s: %w", path, name, err)
		}
		arr := r.EnsureVar(name)
		if len(data) != len(arr.Elements) {
			return nil, fmt.Errorf("%s: variable %s has %d values, expected %d", path, name, len(data), len(arr.Elements))
		}
		copy(arr.Elements, data)
	}
	return r, nil
}

// WriteAggregated persists an aggregated result. Layout mirrors WriteResult
// with the stratification axes in front: dimensions {season, hour,
// init_hour, region, source, lead_time}, numeric coordinates for the hour
// axes (-1 is the "all" sentinel), and the season list in a global
// attribute.
func WriteAggregated(path string, a *aggregate.Aggregated) error {
	ds, err := nc.CreateFile(path, nc.CLOBBER)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	dims, err := addDims(ds,
		dimSpec{"season", len(a.Seasons)},
		dimSpec{"hour", len(a.Hours)},
		dimSpec{"init_hour", len(a.InitHours)},
		dimSpec{"region", len(a.Regions)},
		dimSpec{"source", len(a.Sources)},
		dimSpec{domain.DimLeadTime, len(a.LeadTimes)},
	)
	if err != nil {
		return err
	}

	if err := writeCoord(ds, "hour", dims[1], intsToFloats(a.Hours)); err != nil {
		return err
	}
	if err := writeCoord(ds, "init_hour", dims[2], intsToFloats(a.InitHours)); err != nil {
		return err
	}
	if err := writeCoord(ds, domain.DimLeadTime, dims[5], leadHours(a.LeadTimes)); err != nil {
		return err
	}

	names := a.VarNames()
	for _, name := range names {
		arr, _ := a.Var(name)
		v, err := ds.AddVar(name, nc.DOUBLE, dims)
		if err != nil {
			return fmt.Errorf("add variable %s: %w", name, err)
		}
		if err := v.WriteFloat64s(arr.Elements); err != nil {
			return fmt.Errorf("write variable %s: %w", name, err)
		}
	}

	if err := writeGlobalStrings(ds, map[string]string{
		"seasons":   strings.Join(a.Seasons, nameSep),
		"regions":   strings.Join(a.Regions, nameSep),
		"sources":   strings.Join(a.Sources, nameSep),
		"variables": strings.Join(names, nameSep),
	}); err != nil {
		return err
	}
	return writeGlobalFloat(ds, "created_at", float64(a.CreatedAt.Unix()))
}

type dimSpec struct {
	name string
	n    int
}

func addDims(ds nc.Dataset, specs ...dimSpec) ([]nc.Dim, error) {
	dims := make([]nc.Dim, len(specs))
	for i, s := range specs {
		d, err := ds.AddDim(s.name, uint64(s.n))
		if err != nil {
			return nil, fmt.Errorf("add dimension %s: %w", s.name, err)
		}
		dims[i] = d
	}
	return dims, nil
}

func writeCoord(ds nc.Dataset, name string, dim nc.Dim, data []float64) error {
	v, err := ds.AddVar(name, nc.DOUBLE, []nc.Dim{dim})
	if err != nil {
		return fmt.Errorf("add coordinate %s: %w", name, err)
	}
	if err := v.WriteFloat64s(data); err != nil {
		return fmt.Errorf("write coordinate %s: %w", name, err)
	}
	return nil
}

func readCoordFloats(ds nc.Dataset, name string) ([]float64, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, fmt.Errorf("missing coordinate %s: %w", name, err)
	}
	data, _, err := readFloats(v)
	if err != nil {
		return nil, fmt.Errorf("coordinate %s: %w", name, err)
	}
	return data, nil
}

func writeGlobalStrings(ds nc.Dataset, attrs map[string]string) error {
	for name, value := range attrs {
		if err := ds.Attr(name).WriteBytes([]byte(value)); err != nil {
			return fmt.Errorf("write attribute %s: %w", name, err)
		}
	}
	return nil
}

func writeGlobalFloat(ds nc.Dataset, name string, value float64) error {
	if err := ds.Attr(name).WriteFloat64s([]float64{value}); err != nil {
		return fmt.Errorf("write attribute %s: %w", name, err)
	}
	return nil
}

func leadHours(leads []time.Duration) []float64 {
	out := make([]float64, len(leads))
	for i, d := range leads {
		out[i] = d.Hours()
	}
	return out
}

func intsToFloats(in []int) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
