// Package netcdf reads forecast and truth datasets from NetCDF files and
// persists verification results. File layout conventions: a "time"
// coordinate in seconds since the Unix epoch, "lat"/"lon" coordinates
// matching the spatial dimensions, and one variable per physical parameter
// shaped [time, spatial...]. Forecast files additionally carry a "lead_time"
// variable in hours and a "ref_time" global attribute.
package netcdf

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	nc "github.com/fhs/go-netcdf/netcdf"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

const secondsPerHour = 3600.0

// ReadForecast loads a forecast dataset. When steps is non-empty the dataset
// is restricted to those lead times (hours); requested steps absent from the
// file are logged and skipped, and it is an error if none remain.
// Accumulated precipitation is converted to metres if needed and
// disaggregated into per-interval increments before the dataset is returned.
func ReadForecast(path string, params []string, steps []int, logger *slog.Logger) (*domain.Dataset, error) {
	ds, err := nc.OpenFile(path, nc.NOWRITE)
	if err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	defer func() { _ = ds.Close() }()

	grid, err := readGrid(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	refSecs, err := readGlobalFloat(ds, "ref_time")
	if err != nil {
		return nil, fmt.Errorf("%s: missing ref_time attribute: %w", path, err)
	}
	refTime := time.Unix(int64(refSecs), 0).UTC()

	leadVar, err := ds.Var("lead_time")
	if err != nil {
		return nil, fmt.Errorf("%s: missing lead_time variable: %w", path, err)
	}
	leadHours, _, err := readFloats(leadVar)
	if err != nil {
		return nil, fmt.Errorf("%s: lead_time: %w", path, err)
	}
	leads := make([]time.Duration, len(leadHours))
	for i, h := range leadHours {
		leads[i] = time.Duration(h * secondsPerHour * float64(time.Second))
	}

	out := domain.NewForecastDataset(grid, refTime, leads)
	if err := readVars(ds, out, params, logger); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if len(steps) > 0 {
		want := make([]time.Time, len(steps))
		for i, s := range steps {
			want[i] = refTime.Add(time.Duration(s) * time.Hour)
		}
		selected, missing, err := out.SelectTimes(want)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, t := range missing {
			logger.Warn("requested forecast step not in file",
				"path", path, "valid_time", t, "step", t.Sub(refTime))
		}
		out = selected
	}

	if _, ok := out.Var(domain.PrecipParam); ok {
		if out, err = domain.DeaggregatePrecip(out); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	logger.Info("loaded forecast dataset",
		"path", path,
		"ref_time", refTime,
		"lead_times", len(out.LeadTimes),
		"params", len(out.Params()))
	return out, nil
}

// ReadTruth loads a truth dataset restricted to the requested valid times.
// Requested times absent from the file are logged and dropped; it is an
// error if none are present. A nil times slice keeps the full time axis.
func ReadTruth(path string, times []time.Time, params []string, logger *slog.Logger) (*domain.Dataset, error) {
	ds, err := nc.OpenFile(path, nc.NOWRITE)
	if err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	defer func() { _ = ds.Close() }()

	grid, err := readGrid(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	timeVar, err := ds.Var("time")
	if err != nil {
		return nil, fmt.Errorf("%s: missing time variable: %w", path, err)
	}
	timeSecs, _, err := readFloats(timeVar)
	if err != nil {
		return nil, fmt.Errorf("%s: time: %w", path, err)
	}
	axis := make([]time.Time, len(timeSecs))
	for i, s := range timeSecs {
		axis[i] = time.Unix(int64(s), 0).UTC()
	}

	out := domain.NewDataset(grid, axis)
	if err := readVars(ds, out, params, logger); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if times != nil {
		selected, missing, err := out.SelectTimes(times)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, t := range missing {
			logger.Warn("requested valid time not in truth file", "path", path, "valid_time", t)
		}
		out = selected
	}

	logger.Info("loaded truth dataset",
		"path", path,
		"valid_times", len(out.Time),
		"params", len(out.Params()))
	return out, nil
}

// readGrid builds the spatial layout from lat/lon coordinate variables,
// accepting either 2-D (y, x) or 1-D point coordinates.
func readGrid(ds nc.Dataset) (domain.Grid, error) {
	lat, err := readCoord(ds, "lat", "latitude")
	if err != nil {
		return domain.Grid{}, err
	}
	lon, err := readCoord(ds, "lon", "longitude")
	if err != nil {
		return domain.Grid{}, err
	}
	if len(lat.Shape) == 2 {
		return domain.NewGrid2D(lat, lon)
	}
	return domain.NewGridPoints(lat, lon)
}

func readCoord(ds nc.Dataset, names ...string) (*sparse.DenseArray, error) {
	for _, name := range names {
		v, err := ds.Var(name)
		if err != nil {
			continue
		}
		data, shape, err := readFloats(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		arr := sparse.ZerosDense(shape...)
		copy(arr.Elements, data)
		return arr, nil
	}
	return nil, fmt.Errorf("coordinate variable not found (tried %v)", names)
}

// readVars loads the requested parameters into the dataset. An empty params
// slice loads every variable whose shape matches [time, spatial...].
// Explicitly requested parameters absent from the file are logged and
// skipped; it is an error if nothing loads.
func readVars(ds nc.Dataset, out *domain.Dataset, params []string, logger *slog.Logger) error {
	if len(params) == 0 {
		n, err := ds.NVars()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			v := ds.VarN(i)
			name, err := v.Name()
			if err != nil {
				return err
			}
			if isCoordName(name) {
				continue
			}
			if err := readVar(ds, out, name, v); err != nil {
				logger.Warn("skipping variable with unexpected shape", "var", name, "error", err)
			}
		}
	} else {
		for _, name := range params {
			v, err := ds.Var(name)
			if err != nil {
				logger.Warn("requested parameter not in file", "param", name)
				continue
			}
			if err := readVar(ds, out, name, v); err != nil {
				return fmt.Errorf("variable %s: %w", name, err)
			}
		}
	}
	if len(out.Params()) == 0 {
		return &domain.DataNotFoundError{Path: "", Err: fmt.Errorf("no usable data variables")}
	}
	return nil
}

func isCoordName(name string) bool {
	switch name {
	case "time", "lead_time", "lat", "lon", "latitude", "longitude":
		return true
	}
	return false
}

func readVar(ds nc.Dataset, out *domain.Dataset, name string, v nc.Var) error {
	data, shape, err := readFloats(v)
	if err != nil {
		return err
	}
	if fill, ok := fillValue(v); ok {
		for i, x := range data {
			if x == fill {
				data[i] = math.NaN()
			}
		}
	}
	// Accumulated precipitation arrives in kg m-2 (equivalent to mm);
	// convert to metres so all depths share one unit downstream.
	if name == domain.PrecipParam && strings.HasPrefix(varUnits(v), "kg m-2") {
		for i := range data {
			data[i] /= 1000
		}
	}
	arr := sparse.ZerosDense(shape...)
	copy(arr.Elements, data)
	return out.AddVar(name, arr)
}

// readFloats reads a whole variable of any rank as float64, converting from
// narrower numeric types.
func readFloats(v nc.Var) ([]float64, []int, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, nil, err
	}
	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		l, err := d.Len()
		if err != nil {
			return nil, nil, err
		}
		shape[i] = int(l)
		n *= int(l)
	}
	t, err := v.Type()
	if err != nil {
		return nil, nil, err
	}
	switch t {
	case nc.DOUBLE:
		data := make([]float64, n)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, nil, err
		}
		return data, shape, nil
	case nc.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, nil, err
		}
		data := make([]float64, n)
		for i, x := range tmp {
			data[i] = float64(x)
		}
		return data, shape, nil
	case nc.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, nil, err
		}
		data := make([]float64, n)
		for i, x := range tmp {
			data[i] = float64(x)
		}
		return data, shape, nil
	case nc.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, nil, err
		}
		data := make([]float64, n)
		for i, x := range tmp {
			data[i] = float64(x)
		}
		return data, shape, nil
	default:
		return nil, nil, fmt.Errorf("unsupported variable type %v", t)
	}
}

func fillValue(v nc.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if a == (nc.Attr{}) {
			continue
		}
		if n, err := a.Len(); err == nil && n > 0 {
			buf := make([]float64, 1)
			if err := a.ReadFloat64s(buf); err == nil {
				return buf[0], true
			}
			buf32 := make([]float32, 1)
			if err := a.ReadFloat32s(buf32); err == nil {
				return float64(buf32[0]), true
			}
		}
	}
	return 0, false
}

func varUnits(v nc.Var) string {
	a := v.Attr("units")
	if a == (nc.Attr{}) {
		return ""
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return string(buf)
}

func readGlobalFloat(ds nc.Dataset, name string) (float64, error) {
	a := ds.Attr(name)
	buf := make([]float64, 1)
	if err := a.ReadFloat64s(buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readGlobalString(ds nc.Dataset, name string) (string, error) {
	a := ds.Attr(name)
	n, err := a.Len()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
