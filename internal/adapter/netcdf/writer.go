package netcdf

import (
	"fmt"

	nc "github.com/fhs/go-netcdf/netcdf"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// WriteDataset persists a dataset in the layout the readers expect: "time"
// in seconds since epoch, "lat"/"lon" over the spatial dims, one variable
// per parameter, plus "lead_time" (hours) and a "ref_time" global attribute
// for forecast datasets. Used by interpolation tooling and test fixtures.
func WriteDataset(path string, src *domain.Dataset) error {
	ds, err := nc.CreateFile(path, nc.CLOBBER)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	timeDim, err := ds.AddDim(domain.DimTime, uint64(len(src.Time)))
	if err != nil {
		return fmt.Errorf("add dimension time: %w", err)
	}
	spatialDims := make([]nc.Dim, len(src.Grid.Dims))
	for i, name := range src.Grid.Dims {
		d, err := ds.AddDim(name, uint64(src.Grid.Shape[i]))
		if err != nil {
			return fmt.Errorf("add dimension %s: %w", name, err)
		}
		spatialDims[i] = d
	}

	timeSecs := make([]float64, len(src.Time))
	for i, t := range src.Time {
		timeSecs[i] = float64(t.Unix())
	}
	if err := writeCoord(ds, domain.DimTime, timeDim, timeSecs); err != nil {
		return err
	}
	if src.LeadTimes != nil {
		if err := writeCoord(ds, domain.DimLeadTime, timeDim, leadHours(src.LeadTimes)); err != nil {
			return err
		}
		if err := writeGlobalFloat(ds, "ref_time", float64(src.RefTime.Unix())); err != nil {
			return err
		}
	}

	latVar, err := ds.AddVar("lat", nc.DOUBLE, spatialDims)
	if err != nil {
		return fmt.Errorf("add lat: %w", err)
	}
	if err := latVar.WriteFloat64s(src.Grid.Lat.Elements); err != nil {
		return fmt.Errorf("write lat: %w", err)
	}
	lonVar, err := ds.AddVar("lon", nc.DOUBLE, spatialDims)
	if err != nil {
		return fmt.Errorf("add lon: %w", err)
	}
	if err := lonVar.WriteFloat64s(src.Grid.Lon.Elements); err != nil {
		return fmt.Errorf("write lon: %w", err)
	}

	varDims := append([]nc.Dim{timeDim}, spatialDims...)
	for _, name := range src.Params() {
		f, _ := src.Var(name)
		v, err := ds.AddVar(name, nc.DOUBLE, varDims)
		if err != nil {
			return fmt.Errorf("add variable %s: %w", name, err)
		}
		if err := v.WriteFloat64s(f.Data.Elements); err != nil {
			return fmt.Errorf("write variable %s: %w", name, err)
		}
	}
	return nil
}
