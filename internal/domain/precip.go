package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// PrecipParam is the accumulated total-precipitation variable emitted by the
// GRIB and Zarr decoders.
const PrecipParam = "TOT_PREC"

// DeaggregatePrecip converts accumulated-since-initialization precipitation
// variables to per-interval increments: missing samples are treated as zero
// accumulation, each interval is the difference to the previous one (the
// first interval is diffed against zero), and negative increments are
// clipped to zero.
//
// The conversion is order-dependent and must happen exactly once, before
// alignment; a second call on the same dataset fails. With no explicit
// params it converts PrecipParam if present. A named param missing from the
// dataset is an error: silently skipping it would leave accumulated values
// flowing into the metrics.
func DeaggregatePrecip(ds *Dataset, params ...string) (*Dataset, error) {
	if ds.precipDone {
		return nil, fmt.Errorf("precipitation already deaggregated")
	}
	if len(params) == 0 {
		if _, ok := ds.vars[PrecipParam]; ok {
			params = []string{PrecipParam}
		}
	}

	out := ds.selectTimeIndices(identityIndices(len(ds.Time)))
	out.precipDone = true
	for _, name := range params {
		f, ok := out.vars[name]
		if !ok {
			return nil, fmt.Errorf("deaggregate precipitation: variable %s not in dataset", name)
		}
		out.vars[name] = Field{Dims: f.Dims, Data: deaggregate(f.Data, out.Grid.Size())}
	}
	return out, nil
}

// deaggregate applies the increment conversion along the leading time axis.
func deaggregate(acc *sparse.DenseArray, spatial int) *sparse.DenseArray {
	nt := acc.Shape[0]
	out := sparse.ZerosDense(acc.Shape...)
	for it := 0; it < nt; it++ {
		for is := 0; is < spatial; is++ {
			cur := acc.Elements[it*spatial+is]
			if math.IsNaN(cur) {
				cur = 0
			}
			prev := 0.0
			if it > 0 {
				prev = acc.Elements[(it-1)*spatial+is]
				if math.IsNaN(prev) {
					prev = 0
				}
			}
			inc := cur - prev
			if inc < 0 {
				inc = 0
			}
			out.Elements[it*spatial+is] = inc
		}
	}
	return out
}

func identityIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
