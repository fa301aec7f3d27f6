// Package scores holds the canonical verification metric and statistics
// functions. Every metric in the pipeline is computed here and nowhere else;
// the orchestrator and the aggregator both go through these functions.
//
// All reductions skip NaN samples instead of propagating them. The one
// exception is CORR, which follows the standard Pearson definition and is
// NaN when either side has zero variance or fewer than two paired samples.
package scores

import (
	"fmt"
	"math"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// Error metric names, in canonical output order.
var ErrorMetricNames = []string{"BIAS", "MSE", "MAE", "VAR", "CORR", "R2"}

// Statistic names, in canonical output order.
var StatisticNames = []string{"mean", "var", "min", "max"}

// ErrorMetrics reduces a forecast field against a truth field over
// reduceDims and returns one field per metric, keyed
// "{prefix}{METRIC}{suffix}". The two fields must agree in dims and shape.
//
// Reducing over the spatial dims yields temporally-resolved metrics
// (suffix ""); reducing over the time dim yields spatially-resolved metrics
// (suffix ".spatial"). Both use this same function.
func ErrorMetrics(fcst, truth domain.Field, reduceDims []string, prefix, suffix string) (map[string]domain.Field, error) {
	if err := sameLayout(fcst, truth); err != nil {
		return nil, err
	}
	keepDims, keepShape, keepMap, err := planReduction(fcst, reduceDims)
	if err != nil {
		return nil, err
	}

	outSize := size(keepShape)
	var (
		n    = make([]float64, outSize)
		sErr = make([]float64, outSize)
		sAbs = make([]float64, outSize)
		sSq  = make([]float64, outSize)
		sF   = make([]float64, outSize)
		sT   = make([]float64, outSize)
		sFF  = make([]float64, outSize)
		sTT  = make([]float64, outSize)
		sFT  = make([]float64, outSize)
	)
	for i, f := range fcst.Data.Elements {
		t := truth.Data.Elements[i]
		if math.IsNaN(f) || math.IsNaN(t) {
			continue
		}
		o := keepMap[i]
		e := f - t
		n[o]++
		sErr[o] += e
		sAbs[o] += math.Abs(e)
		sSq[o] += e * e
		sF[o] += f
		sT[o] += t
		sFF[o] += f * f
		sTT[o] += t * t
		sFT[o] += f * t
	}

	out := make(map[string]domain.Field, len(ErrorMetricNames))
	for _, name := range ErrorMetricNames {
		out[prefix+name+suffix] = domain.NaNField(keepDims, keepShape...)
	}
	bias := out[prefix+"BIAS"+suffix].Data.Elements
	mse := out[prefix+"MSE"+suffix].Data.Elements
	mae := out[prefix+"MAE"+suffix].Data.Elements
	varE := out[prefix+"VAR"+suffix].Data.Elements
	corr := out[prefix+"CORR"+suffix].Data.Elements
	r2 := out[prefix+"R2"+suffix].Data.Elements

	for o := 0; o < outSize; o++ {
		if n[o] == 0 {
			continue
		}
		m := sErr[o] / n[o]
		bias[o] = m
		mse[o] = sSq[o] / n[o]
		mae[o] = sAbs[o] / n[o]
		v := sSq[o]/n[o] - m*m
		if v < 0 {
			// FP noise; variance is non-negative by construction.
			v = 0
		}
		varE[o] = v
		corr[o] = pearson(n[o], sF[o], sT[o], sFF[o], sTT[o], sFT[o])
		r2[o] = corr[o] * corr[o]
	}
	return out, nil
}

// Statistics reduces a single field over reduceDims and returns mean,
// variance, min, and max, keyed "{prefix}{stat}{suffix}".
func Statistics(data domain.Field, reduceDims []string, prefix, suffix string) (map[string]domain.Field, error) {
	keepDims, keepShape, keepMap, err := planReduction(data, reduceDims)
	if err != nil {
		return nil, err
	}

	outSize := size(keepShape)
	var (
		n   = make([]float64, outSize)
		sum = make([]float64, outSize)
		sq  = make([]float64, outSize)
	)
	out := make(map[string]domain.Field, len(StatisticNames))
	for _, name := range StatisticNames {
		out[prefix+name+suffix] = domain.NaNField(keepDims, keepShape...)
	}
	mean := out[prefix+"mean"+suffix].Data.Elements
	varD := out[prefix+"var"+suffix].Data.Elements
	minD := out[prefix+"min"+suffix].Data.Elements
	maxD := out[prefix+"max"+suffix].Data.Elements

	for i, v := range data.Data.Elements {
		if math.IsNaN(v) {
			continue
		}
		o := keepMap[i]
		n[o]++
		sum[o] += v
		sq[o] += v * v
		if math.IsNaN(minD[o]) || v < minD[o] {
			minD[o] = v
		}
		if math.IsNaN(maxD[o]) || v > maxD[o] {
			maxD[o] = v
		}
	}
	for o := 0; o < outSize; o++ {
		if n[o] == 0 {
			continue
		}
		m := sum[o] / n[o]
		mean[o] = m
		v := sq[o]/n[o] - m*m
		if v < 0 {
			v = 0
		}
		varD[o] = v
	}
	return out, nil
}

// pearson computes the correlation coefficient from running sums over valid
// pairs. Degenerate inputs (fewer than two pairs, zero variance) yield NaN.
func pearson(n, sF, sT, sFF, sTT, sFT float64) float64 {
	if n < 2 {
		return math.NaN()
	}
	varF := n*sFF - sF*sF
	varT := n*sTT - sT*sT
	if varF <= 0 || varT <= 0 {
		return math.NaN()
	}
	return (n*sFT - sF*sT) / math.Sqrt(varF*varT)
}

// planReduction maps every flat element index of f to a flat index over the
// dims that remain after reducing reduceDims. A reduction over all dims
// keeps a single scalar cell (keepDims nil, keepShape [1]).
func planReduction(f domain.Field, reduceDims []string) (keepDims []string, keepShape []int, keepMap []int, err error) {
	reduce := make(map[string]bool, len(reduceDims))
	for _, d := range reduceDims {
		found := false
		for _, fd := range f.Dims {
			if fd == d {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, nil, fmt.Errorf("reduce dim %q not among field dims %v", d, f.Dims)
		}
		reduce[d] = true
	}

	ndim := len(f.Dims)
	inStride := strides(f.Data.Shape)

	for i, d := range f.Dims {
		if !reduce[d] {
			keepDims = append(keepDims, d)
			keepShape = append(keepShape, f.Data.Shape[i])
		}
	}
	scalar := len(keepShape) == 0
	if scalar {
		keepDims = nil
		keepShape = []int{1}
	}
	outStride := strides(keepShape)

	keepMap = make([]int, len(f.Data.Elements))
	if scalar {
		return keepDims, keepShape, keepMap, nil
	}
	for flat := range keepMap {
		rem := flat
		o, k := 0, 0
		for i := 0; i < ndim; i++ {
			idx := rem / inStride[i]
			rem %= inStride[i]
			if !reduce[f.Dims[i]] {
				o += idx * outStride[k]
				k++
			}
		}
		keepMap[flat] = o
	}
	return keepDims, keepShape, keepMap, nil
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func sameLayout(a, b domain.Field) error {
	if len(a.Dims) != len(b.Dims) {
		return fmt.Errorf("fields have different dims: %v vs %v", a.Dims, b.Dims)
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return fmt.Errorf("fields have different dims: %v vs %v", a.Dims, b.Dims)
		}
		if a.Data.Shape[i] != b.Data.Shape[i] {
			return fmt.Errorf("fields have different shapes: %v vs %v", a.Data.Shape, b.Data.Shape)
		}
	}
	return nil
}
