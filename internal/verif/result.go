package verif

import (
	"math"
	"time"

	"github.com/ctessum/sparse"
)

// Result is the multi-dimensional verification result of one or more
// initializations. Every variable ("T_2M.BIAS", "T_2M.mean", ...) is shaped
// [ref_time, region, source, lead_time]; cells a variable does not apply to
// (e.g. truth-source error scores) stay NaN, preserving independent
// missingness per variable the way a merged dataset would.
type Result struct {
	RefTimes  []time.Time
	LeadTimes []time.Duration
	Regions   []string
	Sources   []string

	// CreatedAt is when the result was assembled.
	CreatedAt time.Time

	vars  map[string]*sparse.DenseArray
	order []string
}

// NewResult creates an empty result over the given axes. The ref_time
// identity axis always exists, even for a single initialization, so results
// can later be concatenated along it.
func NewResult(refTimes []time.Time, leadTimes []time.Duration, regionNames, sources []string) *Result {
	return &Result{
		RefTimes:  refTimes,
		LeadTimes: leadTimes,
		Regions:   regionNames,
		Sources:   sources,
		vars:      make(map[string]*sparse.DenseArray),
	}
}

// VarNames returns variable names in insertion order.
func (r *Result) VarNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Var returns the named variable's array.
func (r *Result) Var(name string) (*sparse.DenseArray, bool) {
	arr, ok := r.vars[name]
	return arr, ok
}

// EnsureVar returns the named variable, creating it NaN-filled on first use.
func (r *Result) EnsureVar(name string) *sparse.DenseArray {
	if arr, ok := r.vars[name]; ok {
		return arr
	}
	arr := sparse.ZerosDense(len(r.RefTimes), len(r.Regions), len(r.Sources), len(r.LeadTimes))
	for i := range arr.Elements {
		arr.Elements[i] = math.NaN()
	}
	r.vars[name] = arr
	r.order = append(r.order, name)
	return arr
}

// Value reads one cell of a variable; NaN when the variable does not exist.
func (r *Result) Value(name string, iRef, iRegion, iSource, iLead int) float64 {
	arr, ok := r.vars[name]
	if !ok {
		return math.NaN()
	}
	return arr.Get(iRef, iRegion, iSource, iLead)
}

// setRow writes one lead-time row of a variable.
func (r *Result) setRow(name string, iRef, iRegion, iSource int, values []float64) {
	arr := r.EnsureVar(name)
	n := len(r.LeadTimes)
	off := ((iRef*len(r.Regions)+iRegion)*len(r.Sources) + iSource) * n
	copy(arr.Elements[off:off+n], values)
}

// RegionIndex returns the index of a region name, or -1.
func (r *Result) RegionIndex(name string) int { return indexOf(r.Regions, name) }

// SourceIndex returns the index of a source label, or -1.
func (r *Result) SourceIndex(name string) int { return indexOf(r.Sources, name) }

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}
