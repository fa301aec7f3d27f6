// Package aggregate merges per-initialization verification results and
// computes stratified means by season, hour of valid time, and hour of
// initialization. Variance-family metrics are converted to their square-root
// form after averaging.
package aggregate

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

// HourAll is the sentinel meaning "every hour" on the hour and init_hour axes.
const HourAll = -1

// Aggregated is the stratified mean of a collection of verification results.
// Every variable is shaped [season, hour, init_hour, region, source,
// lead_time]. The season axis ends with "all"; the hour axes end with the
// HourAll sentinel; those buckets hold the unconditional mean.
type Aggregated struct {
	Seasons   []string
	Hours     []int
	InitHours []int
	Regions   []string
	Sources   []string
	LeadTimes []time.Duration

	CreatedAt time.Time

	vars  map[string]*sparse.DenseArray
	order []string
}

// VarNames returns variable names in insertion order.
func (a *Aggregated) VarNames() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Var returns the named variable's array.
func (a *Aggregated) Var(name string) (*sparse.DenseArray, bool) {
	arr, ok := a.vars[name]
	return arr, ok
}

// Value reads one cell of a variable; NaN when the variable does not exist.
func (a *Aggregated) Value(name, season string, hour, initHour int, region, source string, iLead int) float64 {
	arr, ok := a.vars[name]
	if !ok {
		return math.NaN()
	}
	iS := indexOfString(a.Seasons, season)
	iH := indexOfInt(a.Hours, hour)
	iI := indexOfInt(a.InitHours, initHour)
	iR := indexOfString(a.Regions, region)
	iSrc := indexOfString(a.Sources, source)
	if iS < 0 || iH < 0 || iI < 0 || iR < 0 || iSrc < 0 || iLead < 0 || iLead >= len(a.LeadTimes) {
		return math.NaN()
	}
	return arr.Get(iS, iH, iI, iR, iSrc, iLead)
}

// merged is the outer-join concatenation of the inputs along the reference
// time axis, prior to stratification.
type merged struct {
	refTimes []time.Time
	leads    []time.Duration
	regions  []string
	sources  []string
	vars     map[string][]float64 // [ref, region, source, lead] row-major
	order    []string
}

// Aggregate merges results and computes stratified means. Each input's
// lead_time axis is deduplicated first (keep-first). Inputs are then
// outer-joined along the reference time axis; when several inputs supply
// the same source at the same reference time, the input with the most
// distinct reference times for that source wins (earlier input wins ties),
// so duplicate records are never double counted and the most complete one
// prevails.
func Aggregate(results []*verif.Result, logger *slog.Logger) (*Aggregated, error) {
	if len(results) == 0 {
		return nil, &domain.ConfigurationError{Msg: "no verification results to aggregate"}
	}
	start := domain.Clock().Now()

	deduped := make([]*verif.Result, len(results))
	for i, r := range results {
		deduped[i] = dedupLeadTimes(r)
	}

	m := concat(deduped, logger)
	agg := stratify(m)
	sqrtRename(agg)
	agg.CreatedAt = domain.Clock().Now()

	logger.Info("aggregated verification results",
		"inputs", len(results),
		"elapsed", domain.Clock().Since(start),
		"variables", len(agg.order),
		"seasons", len(agg.Seasons),
		"hours", len(agg.Hours),
		"init_hours", len(agg.InitHours))
	return agg, nil
}

// dedupLeadTimes drops lead-time columns whose value already appeared
// earlier in the same result, keeping the first occurrence.
func dedupLeadTimes(r *verif.Result) *verif.Result {
	seen := make(map[time.Duration]bool, len(r.LeadTimes))
	kept := make([]int, 0, len(r.LeadTimes))
	for i, d := range r.LeadTimes {
		if seen[d] {
			continue
		}
		seen[d] = true
		kept = append(kept, i)
	}
	if len(kept) == len(r.LeadTimes) {
		return r
	}

	leads := make([]time.Duration, len(kept))
	for j, i := range kept {
		leads[j] = r.LeadTimes[i]
	}
	out := verif.NewResult(r.RefTimes, leads, r.Regions, r.Sources)
	out.CreatedAt = r.CreatedAt
	nLead := len(r.LeadTimes)
	for _, name := range r.VarNames() {
		src, _ := r.Var(name)
		dst := out.EnsureVar(name)
		rows := len(src.Elements) / nLead
		for row := 0; row < rows; row++ {
			for j, i := range kept {
				dst.Elements[row*len(kept)+j] = src.Elements[row*nLead+i]
			}
		}
	}
	return out
}

// fillTask orders the cell-filling passes of concat: per (input, source),
// more complete records go first so their cells win conflicts.
type fillTask struct {
	input  int
	source string
	nTimes int
}

// fillOrder sorts (input, source) pairs by distinct reference time count,
// descending, with the input order breaking ties. Duplicate source labels
// across inputs are logged once.
func fillOrder(results []*verif.Result, logger *slog.Logger) []fillTask {
	var tasks []fillTask
	seen := make(map[string]int)
	for i, r := range results {
		n := distinctTimes(r.RefTimes)
		for _, src := range r.Sources {
			if prev, ok := seen[src]; ok {
				logger.Warn("source label supplied by multiple inputs, most complete record wins conflicts",
					"source", src, "first_input", prev, "other_input", i)
			} else {
				seen[src] = i
			}
			tasks = append(tasks, fillTask{input: i, source: src, nTimes: n})
		}
	}
	sort.SliceStable(tasks, func(a, b int) bool { return tasks[a].nTimes > tasks[b].nTimes })
	return tasks
}

func distinctTimes(ts []time.Time) int {
	seen := make(map[int64]bool, len(ts))
	for _, t := range ts {
		seen[t.UnixNano()] = true
	}
	return len(seen)
}

// concat outer-joins the inputs along the reference time axis, taking the
// union of every other axis and filling gaps with NaN. Cells are filled in
// fillOrder with keep-first semantics, which both collapses exact duplicate
// inputs and lets the most complete record win per-source conflicts.
func concat(results []*verif.Result, logger *slog.Logger) *merged {
	m := &merged{vars: make(map[string][]float64)}

	refSeen := make(map[int64]bool)
	leadSeen := make(map[time.Duration]bool)
	regionSeen := make(map[string]bool)
	sourceSeen := make(map[string]bool)
	for _, r := range results {
		for _, t := range r.RefTimes {
			if !refSeen[t.UnixNano()] {
				refSeen[t.UnixNano()] = true
				m.refTimes = append(m.refTimes, t)
			}
		}
		for _, d := range r.LeadTimes {
			if !leadSeen[d] {
				leadSeen[d] = true
				m.leads = append(m.leads, d)
			}
		}
		for _, reg := range r.Regions {
			if !regionSeen[reg] {
				regionSeen[reg] = true
				m.regions = append(m.regions, reg)
			}
		}
		for _, src := range r.Sources {
			if !sourceSeen[src] {
				sourceSeen[src] = true
				m.sources = append(m.sources, src)
			}
		}
	}
	sort.Slice(m.refTimes, func(a, b int) bool { return m.refTimes[a].Before(m.refTimes[b]) })
	sort.Slice(m.leads, func(a, b int) bool { return m.leads[a] < m.leads[b] })

	refIdx := make(map[int64]int, len(m.refTimes))
	for i, t := range m.refTimes {
		refIdx[t.UnixNano()] = i
	}
	leadIdx := make(map[time.Duration]int, len(m.leads))
	for i, d := range m.leads {
		leadIdx[d] = i
	}
	regionIdx := make(map[string]int, len(m.regions))
	for i, reg := range m.regions {
		regionIdx[reg] = i
	}
	sourceIdx := make(map[string]int, len(m.sources))
	for i, src := range m.sources {
		sourceIdx[src] = i
	}

	size := len(m.refTimes) * len(m.regions) * len(m.sources) * len(m.leads)
	ensure := func(name string) []float64 {
		if arr, ok := m.vars[name]; ok {
			return arr
		}
		arr := make([]float64, size)
		for i := range arr {
			arr[i] = math.NaN()
		}
		m.vars[name] = arr
		m.order = append(m.order, name)
		return arr
	}

	for _, task := range fillOrder(results, logger) {
		r := results[task.input]
		iSrc := indexOfString(r.Sources, task.source)
		oSrc := sourceIdx[task.source]
		for _, name := range r.VarNames() {
			src, _ := r.Var(name)
			dst := ensure(name)
			for iRef, t := range r.RefTimes {
				oRef := refIdx[t.UnixNano()]
				for iReg, reg := range r.Regions {
					oReg := regionIdx[reg]
					for iLead, d := range r.LeadTimes {
						v := src.Get(iRef, iReg, iSrc, iLead)
						if math.IsNaN(v) {
							continue
						}
						o := ((oRef*len(m.regions)+oReg)*len(m.sources)+oSrc)*len(m.leads) + leadIdx[d]
						if math.IsNaN(dst[o]) {
							dst[o] = v
						}
					}
				}
			}
		}
	}
	return m
}

// stratify averages the merged data over the reference time axis for every
// combination of season, hour of valid time, and hour of initialization,
// including the unconditional "all" buckets.
func stratify(m *merged) *Aggregated {
	hours := observedHours(m, false)
	initHours := observedHours(m, true)

	agg := &Aggregated{
		Seasons:   append(append([]string{}, domain.Seasons...), domain.SeasonAll),
		Hours:     append(hours, HourAll),
		InitHours: append(initHours, HourAll),
		Regions:   m.regions,
		Sources:   m.sources,
		LeadTimes: m.leads,
		vars:      make(map[string]*sparse.DenseArray),
	}

	nS, nH, nI := len(agg.Seasons), len(agg.Hours), len(agg.InitHours)
	nReg, nSrc, nLead := len(m.regions), len(m.sources), len(m.leads)

	seasonIdx := make(map[string]int, nS)
	for i, s := range agg.Seasons {
		seasonIdx[s] = i
	}
	hourIdx := make(map[int]int, nH)
	for i, h := range agg.Hours {
		hourIdx[h] = i
	}
	initIdx := make(map[int]int, nI)
	for i, h := range agg.InitHours {
		initIdx[h] = i
	}

	// Bucket membership per (ref, lead) cell: season and hour come from the
	// valid time ref+lead, init_hour from the reference time alone.
	type cell struct{ iSeason, iHour, iInit int }
	cells := make([]cell, len(m.refTimes)*nLead)
	for iRef, ref := range m.refTimes {
		iInit := initIdx[ref.Hour()]
		for iLead, d := range m.leads {
			valid := ref.Add(d)
			cells[iRef*nLead+iLead] = cell{
				iSeason: seasonIdx[domain.Season(valid)],
				iHour:   hourIdx[valid.Hour()],
				iInit:   iInit,
			}
		}
	}

	outSize := nS * nH * nI * nReg * nSrc * nLead
	for _, name := range m.order {
		in := m.vars[name]
		sum := make([]float64, outSize)
		cnt := make([]int, outSize)

		for iRef := range m.refTimes {
			for iReg := 0; iReg < nReg; iReg++ {
				for iSrc := 0; iSrc < nSrc; iSrc++ {
					base := ((iRef*nReg+iReg)*nSrc + iSrc) * nLead
					for iLead := 0; iLead < nLead; iLead++ {
						v := in[base+iLead]
						if math.IsNaN(v) {
							continue
						}
						c := cells[iRef*nLead+iLead]
						// Every non-NaN sample lands in eight buckets: its
						// own (season, hour, init_hour) plus the "all"
						// variants of each axis.
						for _, iS := range [2]int{c.iSeason, nS - 1} {
							for _, iH := range [2]int{c.iHour, nH - 1} {
								for _, iI := range [2]int{c.iInit, nI - 1} {
									o := ((((iS*nH+iH)*nI+iI)*nReg+iReg)*nSrc + iSrc) * nLead
									sum[o+iLead] += v
									cnt[o+iLead]++
								}
							}
						}
					}
				}
			}
		}

		out := sparse.ZerosDense(nS, nH, nI, nReg, nSrc, nLead)
		for i := range out.Elements {
			if cnt[i] == 0 {
				out.Elements[i] = math.NaN()
			} else {
				out.Elements[i] = sum[i] / float64(cnt[i])
			}
		}
		agg.vars[name] = out
		agg.order = append(agg.order, name)
	}
	return agg
}

func observedHours(m *merged, init bool) []int {
	seen := make(map[int]bool)
	for _, ref := range m.refTimes {
		if init {
			seen[ref.Hour()] = true
			continue
		}
		for _, d := range m.leads {
			seen[ref.Add(d).Hour()] = true
		}
	}
	hours := make([]int, 0, len(seen))
	for h := range seen {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// sqrtRename converts variance-family variables to their square-root form.
// The metric segment of the name (the part after "{param}.") determines the
// rename: VAR becomes STDE, var becomes std, MSE becomes RMSE.
func sqrtRename(agg *Aggregated) {
	renamed := make(map[string]*sparse.DenseArray, len(agg.vars))
	order := make([]string, 0, len(agg.order))
	for _, name := range agg.order {
		arr := agg.vars[name]
		newName, convert := renameMetric(name)
		if convert {
			for i, v := range arr.Elements {
				arr.Elements[i] = math.Sqrt(v)
			}
		}
		renamed[newName] = arr
		order = append(order, newName)
	}
	agg.vars = renamed
	agg.order = order
}

func renameMetric(name string) (string, bool) {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		switch p {
		case "MSE":
			parts[i] = "RMSE"
			return strings.Join(parts, "."), true
		case "VAR":
			parts[i] = "STDE"
			return strings.Join(parts, "."), true
		case "var":
			parts[i] = "std"
			return strings.Join(parts, "."), true
		}
	}
	return name, false
}

func indexOfString(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func indexOfInt(list []int, v int) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}
