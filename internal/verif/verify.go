// Package verif orchestrates forecast verification: it aligns a forecast
// dataset against a truth dataset, applies region masks, and computes error
// metrics and statistics per parameter and region into a single Result.
package verif

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/observability"
	"github.com/couchcryptid/forecast-verif/internal/regions"
	"github.com/couchcryptid/forecast-verif/internal/scores"
)

// Verifier computes verification results for aligned forecast/truth pairs.
type Verifier struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	workers int
}

// New creates a Verifier. workers bounds the number of parameters verified
// concurrently; values below one are treated as one.
func New(logger *slog.Logger, metrics *observability.Metrics, workers int) *Verifier {
	if workers < 1 {
		workers = 1
	}
	return &Verifier{logger: logger, metrics: metrics, workers: workers}
}

// regionScores holds one parameter/region's computed rows before they are
// merged into the shared Result under the mutex.
type regionScores struct {
	iRegion int
	errors  map[string]domain.Field
	fStats  map[string]domain.Field
	tStats  map[string]domain.Field
}

// Verify aligns the two datasets, masks them per region, and computes error
// metrics (tagged with fcstLabel) plus per-source statistics for every
// parameter present in both datasets. Parameters missing from truth are
// skipped with a warning. The returned Result always carries a length-1
// reference time axis so results of multiple initializations can be
// concatenated downstream.
func (v *Verifier) Verify(ctx context.Context, fcst, truth *domain.Dataset, fcstLabel, truthLabel string, rs *regions.RegionSet) (*Result, error) {
	start := domain.Clock().Now()

	if err := fcst.Validate(); err != nil {
		return nil, fmt.Errorf("forecast dataset: %w", err)
	}
	if err := truth.Validate(); err != nil {
		return nil, fmt.Errorf("truth dataset: %w", err)
	}

	fA, tA, err := domain.Align(fcst, truth)
	if err != nil {
		return nil, err
	}
	v.logger.Info("aligned datasets",
		"valid_times", len(fA.Time),
		"forecast_params", len(fA.Params()),
		"truth_params", len(tA.Params()))

	maskStart := domain.Clock().Now()
	masks, err := rs.Masks(tA.Grid)
	if err != nil {
		return nil, err
	}
	v.metrics.MaskBuildDuration.Observe(domain.Clock().Since(maskStart).Seconds())

	leads := fA.LeadTimes
	if leads == nil {
		if fA.RefTime.IsZero() {
			return nil, &domain.ConfigurationError{Msg: "forecast dataset carries neither lead times nor a reference time"}
		}
		leads = make([]time.Duration, len(fA.Time))
		for i, t := range fA.Time {
			leads[i] = t.Sub(fA.RefTime)
		}
	}

	regionNames := make([]string, len(masks))
	for i, m := range masks {
		regionNames[i] = m.Region
	}
	sources := []string{fcstLabel}
	if truthLabel != fcstLabel {
		sources = append(sources, truthLabel)
	}
	result := NewResult([]time.Time{fA.RefTime}, leads, regionNames, sources)
	iFcstSrc := result.SourceIndex(fcstLabel)
	iTruthSrc := result.SourceIndex(truthLabel)

	var (
		mu       sync.Mutex
		verified int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for _, param := range fA.Params() {
		tField, ok := tA.Var(param)
		if !ok {
			v.logger.Warn("parameter absent from truth, skipping", "param", param)
			v.metrics.ParamsSkipped.Inc()
			continue
		}
		fField, _ := fA.Var(param)

		g.Go(func() error {
			rows := make([]regionScores, 0, len(masks))
			for i, m := range masks {
				if err := gctx.Err(); err != nil {
					return err
				}
				mf := m.Apply(fField)
				mt := m.Apply(tField)

				errScores, err := scores.ErrorMetrics(mf, mt, tA.Grid.Dims, param+".", "")
				if err != nil {
					return fmt.Errorf("error metrics for %s/%s: %w", param, m.Region, err)
				}
				fStats, err := scores.Statistics(mf, tA.Grid.Dims, param+".", "")
				if err != nil {
					return fmt.Errorf("forecast statistics for %s/%s: %w", param, m.Region, err)
				}
				tStats, err := scores.Statistics(mt, tA.Grid.Dims, param+".", "")
				if err != nil {
					return fmt.Errorf("truth statistics for %s/%s: %w", param, m.Region, err)
				}
				rows = append(rows, regionScores{
					iRegion: i,
					errors:  errScores,
					fStats:  fStats,
					tStats:  tStats,
				})
			}

			mu.Lock()
			defer mu.Unlock()
			for _, row := range rows {
				for name, f := range row.errors {
					result.setRow(name, 0, row.iRegion, iFcstSrc, f.Data.Elements)
				}
				for name, f := range row.fStats {
					result.setRow(name, 0, row.iRegion, iFcstSrc, f.Data.Elements)
				}
				for name, f := range row.tStats {
					result.setRow(name, 0, row.iRegion, iTruthSrc, f.Data.Elements)
				}
			}
			verified++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.CreatedAt = domain.Clock().Now()

	elapsed := domain.Clock().Since(start)
	v.metrics.ParamsVerified.Add(float64(verified))
	v.metrics.VerifyDuration.Observe(elapsed.Seconds())
	v.metrics.RunsCompleted.Inc()
	v.logger.Info("computed verification result",
		"elapsed", elapsed,
		"params", verified,
		"variables", len(result.VarNames()),
		"regions", len(result.Regions),
		"lead_times", len(result.LeadTimes))
	return result, nil
}
