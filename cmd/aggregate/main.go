// Command aggregate merges verification result files from multiple forecast
// initializations into one stratified aggregate (season, hour, init hour)
// and writes it to a NetCDF file.
package main

import (
	"flag"
	"log/slog"
	"os"

	netcdfadapter "github.com/couchcryptid/forecast-verif/internal/adapter/netcdf"
	"github.com/couchcryptid/forecast-verif/internal/aggregate"
	"github.com/couchcryptid/forecast-verif/internal/config"
	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/observability"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

func main() {
	output := flag.String("output", "", "output path for the aggregated result")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	inputs := flag.Args()
	if *output == "" || len(inputs) == 0 {
		logger.Error("usage: aggregate -output FILE RESULT...")
		os.Exit(1)
	}

	logger.Info("starting aggregation", "inputs", len(inputs), "output", *output)

	results := make([]*verif.Result, 0, len(inputs))
	for _, path := range inputs {
		r, err := netcdfadapter.ReadResult(path)
		if err != nil {
			logger.Error("failed to read result", "path", path, "error", err)
			os.Exit(1)
		}
		results = append(results, r)
	}

	start := domain.Clock().Now()
	agg, err := aggregate.Aggregate(results, logger)
	if err != nil {
		logger.Error("aggregation failed", "error", err)
		os.Exit(1)
	}
	metrics.AggregateDuration.Observe(domain.Clock().Since(start).Seconds())

	if err := netcdfadapter.WriteAggregated(*output, agg); err != nil {
		logger.Error("failed to write aggregated result", "path", *output, "error", err)
		os.Exit(1)
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "forecast_aggregate"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	logger.Info("aggregation complete", "output", *output, "variables", len(agg.VarNames()))
}
