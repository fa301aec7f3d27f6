// Command verify runs one forecast verification: it loads a forecast and a
// truth dataset, computes region-stratified error metrics and statistics,
// and writes the result to a NetCDF file. Run inputs come from a TOML run
// spec and/or flags; process settings come from the environment.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	kafkaadapter "github.com/couchcryptid/forecast-verif/internal/adapter/kafka"
	netcdfadapter "github.com/couchcryptid/forecast-verif/internal/adapter/netcdf"
	"github.com/couchcryptid/forecast-verif/internal/config"
	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/observability"
	"github.com/couchcryptid/forecast-verif/internal/regions"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

func main() {
	var (
		runSpecPath = flag.String("run-spec", "", "path to a TOML run spec; flags override its values")
		forecast    = flag.String("forecast", "", "forecast dataset path")
		truth       = flag.String("truth", "", "truth dataset path")
		output      = flag.String("output", "", "output result path")
		label       = flag.String("label", "", "source label for the forecast")
		truthLabel  = flag.String("truth-label", "", "source label for the truth")
		params      = flag.String("params", "", "comma-separated parameters; empty means all")
		steps       = flag.String("steps", "", "lead-time hours as start/stop/step, e.g. 0/120/6")
		regionPaths = flag.String("regions", "", "comma-separated region shapefile paths")
		regionProj4 = flag.String("region-proj4", "", "proj4 definition of the region shapefiles")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	spec := &config.RunSpec{}
	if *runSpecPath != "" {
		if spec, err = config.LoadRunSpec(*runSpecPath); err != nil {
			logger.Error("failed to load run spec", "path", *runSpecPath, "error", err)
			os.Exit(1)
		}
	}
	overrideString(&spec.Forecast, *forecast)
	overrideString(&spec.Truth, *truth)
	overrideString(&spec.Output, *output)
	overrideString(&spec.ForecastLabel, *label)
	overrideString(&spec.TruthLabel, *truthLabel)
	overrideString(&spec.Steps, *steps)
	overrideString(&spec.RegionProj4, *regionProj4)
	overrideList(&spec.Params, *params)
	overrideList(&spec.Regions, *regionPaths)
	if err := spec.Validate(); err != nil {
		logger.Error("invalid run spec", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting verification run",
		"forecast", spec.Forecast,
		"truth", spec.Truth,
		"forecast_label", spec.ForecastLabel,
		"truth_label", spec.TruthLabel,
		"params", spec.Params,
		"steps", spec.Steps,
		"regions", spec.Regions,
		"output", spec.Output,
		"workers", cfg.Workers)

	if err := run(ctx, cfg, spec, logger, metrics); err != nil {
		logger.Error("verification run failed", "error", err)
		os.Exit(1)
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "forecast_verify"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	logger.Info("verification run complete", "output", spec.Output)
}

func run(ctx context.Context, cfg *config.Config, spec *config.RunSpec, logger *slog.Logger, metrics *observability.Metrics) error {
	var hourSteps []int
	if spec.Steps != "" {
		var err error
		if hourSteps, err = domain.ParseSteps(spec.Steps); err != nil {
			return err
		}
	}

	fcst, err := netcdfadapter.ReadForecast(spec.Forecast, spec.Params, hourSteps, logger)
	if err != nil {
		return err
	}
	truth, err := netcdfadapter.ReadTruth(spec.Truth, fcst.Time, spec.Params, logger)
	if err != nil {
		return err
	}

	regionSet := regions.Default()
	if len(spec.Regions) > 0 {
		proj4 := spec.RegionProj4
		if proj4 == "" {
			proj4 = regions.DefaultSourceProj4
		}
		if regionSet, err = regions.Load(spec.Regions, proj4); err != nil {
			return err
		}
	}

	verifier := verif.New(logger, metrics, cfg.Workers)
	result, err := verifier.Verify(ctx, fcst, truth, spec.ForecastLabel, spec.TruthLabel, regionSet)
	if err != nil {
		return err
	}
	if err := netcdfadapter.WriteResult(spec.Output, result); err != nil {
		return err
	}

	if cfg.KafkaEnabled() {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		if err := publisher.PublishRun(ctx, result, spec.ForecastLabel, spec.TruthLabel, spec.Output); err != nil {
			// The result file is already on disk; a lost event is recoverable.
			logger.Warn("failed to publish run event", "error", err)
		} else {
			metrics.EventsPublished.Inc()
		}
	}
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideList(dst *[]string, v string) {
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
