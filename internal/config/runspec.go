package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/forecast-verif/internal/domain"
)

// RunSpec describes one verification run: the input datasets, the labels the
// results are tagged with, and the parameter/step/region subsets. It is read
// from a TOML file referenced on the command line; individual flags override
// file values.
type RunSpec struct {
	Forecast string `toml:"forecast" validate:"required"`
	Truth    string `toml:"truth" validate:"required"`
	Output   string `toml:"output" validate:"required"`

	ForecastLabel string `toml:"forecast_label" validate:"required"`
	TruthLabel    string `toml:"truth_label" validate:"required"`

	// Params to verify; empty means every parameter the forecast carries.
	Params []string `toml:"params"`

	// Steps is a "start/stop/step" hour range, e.g. "0/120/6"; empty means
	// every lead time present in the forecast.
	Steps string `toml:"steps"`

	// Regions lists shapefile paths; empty means the built-in "all" region.
	Regions []string `toml:"regions"`

	// RegionProj4 is the proj4 definition the region shapefiles are in.
	// Empty means EPSG:2056 (the operational delivery system).
	RegionProj4 string `toml:"region_proj4"`
}

// LoadRunSpec decodes and validates a TOML run-spec file.
func LoadRunSpec(path string) (*RunSpec, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &domain.DataNotFoundError{Path: path, Err: err}
	}
	var spec RunSpec
	if _, err := toml.DecodeFile(path, &spec); err != nil {
		return nil, fmt.Errorf("decode run spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks required fields and the step range syntax.
func (s *RunSpec) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return &domain.ConfigurationError{Msg: err.Error()}
	}
	if s.Steps != "" {
		if _, err := domain.ParseSteps(s.Steps); err != nil {
			return err
		}
	}
	return nil
}
