package netcdf

import (
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

var refTime = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureGrid(t *testing.T) domain.Grid {
	t.Helper()
	lat := sparse.ZerosDense(2, 3)
	lon := sparse.ZerosDense(2, 3)
	for iy := 0; iy < 2; iy++ {
		for ix := 0; ix < 3; ix++ {
			lat.Set(46.0+0.5*float64(iy), iy, ix)
			lon.Set(7.0+0.5*float64(ix), iy, ix)
		}
	}
	g, err := domain.NewGrid2D(lat, lon)
	require.NoError(t, err)
	return g
}

func TestForecastRoundTrip(t *testing.T) {
	grid := fixtureGrid(t)
	leads := []time.Duration{0, 6 * time.Hour, 12 * time.Hour}
	src := domain.NewForecastDataset(grid, refTime, leads)
	data := sparse.ZerosDense(3, 2, 3)
	for i := range data.Elements {
		data.Elements[i] = 270.0 + float64(i)
	}
	require.NoError(t, src.AddVar("T_2M", data))

	path := filepath.Join(t.TempDir(), "fcst.nc")
	require.NoError(t, WriteDataset(path, src))

	got, err := ReadForecast(path, nil, nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, refTime, got.RefTime)
	assert.Equal(t, leads, got.LeadTimes)
	assert.Equal(t, []string{"T_2M"}, got.Params())
	f, _ := got.Var("T_2M")
	assert.Equal(t, data.Elements, f.Data.Elements)
	assert.True(t, got.Grid.Gridded())
}

func TestReadForecast_StepSelection(t *testing.T) {
	grid := fixtureGrid(t)
	leads := []time.Duration{0, 6 * time.Hour, 12 * time.Hour}
	src := domain.NewForecastDataset(grid, refTime, leads)
	data := sparse.ZerosDense(3, 2, 3)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	require.NoError(t, src.AddVar("T_2M", data))

	path := filepath.Join(t.TempDir(), "fcst.nc")
	require.NoError(t, WriteDataset(path, src))

	// 18 is not in the file: logged and skipped.
	got, err := ReadForecast(path, nil, []int{0, 12, 18}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0, 12 * time.Hour}, got.LeadTimes)
}

func TestReadForecast_DeaggregatesPrecip(t *testing.T) {
	lat := sparse.ZerosDense(1, 1)
	lon := sparse.ZerosDense(1, 1)
	lat.Set(46, 0, 0)
	lon.Set(7, 0, 0)
	grid, err := domain.NewGrid2D(lat, lon)
	require.NoError(t, err)

	src := domain.NewForecastDataset(grid, refTime, []time.Duration{0, time.Hour, 2 * time.Hour})
	acc := sparse.ZerosDense(3, 1, 1)
	copy(acc.Elements, []float64{0, 1.5, 4.0})
	require.NoError(t, src.AddVar(domain.PrecipParam, acc))

	path := filepath.Join(t.TempDir(), "fcst.nc")
	require.NoError(t, WriteDataset(path, src))

	got, err := ReadForecast(path, nil, nil, testLogger())
	require.NoError(t, err)
	f, _ := got.Var(domain.PrecipParam)
	assert.Equal(t, []float64{0, 1.5, 2.5}, f.Data.Elements)
}

func TestReadTruth_SelectsTimes(t *testing.T) {
	grid := fixtureGrid(t)
	times := []time.Time{refTime, refTime.Add(6 * time.Hour), refTime.Add(12 * time.Hour)}
	src := domain.NewDataset(grid, times)
	data := sparse.ZerosDense(3, 2, 3)
	for i := range data.Elements {
		data.Elements[i] = 280.0
	}
	require.NoError(t, src.AddVar("T_2M", data))

	path := filepath.Join(t.TempDir(), "truth.nc")
	require.NoError(t, WriteDataset(path, src))

	want := []time.Time{refTime.Add(6 * time.Hour), refTime.Add(24 * time.Hour)}
	got, err := ReadTruth(path, want, []string{"T_2M"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{refTime.Add(6 * time.Hour)}, got.Time)
	assert.Nil(t, got.LeadTimes)
}

func TestReadTruth_MissingFile(t *testing.T) {
	_, err := ReadTruth("/nonexistent/truth.nc", nil, nil, testLogger())
	var notFound *domain.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResultRoundTrip(t *testing.T) {
	r := verif.NewResult(
		[]time.Time{refTime},
		[]time.Duration{0, 6 * time.Hour},
		[]string{"all", "alps"},
		[]string{"model", "analysis"},
	)
	r.CreatedAt = refTime.Add(30 * time.Minute)
	arr := r.EnsureVar("T_2M.BIAS")
	for i := range arr.Elements {
		arr.Elements[i] = float64(i) * 0.5
	}
	// A second variable with its own missingness.
	arr2 := r.EnsureVar("T_2M.mean")
	arr2.Elements[0] = 281.5

	path := filepath.Join(t.TempDir(), "result.nc")
	require.NoError(t, WriteResult(path, r))

	got, err := ReadResult(path)
	require.NoError(t, err)

	assert.Equal(t, r.RefTimes, got.RefTimes)
	assert.Equal(t, r.LeadTimes, got.LeadTimes)
	assert.Equal(t, r.Regions, got.Regions)
	assert.Equal(t, r.Sources, got.Sources)
	assert.Equal(t, r.VarNames(), got.VarNames())
	assert.Equal(t, r.CreatedAt, got.CreatedAt)

	gotBias, ok := got.Var("T_2M.BIAS")
	require.True(t, ok)
	assert.Equal(t, arr.Elements, gotBias.Elements)

	gotMean, ok := got.Var("T_2M.mean")
	require.True(t, ok)
	assert.Equal(t, 281.5, gotMean.Elements[0])
	assert.True(t, math.IsNaN(gotMean.Elements[1]))
}

func TestReadResult_MissingFile(t *testing.T) {
	_, err := ReadResult("/nonexistent/result.nc")
	var notFound *domain.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
}
