package aggregate_test

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-verif/internal/aggregate"
	"github.com/couchcryptid/forecast-verif/internal/domain"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// singleInitResult builds a one-initialization result with the "all" region
// and one source; vars maps a variable name to its per-lead values.
func singleInitResult(ref time.Time, leads []time.Duration, source string, vars map[string][]float64) *verif.Result {
	r := verif.NewResult([]time.Time{ref}, leads, []string{"all"}, []string{source})
	for name, values := range vars {
		arr := r.EnsureVar(name)
		copy(arr.Elements, values)
	}
	return r
}

func TestAggregate_SeasonBuckets(t *testing.T) {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	leads := []time.Duration{0}

	agg, err := aggregate.Aggregate([]*verif.Result{
		singleInitResult(jan, leads, "model", map[string][]float64{"T.BIAS": {2.0}}),
		singleInitResult(jul, leads, "model", map[string][]float64{"T.BIAS": {4.0}}),
	}, testLogger())
	require.NoError(t, err)

	all := aggregate.HourAll
	assert.InDelta(t, 3.0, agg.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)
	assert.InDelta(t, 2.0, agg.Value("T.BIAS", domain.SeasonDJF, all, all, "all", "model", 0), 1e-12)
	assert.InDelta(t, 4.0, agg.Value("T.BIAS", domain.SeasonJJA, all, all, "all", "model", 0), 1e-12)
	// No input falls into spring.
	assert.True(t, math.IsNaN(agg.Value("T.BIAS", domain.SeasonMAM, all, all, "all", "model", 0)))
}

func TestAggregate_DuplicateInputNotDoubleCounted(t *testing.T) {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	leads := []time.Duration{0, 6 * time.Hour}
	r := singleInitResult(jan, leads, "model", map[string][]float64{"T.BIAS": {1.0, 5.0}})

	once, err := aggregate.Aggregate([]*verif.Result{r}, testLogger())
	require.NoError(t, err)
	twice, err := aggregate.Aggregate([]*verif.Result{r, r}, testLogger())
	require.NoError(t, err)

	all := aggregate.HourAll
	for iLead := range leads {
		want := once.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", iLead)
		got := twice.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", iLead)
		assert.Equal(t, want, got, "lead %d", iLead)
	}
}

func TestAggregate_MostCompleteSourceWinsConflicts(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	leads := []time.Duration{0}

	partial := singleInitResult(jan1, leads, "model", map[string][]float64{"T.BIAS": {10.0}})
	complete := verif.NewResult([]time.Time{jan1, jan2}, leads, []string{"all"}, []string{"model"})
	arr := complete.EnsureVar("T.BIAS")
	arr.Elements[0] = 2.0
	arr.Elements[1] = 2.0

	agg, err := aggregate.Aggregate([]*verif.Result{partial, complete}, testLogger())
	require.NoError(t, err)

	all := aggregate.HourAll
	// The two-initialization record supplies both days; the partial one's
	// conflicting jan1 value is dropped.
	assert.InDelta(t, 2.0, agg.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)
}

func TestAggregate_LeadTimeDeduplication(t *testing.T) {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	leads := []time.Duration{0, 6 * time.Hour, 6 * time.Hour}
	r := singleInitResult(jan, leads, "model", map[string][]float64{"T.BIAS": {1.0, 2.0, 9.0}})

	agg, err := aggregate.Aggregate([]*verif.Result{r}, testLogger())
	require.NoError(t, err)

	require.Equal(t, []time.Duration{0, 6 * time.Hour}, agg.LeadTimes)
	all := aggregate.HourAll
	// First occurrence of the duplicated lead wins.
	assert.Equal(t, 2.0, agg.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", 1))
}

func TestAggregate_SqrtAfterAveraging(t *testing.T) {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	leads := []time.Duration{0}

	agg, err := aggregate.Aggregate([]*verif.Result{
		singleInitResult(jan, leads, "model", map[string][]float64{
			"T.MSE": {4.0}, "T.VAR": {4.0}, "T.var": {1.0},
		}),
		singleInitResult(jul, leads, "model", map[string][]float64{
			"T.MSE": {16.0}, "T.VAR": {16.0}, "T.var": {9.0},
		}),
	}, testLogger())
	require.NoError(t, err)

	names := agg.VarNames()
	assert.NotContains(t, names, "T.MSE")
	assert.NotContains(t, names, "T.VAR")
	assert.NotContains(t, names, "T.var")

	all := aggregate.HourAll
	// Root of the mean, not the mean of the roots.
	assert.InDelta(t, math.Sqrt(10.0), agg.Value("T.RMSE", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)
	assert.InDelta(t, math.Sqrt(10.0), agg.Value("T.STDE", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0), agg.Value("T.std", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)
}

func TestAggregate_InitHourStratification(t *testing.T) {
	run00 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	run12 := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	leads := []time.Duration{0}

	agg, err := aggregate.Aggregate([]*verif.Result{
		singleInitResult(run00, leads, "model", map[string][]float64{"T.BIAS": {1.0}}),
		singleInitResult(run12, leads, "model", map[string][]float64{"T.BIAS": {3.0}}),
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 12, aggregate.HourAll}, agg.InitHours)

	all := aggregate.HourAll
	assert.InDelta(t, 1.0, agg.Value("T.BIAS", domain.SeasonAll, all, 0, "all", "model", 0), 1e-12)
	assert.InDelta(t, 3.0, agg.Value("T.BIAS", domain.SeasonAll, all, 12, "all", "model", 0), 1e-12)
	assert.InDelta(t, 2.0, agg.Value("T.BIAS", domain.SeasonAll, all, all, "all", "model", 0), 1e-12)

	// Valid-time hour stratification mirrors the init hours at lead zero.
	assert.InDelta(t, 1.0, agg.Value("T.BIAS", domain.SeasonAll, 0, all, "all", "model", 0), 1e-12)
	assert.InDelta(t, 3.0, agg.Value("T.BIAS", domain.SeasonAll, 12, all, "all", "model", 0), 1e-12)
}

func TestAggregate_NoInputs(t *testing.T) {
	_, err := aggregate.Aggregate(nil, testLogger())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
