package domain

import (
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign_InnerJoin(t *testing.T) {
	grid := testGrid(t, 2, 2)
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fcst := NewForecastDataset(grid, ref, []time.Duration{0, 6 * time.Hour, 12 * time.Hour})
	require.NoError(t, fcst.AddVar("T_2M", constVar(283, 3, 2, 2)))

	truthTimes := []time.Time{ref.Add(6 * time.Hour), ref.Add(12 * time.Hour), ref.Add(18 * time.Hour)}
	truth := NewDataset(grid, truthTimes)
	require.NoError(t, truth.AddVar("T_2M", constVar(280, 3, 2, 2)))

	fA, tA, err := Align(fcst, truth)
	require.NoError(t, err)

	want := []time.Time{ref.Add(6 * time.Hour), ref.Add(12 * time.Hour)}
	assert.Equal(t, want, fA.Time)
	assert.Equal(t, want, tA.Time)
	assert.Equal(t, []time.Duration{6 * time.Hour, 12 * time.Hour}, fA.LeadTimes)

	// Inputs stay untouched.
	assert.Len(t, fcst.Time, 3)
	assert.Len(t, truth.Time, 3)
}

func TestAlign_EmptyIntersection(t *testing.T) {
	grid := testGrid(t, 2, 2)
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fcst := NewForecastDataset(grid, ref, []time.Duration{0})
	truth := NewDataset(grid, []time.Time{ref.Add(48 * time.Hour)})

	_, _, err := Align(fcst, truth)
	var alignErr *AlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestAlign_GridShapeMismatch(t *testing.T) {
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fcst := NewForecastDataset(testGrid(t, 2, 2), ref, []time.Duration{0})
	truth := NewDataset(testGrid(t, 3, 3), []time.Time{ref})

	_, _, err := Align(fcst, truth)
	var alignErr *AlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestAlign_Idempotent(t *testing.T) {
	grid := testGrid(t, 2, 2)
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fcst := NewForecastDataset(grid, ref, []time.Duration{0, 6 * time.Hour})
	data := sparse.ZerosDense(2, 2, 2)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	require.NoError(t, fcst.AddVar("T_2M", data))
	truth := NewDataset(grid, []time.Time{ref, ref.Add(6 * time.Hour)})
	require.NoError(t, truth.AddVar("T_2M", constVar(280, 2, 2, 2)))

	fA, tA, err := Align(fcst, truth)
	require.NoError(t, err)
	fB, tB, err := Align(fA, tA)
	require.NoError(t, err)

	assert.Equal(t, fA.Time, fB.Time)
	fFieldA, _ := fA.Var("T_2M")
	fFieldB, _ := fB.Var("T_2M")
	assert.Equal(t, fFieldA.Data.Elements, fFieldB.Data.Elements)
	assert.Equal(t, tA.Time, tB.Time)
}
