// Package domain models gridded and point meteorological datasets for
// forecast verification.
//
// # Dataset shape conventions
//
// A Dataset is the common in-memory representation produced by the adapter
// layer from GRIB, Zarr, or NetCDF sources. It always carries a valid-time
// axis ("time"). Forecast datasets additionally carry the initialization
// timestamp (RefTime) and a lead-time coordinate parallel to the time axis,
// so that
//
//	Time[i] == RefTime + LeadTimes[i]
//
// holds for every index i. Truth datasets (analyses, observations) have a
// zero RefTime and no lead times.
//
// Spatial layout is either structured ("y", "x" axes with 2-D latitude and
// longitude arrays) or unstructured (a single "values" axis with 1-D
// latitude and longitude), matching the two layouts emitted by the GRIB and
// Zarr decoders upstream. Every variable in a dataset is shaped
// [time, spatial...]; AddVar rejects anything else, so shape invariants are
// enforced at the adapter boundary rather than deep inside the verification
// loop.
//
// # Parameter naming
//
// Variables use the COSMO short names of the operational archive: "T_2M",
// "TD_2M", "U_10M", "V_10M", "PS", "PMSL", "TOT_PREC", and so on. Metric
// outputs derive their names from these, e.g. "T_2M.BIAS".
//
// # Precipitation
//
// "TOT_PREC" arrives accumulated since initialization. DeaggregatePrecip
// converts it to per-interval increments (first interval diffed against
// zero, negatives clipped to zero) and must run exactly once, before
// alignment; the dataset records that the conversion happened and refuses a
// second pass.
//
// # Missing data
//
// Missing samples are NaN. All downstream reductions skip NaN rather than
// propagating it, with the single exception of correlation, which follows
// the standard definition and yields NaN for degenerate inputs.
package domain
