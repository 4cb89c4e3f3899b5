package dataset

import "time"

// Temporal granularity values derived from the time coordinate.
const (
	TemporalDaily     = "daily"
	TemporalMonthly   = "monthly"
	TemporalYearly    = "yearly"
	TemporalSingle    = "single"
	TemporalIrregular = "irregular"
)

// Spatial scope values derived from the lat/lon/location dimensions.
const (
	SpatialGrid   = "grid"
	SpatialList   = "list"
	SpatialSingle = "single"
)

// Scope classifies a dataset along independent axes: temporal granularity,
// spatial extent and ensemble/model/scenario cardinality. A scope is always
// derived from the dataset's dimensions and coordinate values, never stored,
// so it cannot drift from the data.
type Scope struct {
	Temporal     string
	Spatial      string
	Realizations int
	Models       int
	Scenarios    int
}

// DeriveScope classifies the dataset.
func DeriveScope(d *Dataset) Scope {
	s := Scope{
		Temporal:     deriveTemporal(d),
		Spatial:      deriveSpatial(d),
		Realizations: cardinality(d, "realization"),
		Models:       cardinality(d, "model"),
		Scenarios:    cardinality(d, "scenario"),
	}
	return s
}

func cardinality(d *Dataset, dim string) int {
	if n := d.DimLen(dim); n > 0 {
		return n
	}
	return 1
}

func deriveSpatial(d *Dataset) string {
	if n := d.DimLen("location"); n > 1 {
		return SpatialList
	} else if n == 1 {
		return SpatialSingle
	}
	if d.DimLen("lat") > 1 || d.DimLen("lon") > 1 {
		return SpatialGrid
	}
	return SpatialSingle
}

func deriveTemporal(d *Dataset) string {
	times, err := d.TimeValues()
	if err != nil || len(times) == 0 {
		return TemporalSingle
	}
	if len(times) == 1 {
		return TemporalSingle
	}
	daily, monthly, yearly := true, true, true
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		if gap < 20*time.Hour || gap > 28*time.Hour {
			daily = false
		}
		if gap < 28*24*time.Hour || gap > 32*24*time.Hour {
			monthly = false
		}
		if gap < 360*24*time.Hour || gap > 367*24*time.Hour {
			yearly = false
		}
	}
	switch {
	case daily:
		return TemporalDaily
	case monthly:
		return TemporalMonthly
	case yearly:
		return TemporalYearly
	}
	return TemporalIrregular
}
