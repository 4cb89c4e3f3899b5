// Package epimod provides climate-driven epidemiological suitability models.
package epimod

import (
	"math"
	"sort"
	"strings"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// ModelKind selects a suitability-evaluation strategy.
type ModelKind int

const (
	// KindTemperatureRange marks temperatures strictly inside a range as
	// suitable.
	KindTemperatureRange ModelKind = iota
	// KindTemperatureTable interpolates a temperature-indexed suitability
	// table.
	KindTemperatureTable
	// KindTemperaturePrecipitationTable looks up the nearest cell of a
	// temperature/precipitation-indexed table.
	KindTemperaturePrecipitationTable
)

// SuitabilityModel maps climate variables to a suitability field. A model is
// configured once at construction and is safe for concurrent use.
type SuitabilityModel struct {
	kind     ModelKind
	lower    float64
	upper    float64
	table    *dataset.Dataset
	varName  string
	longName string
}

// NewTemperatureRangeModel builds a model that is suitable (value 1) strictly
// between the two temperatures and unsuitable (value 0) elsewhere, boundary
// values included.
func NewTemperatureRangeModel(lower, upper float64) (*SuitabilityModel, error) {
	if !(lower < upper) {
		return nil, errors.ConfigInvalid("temperature range lower bound must be below upper bound")
	}
	return &SuitabilityModel{
		kind:     KindTemperatureRange,
		lower:    lower,
		upper:    upper,
		varName:  "suitability",
		longName: "Suitability",
	}, nil
}

// NewSuitabilityTableModel builds a model from a table dataset holding a
// single data variable indexed by a temperature coordinate and, optionally, a
// precipitation coordinate. Temperature-only tables are interpolated
// linearly, with suitability 0 outside the covered range.
// Temperature/precipitation tables use nearest-cell lookup and must be
// defined on an evenly spaced grid.
func NewSuitabilityTableModel(table *dataset.Dataset) (*SuitabilityModel, error) {
	names := table.NonBoundsVars()
	if len(names) != 1 {
		return nil, errors.ConfigInvalid("the suitability table must have exactly one data variable")
	}
	name := names[0]
	a := table.Vars[name]
	if table.Coord("temperature") == nil || !a.HasDim("temperature") {
		return nil, errors.ConfigInvalid("the suitability table must be indexed by temperature")
	}
	m := &SuitabilityModel{
		table:    table.Copy(),
		varName:  name,
		longName: a.Attrs["long_name"],
	}
	if m.longName == "" {
		m.longName = strings.ToUpper(name[:1]) + name[1:]
	}
	if a.HasDim("precipitation") {
		m.kind = KindTemperaturePrecipitationTable
		if table.Coord("precipitation") == nil {
			return nil, errors.ConfigInvalid("the suitability table is missing the precipitation coordinate")
		}
		for _, axis := range []string{"temperature", "precipitation"} {
			if err := checkEvenSpacing(table.Coord(axis).Values, axis); err != nil {
				return nil, err
			}
		}
	} else {
		m.kind = KindTemperatureTable
		if !sort.Float64sAreSorted(table.Coord("temperature").Values) {
			return nil, errors.ConfigInvalid("the suitability table's temperature axis must be increasing")
		}
	}
	return m, nil
}

// checkEvenSpacing verifies an axis is an evenly spaced grid, to a relative
// tolerance of 1e-3.
func checkEvenSpacing(values []float64, axis string) error {
	if len(values) < 2 {
		return errors.ConfigInvalid("the suitability table's " + axis + " axis needs at least two samples")
	}
	first := values[1] - values[0]
	for i := 2; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if math.Abs(delta-first) > 1e-3*math.Abs(first) {
			return errors.ConfigInvalid(
				"the suitability table must be defined on a regular grid of " + axis + " values")
		}
	}
	return nil
}

// Kind returns the model's evaluation strategy.
func (m *SuitabilityModel) Kind() ModelKind { return m.kind }

// VarName returns the name of the suitability variable the model produces.
func (m *SuitabilityModel) VarName() string { return m.varName }

// Run evaluates the model on a climate dataset, producing a dataset with the
// model's suitability variable on the climate data's dimensions. Bounds
// variables are carried over from the input.
func (m *SuitabilityModel) Run(dsClim *dataset.Dataset) (*dataset.Dataset, error) {
	temperature, err := dsClim.MustVar("temperature")
	if err != nil {
		return nil, err
	}
	var suitability *dataset.DataArray
	switch m.kind {
	case KindTemperatureRange:
		suitability = temperature.Apply(func(v float64) float64 {
			if v > m.lower && v < m.upper {
				return 1
			}
			return 0
		})
	case KindTemperatureTable:
		suitability = m.interpTable(temperature)
	case KindTemperaturePrecipitationTable:
		precipitation, err := dsClim.MustVar("precipitation")
		if err != nil {
			return nil, err
		}
		suitability, err = m.lookupTable(temperature, precipitation)
		if err != nil {
			return nil, err
		}
	}
	suitability.Name = m.varName

	out := dataset.New()
	for k, v := range dsClim.Attrs {
		out.Attrs[k] = v
	}
	out.SetVar(suitability)
	for _, dim := range suitability.Dims {
		if c := dsClim.Coord(dim); c != nil {
			out.SetCoord(c.Copy())
		}
	}
	suitability.Attrs = map[string]string{}
	if m.table != nil {
		for k, v := range m.table.Vars[m.varName].Attrs {
			suitability.Attrs[k] = v
		}
	}
	if suitability.Attrs["long_name"] == "" {
		suitability.Attrs["long_name"] = m.longName
	}
	dataset.CopyBounds(out, dsClim)
	return out, nil
}

// RunMonthsSuitable evaluates the model and reduces the result to the yearly
// count of suitable months.
func (m *SuitabilityModel) RunMonthsSuitable(dsClim *dataset.Dataset, threshold float64) (*dataset.Dataset, error) {
	suitability, err := m.Run(dsClim)
	if err != nil {
		return nil, err
	}
	return MonthsSuitable(suitability, "", threshold)
}

// interpTable linearly interpolates a temperature-only suitability table.
// Temperatures outside the table's range map to suitability 0.
func (m *SuitabilityModel) interpTable(temperature *dataset.DataArray) *dataset.DataArray {
	xs := m.table.Coord("temperature").Values
	ys := m.table.Vars[m.varName].Values
	return temperature.Apply(func(v float64) float64 {
		if v < xs[0] || v > xs[len(xs)-1] {
			return 0
		}
		i := sort.SearchFloat64s(xs, v)
		if i < len(xs) && xs[i] == v {
			return ys[i]
		}
		// xs[i-1] < v < xs[i]
		frac := (v - xs[i-1]) / (xs[i] - xs[i-1])
		return ys[i-1] + frac*(ys[i]-ys[i-1])
	})
}

// lookupTable snaps each temperature/precipitation sample to the nearest
// table cell, clamping to the table's edges.
func (m *SuitabilityModel) lookupTable(temperature, precipitation *dataset.DataArray) (*dataset.DataArray, error) {
	tempVals := m.table.Coord("temperature").Values
	precipVals := m.table.Coord("precipitation").Values
	tempDelta := tempVals[1] - tempVals[0]
	precipDelta := precipVals[1] - precipVals[0]
	cells := m.table.Vars[m.varName]
	tAxis := cells.AxisOf("temperature")
	pAxis := cells.AxisOf("precipitation")
	idx := make([]int, 2)
	return dataset.Apply2(temperature, precipitation, func(tv, pv float64) float64 {
		idx[tAxis] = snapIndex(tv, tempVals[0], tempDelta, len(tempVals))
		idx[pAxis] = snapIndex(pv, precipVals[0], precipDelta, len(precipVals))
		return cells.At(idx...)
	})
}

func snapIndex(v, origin, delta float64, n int) int {
	i := int(math.Round((v - origin) / delta))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// SuitabilityRegion returns the model's suitability as a function of its
// climate inputs, for display. Table models return a copy of their table;
// range models sample the indicator on a fine temperature grid.
func (m *SuitabilityModel) SuitabilityRegion() *dataset.Dataset {
	if m.table != nil {
		return m.table.Copy()
	}
	n := 1000
	top := 1.25 * m.upper
	temps := make([]float64, n)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		t := top * float64(i) / float64(n-1)
		temps[i] = t
		if t >= m.lower && t <= m.upper {
			vals[i] = 1
		}
	}
	out := dataset.New()
	out.SetCoord(dataset.NewNumericCoord("temperature", temps))
	a, _ := dataset.NewDataArray(m.varName, []string{"temperature"}, []int{n}, vals)
	a.Attrs["long_name"] = m.longName
	out.SetVar(a)
	return out
}
