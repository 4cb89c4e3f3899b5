package dataset

import (
	"sort"

	"epiclim/internal/errors"
)

// Coord is one labeled axis of a dataset. Numeric axes (lat, lon, time,
// temperature, ...) carry Values; categorical axes (model, scenario,
// ensemble_stat, location, ...) carry Labels. The time axis is stored
// CF-style as numeric offsets from a base date given in the "units" attr.
type Coord struct {
	Name   string
	Values []float64
	Labels []string
	Attrs  map[string]string
}

// NewNumericCoord creates a numeric coordinate axis.
func NewNumericCoord(name string, values []float64) *Coord {
	return &Coord{
		Name:   name,
		Values: append([]float64(nil), values...),
		Attrs:  map[string]string{},
	}
}

// NewLabelCoord creates a categorical coordinate axis.
func NewLabelCoord(name string, labels []string) *Coord {
	return &Coord{
		Name:   name,
		Labels: append([]string(nil), labels...),
		Attrs:  map[string]string{},
	}
}

// Len returns the number of samples along the axis.
func (c *Coord) Len() int {
	if c.IsCategorical() {
		return len(c.Labels)
	}
	return len(c.Values)
}

// IsCategorical reports whether the axis is label-valued.
func (c *Coord) IsCategorical() bool {
	return len(c.Labels) > 0
}

// Copy returns a deep copy of the coordinate.
func (c *Coord) Copy() *Coord {
	out := &Coord{
		Name:   c.Name,
		Values: append([]float64(nil), c.Values...),
		Labels: append([]string(nil), c.Labels...),
		Attrs:  map[string]string{},
	}
	for k, v := range c.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// Equal reports whether two coordinates have identical samples.
func (c *Coord) Equal(other *Coord) bool {
	if other == nil || c.Len() != other.Len() || c.IsCategorical() != other.IsCategorical() {
		return false
	}
	for i, v := range c.Values {
		if other.Values[i] != v {
			return false
		}
	}
	for i, l := range c.Labels {
		if other.Labels[i] != l {
			return false
		}
	}
	return true
}

// IndexOf returns the position of a label on a categorical axis, or -1.
func (c *Coord) IndexOf(label string) int {
	for i, l := range c.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Dataset is a collection of named data arrays sharing coordinate axes,
// mirroring a CF-style NetCDF dataset. Bounds variables (`*_bnds`) live
// alongside ordinary data variables.
type Dataset struct {
	Vars   map[string]*DataArray
	Coords map[string]*Coord
	Attrs  map[string]string
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{
		Vars:   map[string]*DataArray{},
		Coords: map[string]*Coord{},
		Attrs:  map[string]string{},
	}
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	out := New()
	for name, v := range d.Vars {
		out.Vars[name] = v.Copy()
	}
	for name, c := range d.Coords {
		out.Coords[name] = c.Copy()
	}
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// SetVar stores a data array under its name.
func (d *Dataset) SetVar(a *DataArray) {
	d.Vars[a.Name] = a
}

// Var returns a data array by name.
func (d *Dataset) Var(name string) (*DataArray, bool) {
	a, ok := d.Vars[name]
	return a, ok
}

// MustVar returns a data array by name or an error.
func (d *Dataset) MustVar(name string) (*DataArray, error) {
	a, ok := d.Vars[name]
	if !ok {
		return nil, errors.NotFound("data variable " + name)
	}
	return a, nil
}

// SetCoord stores a coordinate axis.
func (d *Dataset) SetCoord(c *Coord) {
	d.Coords[c.Name] = c
}

// Coord returns a coordinate axis by name, or nil.
func (d *Dataset) Coord(name string) *Coord {
	return d.Coords[name]
}

// DropCoord removes a coordinate axis if present.
func (d *Dataset) DropCoord(name string) {
	delete(d.Coords, name)
}

// VarNames returns all variable names in sorted order.
func (d *Dataset) VarNames() []string {
	names := make([]string, 0, len(d.Vars))
	for name := range d.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDim reports whether any data variable uses the named dimension.
func (d *Dataset) HasDim(dim string) bool {
	for _, v := range d.Vars {
		if v.HasDim(dim) {
			return true
		}
	}
	return false
}

// DimLen returns the length of the named dimension across the dataset's
// variables and coordinates, or 0 if the dimension is unknown.
func (d *Dataset) DimLen(dim string) int {
	for _, v := range d.Vars {
		if n := v.DimLen(dim); n > 0 {
			return n
		}
	}
	if c := d.Coords[dim]; c != nil {
		return c.Len()
	}
	return 0
}

// Squeeze drops a length-one dimension from every variable using it and
// removes its coordinate.
func (d *Dataset) Squeeze(dim string) (*Dataset, error) {
	if n := d.DimLen(dim); n > 1 {
		return nil, errors.InvalidInput("cannot squeeze dimension " + dim + " of length > 1")
	}
	out := d.Copy()
	for name, v := range out.Vars {
		if !v.HasDim(dim) {
			continue
		}
		sq, err := v.Squeeze(dim)
		if err != nil {
			return nil, err
		}
		out.Vars[name] = sq
	}
	out.DropCoord(dim)
	return out, nil
}

// SelLabel selects one entry along a categorical dimension and drops the
// dimension from every variable using it.
func (d *Dataset) SelLabel(dim, label string) (*Dataset, error) {
	c := d.Coords[dim]
	if c == nil || !c.IsCategorical() {
		return nil, errors.InvalidInput("no categorical coordinate " + dim)
	}
	idx := c.IndexOf(label)
	if idx < 0 {
		return nil, errors.NotFound("label " + label + " on dimension " + dim)
	}
	out := d.Copy()
	for name, v := range out.Vars {
		if !v.HasDim(dim) {
			continue
		}
		sel, err := v.SelectIndex(dim, idx)
		if err != nil {
			return nil, err
		}
		out.Vars[name] = sel
	}
	out.DropCoord(dim)
	return out, nil
}

// SelIndices restricts every variable using the named dimension to the given
// indices, in order, and narrows its coordinate to match.
func (d *Dataset) SelIndices(dim string, indices []int) (*Dataset, error) {
	out := d.Copy()
	for name, v := range out.Vars {
		if !v.HasDim(dim) {
			continue
		}
		sel, err := v.TakeIndices(dim, indices)
		if err != nil {
			return nil, err
		}
		out.Vars[name] = sel
	}
	if c := out.Coords[dim]; c != nil {
		nc := &Coord{Name: c.Name, Attrs: map[string]string{}}
		for k, v := range c.Attrs {
			nc.Attrs[k] = v
		}
		for _, idx := range indices {
			if c.IsCategorical() {
				nc.Labels = append(nc.Labels, c.Labels[idx])
			} else {
				nc.Values = append(nc.Values, c.Values[idx])
			}
		}
		out.Coords[dim] = nc
	}
	return out, nil
}

// ISel restricts every variable using the named dimension to a single index,
// keeping the dimension with length one, and narrows its coordinate.
func (d *Dataset) ISel(dim string, index int) (*Dataset, error) {
	out := d.Copy()
	for name, v := range out.Vars {
		if !v.HasDim(dim) {
			continue
		}
		sel, err := v.TakeIndex(dim, index)
		if err != nil {
			return nil, err
		}
		out.Vars[name] = sel
	}
	if c := out.Coords[dim]; c != nil {
		nc := &Coord{Name: c.Name, Attrs: map[string]string{}}
		for k, v := range c.Attrs {
			nc.Attrs[k] = v
		}
		if c.IsCategorical() {
			nc.Labels = []string{c.Labels[index]}
		} else {
			nc.Values = []float64{c.Values[index]}
		}
		out.Coords[dim] = nc
	}
	return out, nil
}
