package dataset

import (
	"epiclim/internal/errors"
)

// Concat joins datasets along the named dimension, in argument order. Every
// non-bounds variable must carry the dimension in each dataset; bounds
// variables and coordinates not using the dimension are taken from the first
// dataset.
func Concat(dim string, dss ...*Dataset) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, errors.InvalidInput("no datasets to concatenate")
	}
	if len(dss) == 1 {
		return dss[0].Copy(), nil
	}
	first := dss[0]
	out := New()
	for k, v := range first.Attrs {
		out.Attrs[k] = v
	}
	for _, name := range first.VarNames() {
		v := first.Vars[name]
		if !v.HasDim(dim) {
			out.SetVar(v.Copy())
			continue
		}
		parts := make([]*DataArray, 0, len(dss))
		for _, ds := range dss {
			part, ok := ds.Vars[name]
			if !ok || !part.HasDim(dim) {
				return nil, errors.InvalidInput(
					"variable " + name + " missing dimension " + dim + " in a concatenated dataset")
			}
			parts = append(parts, part)
		}
		joined, err := concatArrays(dim, parts)
		if err != nil {
			return nil, err
		}
		out.SetVar(joined)
	}
	for name, c := range first.Coords {
		if name != dim {
			out.SetCoord(c.Copy())
			continue
		}
		joined := &Coord{Name: dim, Attrs: map[string]string{}}
		for k, v := range c.Attrs {
			joined.Attrs[k] = v
		}
		for _, ds := range dss {
			part := ds.Coords[dim]
			if part == nil {
				return nil, errors.InvalidInput("coordinate " + dim + " missing in a concatenated dataset")
			}
			joined.Values = append(joined.Values, part.Values...)
			joined.Labels = append(joined.Labels, part.Labels...)
		}
		out.SetCoord(joined)
	}
	return out, nil
}

func concatArrays(dim string, arrs []*DataArray) (*DataArray, error) {
	first := arrs[0]
	k := first.AxisOf(dim)
	total := 0
	for _, a := range arrs {
		if a.AxisOf(dim) != k || len(a.Dims) != len(first.Dims) {
			return nil, errors.InvalidInput("concatenated arrays must share dimension order")
		}
		for i := range a.Dims {
			if a.Dims[i] != first.Dims[i] || (i != k && a.Shape[i] != first.Shape[i]) {
				return nil, errors.InvalidInput("concatenated arrays must share non-concat dimensions")
			}
		}
		total += a.Shape[k]
	}
	outShape := append([]int(nil), first.Shape...)
	outShape[k] = total
	out := Filled(first.Name, first.Dims, outShape, 0)
	for key, v := range first.Attrs {
		out.Attrs[key] = v
	}
	offset := 0
	idx := make([]int, len(first.Shape))
	for _, a := range arrs {
		for flat, v := range a.Values {
			decode(flat, a.Shape, idx)
			idx[k] += offset
			out.Set(v, idx...)
			idx[k] -= offset
		}
		offset += a.Shape[k]
	}
	return out, nil
}
