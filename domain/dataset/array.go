package dataset

import (
	"epiclim/internal/errors"
)

// DataArray is a labeled multi-dimensional array of float64 values stored in
// row-major order. Dimension names give meaning to each axis; all structural
// operations (reduction, stacking, selection) address axes by name.
type DataArray struct {
	Name   string
	Dims   []string
	Shape  []int
	Values []float64
	Attrs  map[string]string
}

// NewDataArray creates a data array and validates that the value buffer
// matches the declared shape.
func NewDataArray(name string, dims []string, shape []int, values []float64) (*DataArray, error) {
	if len(dims) != len(shape) {
		return nil, errors.InvalidInput("dims and shape must have the same length")
	}
	if len(values) != sizeOf(shape) {
		return nil, errors.InvalidInput("value buffer does not match shape")
	}
	return &DataArray{
		Name:   name,
		Dims:   append([]string(nil), dims...),
		Shape:  append([]int(nil), shape...),
		Values: values,
		Attrs:  map[string]string{},
	}, nil
}

// Filled creates a data array with every element set to fill.
func Filled(name string, dims []string, shape []int, fill float64) *DataArray {
	values := make([]float64, sizeOf(shape))
	for i := range values {
		values[i] = fill
	}
	a, _ := NewDataArray(name, dims, shape, values)
	return a
}

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func stridesOf(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// Size returns the total number of elements.
func (a *DataArray) Size() int {
	return sizeOf(a.Shape)
}

// Copy returns a deep copy of the array.
func (a *DataArray) Copy() *DataArray {
	out := &DataArray{
		Name:   a.Name,
		Dims:   append([]string(nil), a.Dims...),
		Shape:  append([]int(nil), a.Shape...),
		Values: append([]float64(nil), a.Values...),
		Attrs:  map[string]string{},
	}
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// Rename returns a shallow-renamed copy of the array.
func (a *DataArray) Rename(name string) *DataArray {
	out := a.Copy()
	out.Name = name
	return out
}

// AxisOf returns the axis index of a dimension, or -1 if absent.
func (a *DataArray) AxisOf(dim string) int {
	for i, d := range a.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// HasDim reports whether the array has the named dimension.
func (a *DataArray) HasDim(dim string) bool {
	return a.AxisOf(dim) >= 0
}

// DimLen returns the length of the named dimension, or 0 if absent.
func (a *DataArray) DimLen(dim string) int {
	k := a.AxisOf(dim)
	if k < 0 {
		return 0
	}
	return a.Shape[k]
}

// At returns the element at the given multi-index.
func (a *DataArray) At(idx ...int) float64 {
	return a.Values[a.offset(idx)]
}

// Set stores v at the given multi-index.
func (a *DataArray) Set(v float64, idx ...int) {
	a.Values[a.offset(idx)] = v
}

func (a *DataArray) offset(idx []int) int {
	st := stridesOf(a.Shape)
	off := 0
	for i, j := range idx {
		off += j * st[i]
	}
	return off
}

// decode writes the multi-index of flat position into idx.
func decode(flat int, shape []int, idx []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		idx[i] = flat % shape[i]
		flat /= shape[i]
	}
}

// Reduce collapses the named dimension, applying fn to each 1-D slice taken
// along it. The result keeps the remaining dimensions in their original order.
func (a *DataArray) Reduce(dim string, fn func([]float64) float64) (*DataArray, error) {
	k := a.AxisOf(dim)
	if k < 0 {
		return nil, errors.InvalidInput("array " + a.Name + " has no dimension " + dim)
	}
	n := a.Shape[k]
	outDims := make([]string, 0, len(a.Dims)-1)
	outShape := make([]int, 0, len(a.Shape)-1)
	for i := range a.Dims {
		if i == k {
			continue
		}
		outDims = append(outDims, a.Dims[i])
		outShape = append(outShape, a.Shape[i])
	}
	out := Filled(a.Name, outDims, outShape, 0)
	st := stridesOf(a.Shape)
	buf := make([]float64, n)
	outIdx := make([]int, len(outShape))
	full := make([]int, len(a.Shape))
	for flat := 0; flat < out.Size(); flat++ {
		decode(flat, outShape, outIdx)
		oi := 0
		for i := range full {
			switch {
			case i < k:
				full[i] = outIdx[oi]
				oi++
			case i == k:
				full[i] = 0
			default:
				full[i] = outIdx[oi]
				oi++
			}
		}
		base := a.offset(full)
		for j := 0; j < n; j++ {
			buf[j] = a.Values[base+j*st[k]]
		}
		out.Values[flat] = fn(buf)
	}
	for key, v := range a.Attrs {
		out.Attrs[key] = v
	}
	return out, nil
}

// SelectIndex takes a single index along the named dimension and drops the
// dimension from the result.
func (a *DataArray) SelectIndex(dim string, index int) (*DataArray, error) {
	k := a.AxisOf(dim)
	if k < 0 {
		return nil, errors.InvalidInput("array " + a.Name + " has no dimension " + dim)
	}
	if index < 0 || index >= a.Shape[k] {
		return nil, errors.InvalidInput("index out of range for dimension " + dim)
	}
	return a.Reduce(dim, func(slice []float64) float64 { return slice[index] })
}

// TakeIndex keeps the named dimension with length one, restricted to a single
// index. Used when a selection should preserve the dimension structure.
func (a *DataArray) TakeIndex(dim string, index int) (*DataArray, error) {
	sel, err := a.SelectIndex(dim, index)
	if err != nil {
		return nil, err
	}
	k := a.AxisOf(dim)
	out := sel.expandAt(dim, k)
	return out, nil
}

// TakeIndices keeps the named dimension restricted to the given indices, in
// order.
func (a *DataArray) TakeIndices(dim string, indices []int) (*DataArray, error) {
	k := a.AxisOf(dim)
	if k < 0 {
		return nil, errors.InvalidInput("array " + a.Name + " has no dimension " + dim)
	}
	for _, idx := range indices {
		if idx < 0 || idx >= a.Shape[k] {
			return nil, errors.InvalidInput("index out of range for dimension " + dim)
		}
	}
	outShape := append([]int(nil), a.Shape...)
	outShape[k] = len(indices)
	out := Filled(a.Name, a.Dims, outShape, 0)
	for key, v := range a.Attrs {
		out.Attrs[key] = v
	}
	idxIn := make([]int, len(a.Shape))
	idxOut := make([]int, len(a.Shape))
	for flat := range out.Values {
		decode(flat, outShape, idxOut)
		copy(idxIn, idxOut)
		idxIn[k] = indices[idxOut[k]]
		out.Values[flat] = a.At(idxIn...)
	}
	return out, nil
}

// ExpandDims prepends a new dimension of length one.
func (a *DataArray) ExpandDims(dim string) *DataArray {
	return a.expandAt(dim, 0)
}

func (a *DataArray) expandAt(dim string, axis int) *DataArray {
	out := a.Copy()
	dims := make([]string, 0, len(out.Dims)+1)
	shape := make([]int, 0, len(out.Shape)+1)
	dims = append(dims, out.Dims[:axis]...)
	dims = append(dims, dim)
	dims = append(dims, out.Dims[axis:]...)
	shape = append(shape, out.Shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, out.Shape[axis:]...)
	out.Dims = dims
	out.Shape = shape
	return out
}

// Squeeze drops the named dimension, which must have length one.
func (a *DataArray) Squeeze(dim string) (*DataArray, error) {
	k := a.AxisOf(dim)
	if k < 0 {
		return nil, errors.InvalidInput("array " + a.Name + " has no dimension " + dim)
	}
	if a.Shape[k] != 1 {
		return nil, errors.InvalidInput("cannot squeeze dimension " + dim + " of length > 1")
	}
	return a.SelectIndex(dim, 0)
}

// Stack combines arrays of identical dimensions into one array with a new
// trailing dimension, one entry per input array.
func Stack(dim string, arrs ...*DataArray) (*DataArray, error) {
	if len(arrs) == 0 {
		return nil, errors.InvalidInput("no arrays to stack")
	}
	first := arrs[0]
	for _, a := range arrs[1:] {
		if !sameLayout(first, a) {
			return nil, errors.InvalidInput("stacked arrays must share dimensions and shape")
		}
	}
	m := len(arrs)
	outDims := append(append([]string(nil), first.Dims...), dim)
	outShape := append(append([]int(nil), first.Shape...), m)
	out := Filled(first.Name, outDims, outShape, 0)
	for j, a := range arrs {
		for i, v := range a.Values {
			out.Values[i*m+j] = v
		}
	}
	for key, v := range first.Attrs {
		out.Attrs[key] = v
	}
	return out, nil
}

func sameLayout(a, b *DataArray) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] || a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// TransformSlices applies fn to each 1-D slice taken along dim. fn returns a
// replacement slice of the same length and a per-slice scalar. The first
// result keeps the full layout of a; the second drops dim.
func (a *DataArray) TransformSlices(dim string, fn func([]float64) ([]float64, float64, error)) (*DataArray, *DataArray, error) {
	k := a.AxisOf(dim)
	if k < 0 {
		return nil, nil, errors.InvalidInput("array " + a.Name + " has no dimension " + dim)
	}
	n := a.Shape[k]
	outDims := make([]string, 0, len(a.Dims)-1)
	outShape := make([]int, 0, len(a.Shape)-1)
	for i := range a.Dims {
		if i == k {
			continue
		}
		outDims = append(outDims, a.Dims[i])
		outShape = append(outShape, a.Shape[i])
	}
	full := a.Copy()
	scalars := Filled(a.Name, outDims, outShape, 0)
	st := stridesOf(a.Shape)
	buf := make([]float64, n)
	outIdx := make([]int, len(outShape))
	idx := make([]int, len(a.Shape))
	for flat := 0; flat < scalars.Size(); flat++ {
		decode(flat, outShape, outIdx)
		oi := 0
		for i := range idx {
			switch {
			case i == k:
				idx[i] = 0
			default:
				idx[i] = outIdx[oi]
				oi++
			}
		}
		base := a.offset(idx)
		for j := 0; j < n; j++ {
			buf[j] = a.Values[base+j*st[k]]
		}
		replacement, scalar, err := fn(buf)
		if err != nil {
			return nil, nil, err
		}
		if len(replacement) != n {
			return nil, nil, errors.InvalidInput("slice transform changed the slice length")
		}
		for j := 0; j < n; j++ {
			full.Values[base+j*st[k]] = replacement[j]
		}
		scalars.Values[flat] = scalar
	}
	return full, scalars, nil
}

// Apply returns a new array with fn applied elementwise.
func (a *DataArray) Apply(fn func(float64) float64) *DataArray {
	out := a.Copy()
	for i, v := range out.Values {
		out.Values[i] = fn(v)
	}
	return out
}

// Apply2 combines two arrays elementwise. The dimensions of b must be a
// subset of those of a with matching lengths; missing dimensions of b are
// broadcast.
func Apply2(a, b *DataArray, fn func(x, y float64) float64) (*DataArray, error) {
	bAxis := make([]int, len(a.Dims)) // a axis -> b axis or -1
	for i, d := range a.Dims {
		bAxis[i] = b.AxisOf(d)
		if bAxis[i] >= 0 && b.Shape[bAxis[i]] != a.Shape[i] {
			return nil, errors.InvalidInput("dimension " + d + " has mismatched lengths")
		}
	}
	for _, d := range b.Dims {
		if !a.HasDim(d) {
			return nil, errors.InvalidInput("dimension " + d + " of " + b.Name + " not present in " + a.Name)
		}
	}
	bStrides := stridesOf(b.Shape)
	out := a.Copy()
	idx := make([]int, len(a.Shape))
	for flat := range out.Values {
		decode(flat, a.Shape, idx)
		boff := 0
		for i, ba := range bAxis {
			if ba >= 0 {
				boff += idx[i] * bStrides[ba]
			}
		}
		out.Values[flat] = fn(a.Values[flat], b.Values[boff])
	}
	return out, nil
}

// BroadcastLike returns a copy of a expanded to the dimensions and shape of
// ref. Dimensions of a must be a subset of those of ref; new dimensions are
// filled by repetition.
func (a *DataArray) BroadcastLike(ref *DataArray) (*DataArray, error) {
	out, err := Apply2(ref, a, func(_, y float64) float64 { return y })
	if err != nil {
		return nil, err
	}
	out.Name = a.Name
	out.Attrs = map[string]string{}
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	return out, nil
}
