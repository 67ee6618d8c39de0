package ops

// MapFunc maps one element of a chunk to its replacement, given the
// element's position within the chunk.
type MapFunc func(elt any, index int) any

// FilterFunc reports whether an element at the given position within the
// chunk should be kept.
type FilterFunc func(elt any, index int) bool

// ReduceFunc folds two adjacent elements (or an accumulator and the next
// element) into one.
type ReduceFunc func(acc, elt any) any

// LocalMap applies fn to every element of data, left to right. Element i of
// the result is fn(data[i], i).
func LocalMap(fn MapFunc, data []any) []any {
	out := make([]any, len(data))
	for i, elt := range data {
		out[i] = fn(elt, i)
	}
	return out
}

// LocalFilter returns the order-preserving subsequence of data for which
// fn(elt, index) is true. Indices passed to fn are positions within data,
// not within any enclosing chunk.
func LocalFilter(fn FilterFunc, data []any) []any {
	out := make([]any, 0, len(data))
	for i, elt := range data {
		if fn(elt, i) {
			out = append(out, elt)
		}
	}
	return out
}

// LocalReduce left-folds fn over data: fn(...fn(fn(d0, d1), d2)..., dn-1).
// It returns ErrEmptyInput for a zero-length chunk.
func LocalReduce(fn ReduceFunc, data []any) (any, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	acc := data[0]
	for _, elt := range data[1:] {
		acc = fn(acc, elt)
	}
	return acc, nil
}

// Apply is the worker's single entry point for running a resolved function
// against a chunk. fn must already have been resolved to the concrete
// function type matching op (see Registry.Resolve). For Reduce, the
// single-element result is wrapped in a one-element slice so map, filter,
// and reduce all produce the same []any chunk-payload shape.
func Apply(op Operation, fn any, data []any) ([]any, error) {
	switch op {
	case Map:
		return LocalMap(fn.(MapFunc), data), nil
	case Filter:
		return LocalFilter(fn.(FilterFunc), data), nil
	case Reduce:
		result, err := LocalReduce(fn.(ReduceFunc), data)
		if err != nil {
			return nil, err
		}
		return []any{result}, nil
	default:
		return nil, ErrUnknownOp
	}
}
