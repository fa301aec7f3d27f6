package domain

import "fmt"

// Align inner-joins two datasets on their valid-time axis: only time values
// present in both are retained, in the order they appear in a. The spatial
// layouts must have identical extents (the adapters interpolate to a common
// grid before verification). An empty intersection is an AlignmentError.
//
// Align never mutates its inputs; it returns restricted copies. Aligning an
// already-aligned pair returns equal datasets, so the operation is
// idempotent.
func Align(a, b *Dataset) (*Dataset, *Dataset, error) {
	if !a.Grid.SameShape(b.Grid) {
		return nil, nil, &AlignmentError{
			Msg: fmt.Sprintf("spatial shapes differ: %v vs %v", a.Grid.Shape, b.Grid.Shape),
		}
	}

	bIndex := make(map[int64]int, len(b.Time))
	for i, t := range b.Time {
		if _, ok := bIndex[t.UnixNano()]; !ok {
			bIndex[t.UnixNano()] = i
		}
	}

	var idxA, idxB []int
	seen := make(map[int64]bool)
	for i, t := range a.Time {
		key := t.UnixNano()
		if seen[key] {
			continue
		}
		if j, ok := bIndex[key]; ok {
			seen[key] = true
			idxA = append(idxA, i)
			idxB = append(idxB, j)
		}
	}

	if len(idxA) == 0 {
		return nil, nil, &AlignmentError{Msg: "no common valid times between datasets"}
	}
	return a.selectTimeIndices(idxA), b.selectTimeIndices(idxB), nil
}
