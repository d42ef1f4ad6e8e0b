package vector

// Result is one entry in an ordered nearest-neighbor result set.
type Result struct {
	ID       ID
	Distance float32
}

// SortResults orders results ascending by distance, breaking ties by id
// ordering (Compare).
func SortResults(results []Result) {
	// Insertion sort: result sets here are always small (top-k), and the
	// explicit comparator keeps the tie-break rule in one place instead
	// of duplicating a sort.Slice call at every caller.
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && less(results[j], results[j-1]) {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}
}

func less(a, b Result) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return Compare(a.ID, b.ID) < 0
}
