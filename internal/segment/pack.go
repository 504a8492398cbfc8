package segment

// Pack groups already-cut items by running duration. A group is closed
// before adding the next item once its total exceeds max, so groups can
// overshoot by one item. The trailing group is always kept.
func Pack[T any](items []T, duration func(T) float64, max float64) [][]T {
	var (
		groups [][]T
		curr   []T
		total  float64
	)
	for _, it := range items {
		if total > max {
			groups = append(groups, curr)
			curr = nil
			total = 0
		}
		total += duration(it)
		curr = append(curr, it)
	}
	if len(curr) > 0 {
		groups = append(groups, curr)
	}
	return groups
}
