package posts

import "sort"

// Merge reconciles changelog and historical posts into one sequence sorted by
// timestamp descending. On an id collision the changelog post wins regardless
// of timestamps. A positive limit truncates after sorting.
func Merge(changelog, historical []Post, limit int) []Post {
	byID := make(map[string]int, len(changelog)+len(historical))
	merged := make([]Post, 0, len(changelog)+len(historical))

	put := func(p Post) {
		if i, ok := byID[p.ID]; ok {
			merged[i] = p
			return
		}
		byID[p.ID] = len(merged)
		merged = append(merged, p)
	}

	for _, p := range historical {
		put(p)
	}
	for _, p := range changelog {
		put(p)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
