package directory

// NextID returns the smallest id inside r that is not present in used.
// Released ids are reused on subsequent calls. Ids outside the range are
// ignored, so entries created by other tooling never block allocation.
func NextID(kind string, used map[int]bool, r IDRange) (int, error) {
	for id := r.Min; id < r.Max; id++ {
		if !used[id] {
			return id, nil
		}
	}
	return 0, &RangeExhaustedError{Kind: kind, Range: r}
}

func usedUIDs(users []*User) map[int]bool {
	used := make(map[int]bool, len(users))
	for _, u := range users {
		used[u.UID] = true
	}
	return used
}

func usedGIDs(groups []*Group) map[int]bool {
	used := make(map[int]bool, len(groups))
	for _, g := range groups {
		used[g.GID] = true
	}
	return used
}
