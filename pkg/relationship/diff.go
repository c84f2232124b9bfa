// Package relationship implements the many-to-many reconciliation engine:
// given an owner entity whose relationship collections should match
// caller-supplied target ID lists, it computes the minimal additions and
// removals, validates that every referenced ID exists, and applies the
// changes inside the owner's unit of work, concurrently across
// independent relationships when asked to.
package relationship

// Diff is the minimal change set that turns a collection's current
// membership into the target membership. ToAdd and ToRemove are always
// disjoint; applying both to the current set yields exactly the target
// set.
type Diff[ID comparable] struct {
	ToAdd    []ID
	ToRemove []ID
}

// Empty reports whether the diff requires no changes
func (d Diff[ID]) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// ComputeDiff compares current membership against a target ID list.
// Duplicates on either side are normalized away. An empty target means
// a full clear. Pure function; no store access happens here.
func ComputeDiff[ID comparable](current, target []ID) Diff[ID] {
	currentSet := make(map[ID]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	targetSet := make(map[ID]struct{}, len(target))
	for _, id := range target {
		targetSet[id] = struct{}{}
	}

	var diff Diff[ID]
	seen := make(map[ID]struct{}, len(target))
	for _, id := range target {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			diff.ToAdd = append(diff.ToAdd, id)
		}
	}
	for _, id := range current {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := targetSet[id]; !ok {
			diff.ToRemove = append(diff.ToRemove, id)
		}
	}
	return diff
}
