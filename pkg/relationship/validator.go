package relationship

import (
	"context"
	"sort"

	"github.com/ammar0144/rel4go/pkg/errs"
)

// ValidateExistence resolves candidate IDs against src and returns the
// confirmed ID set. If any candidate is missing it fails with a
// RelationshipViolation naming the entity type and the missing IDs.
// No member of the candidate set may be attached until the whole set is
// confirmed to exist.
//
// An empty candidate set succeeds without store access.
func ValidateExistence(ctx context.Context, src Source, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := src.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	foundSet := make(map[uint64]struct{}, len(found))
	for _, id := range found {
		foundSet[id] = struct{}{}
	}

	var missing []uint64
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, errs.RelationshipViolation("some %s IDs not found: %v", src.EntityName(), missing)
	}

	return found, nil
}
