package harvest

import (
	"context"
	"fmt"

	"listing-harvester/core/record"
)

// maxPages guards against a lister that never reports the last page.
const maxPages = 10000

// Enumerate pages through lister until it reports no further page and
// returns the keys in first-seen order without duplicates. limit > 0 stops
// after that many keys.
func Enumerate(ctx context.Context, lister Lister, session Session, limit int) ([]record.EntityKey, error) {
	var keys []record.EntityKey
	seen := make(map[record.EntityKey]struct{})

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return keys, err
		}

		batch, hasNext, err := lister.ListEntities(ctx, session, page)
		if err != nil {
			return keys, fmt.Errorf("failed to list page %d: %w", page, err)
		}

		for _, k := range batch {
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}

		if !hasNext {
			return keys, nil
		}
	}
	return keys, fmt.Errorf("listing did not finish after %d pages", maxPages)
}
