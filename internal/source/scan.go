package source

import (
	"go.uber.org/zap"
)

// ScanOptions configures a feed scan for one source.
type ScanOptions[T any] struct {
	// Source is the adapter name, used for logging only.
	Source string

	// EarlyTermination stops the scan at the first known identifier.
	// Only safe when the feed is ordered newest-first.
	EarlyTermination bool

	// FastID extracts the identifier without a full parse, letting the
	// scan skip detail enrichment for already-known items. Return ""
	// to fall through to the full parse.
	FastID func(item T) string
}

// Scan runs the shared per-source discovery loop over a feed: check the
// cheap identifier first, reconfirm known items, early-terminate when
// the feed ordering allows it, and fully parse only what is new.
//
// Adapters call this from Fetch so the known-state contract lives in
// one place instead of being re-implemented per site.
func Scan[T any, L any](
	items []T,
	known map[string]struct{},
	opts ScanOptions[T],
	parse func(item T) (L, string, error),
) (newItems map[string]L, reconfirmed map[string]struct{}) {
	log := zap.L().With(zap.String("source", opts.Source))

	newItems = make(map[string]L)
	reconfirmed = make(map[string]struct{})

	for _, item := range items {
		if opts.FastID != nil {
			if id := opts.FastID(item); id != "" {
				if _, ok := known[id]; ok {
					reconfirmed[id] = struct{}{}
					if opts.EarlyTermination {
						log.Debug("hit known listing, stopping scan", zap.String("identifier", id))
						return newItems, reconfirmed
					}
					continue
				}
			}
		}

		listing, id, err := parse(item)
		if err != nil {
			log.Warn("dropping unparseable listing", zap.Error(err))
			continue
		}
		if _, ok := known[id]; ok {
			reconfirmed[id] = struct{}{}
			if opts.EarlyTermination {
				log.Debug("hit known listing, stopping scan", zap.String("identifier", id))
				return newItems, reconfirmed
			}
			continue
		}
		newItems[id] = listing
	}

	return newItems, reconfirmed
}

// KnownIDs projects a known-listing map down to its identifier set.
func KnownIDs[V any](known map[string]V) map[string]struct{} {
	ids := make(map[string]struct{}, len(known))
	for id := range known {
		ids[id] = struct{}{}
	}
	return ids
}
