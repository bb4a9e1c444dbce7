// internal/feed/types.go
package feed

import (
	"context"
	"time"

	"wiresum/internal/database"
)

// UnknownFeed names entries whose source could not resolve a feed title.
const UnknownFeed = "Unknown Feed"

// Source produces raw entries published since a watermark. A zero since
// means no lower bound. Returned entries carry no classification state.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) ([]database.Entry, error)
}

// Store is the subset of the entry store ingestion needs.
type Store interface {
	UpsertEntry(ctx context.Context, e database.Entry) (int64, error)
	ProcessAfter(ctx context.Context) (time.Time, error)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
