package provider

import (
	"context"
	"errors"

	"github.com/reelwatch/reelwatch/pkg/storage"
)

// ErrNotFound is returned when the provider has no such movie or no search
// match.
var ErrNotFound = errors.New("no provider result")

// RawItem is one entry of the "currently active" listing, as returned by the
// provider. JSON holds the untouched element for Normalize.
type RawItem struct {
	ID          int64
	Title       string
	ReleaseDate string
	JSON        string
}

// RawDetail is the extended record of one item, credits included.
type RawDetail struct {
	JSON string
}

// SearchResult is the best match of a title search.
type SearchResult struct {
	ID       int64
	Title    string
	Overview string
}

// Provider abstracts the metadata source. Transport failures are returned
// as-is; callers decide what a failed call means for their unit of work.
type Provider interface {
	Name() string
	FetchCurrentBatch(ctx context.Context) ([]RawItem, error)
	FetchDetails(ctx context.Context, id int64) (RawDetail, error)
	SearchByTitle(ctx context.Context, title string) (SearchResult, error)
	// Normalize never fails: missing fields degrade to placeholders.
	Normalize(item RawItem, detail RawDetail) storage.Movie
}
